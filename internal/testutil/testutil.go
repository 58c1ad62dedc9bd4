// Package testutil holds database fixtures and HTTP helpers shared by package tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/category"
	"github.com/username/ecoenergy-api/internal/database"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/measurement"
	"github.com/username/ecoenergy-api/internal/organization"
	"github.com/username/ecoenergy-api/internal/user"
	"github.com/username/ecoenergy-api/internal/zone"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// NewDB opens a private in-memory sqlite database with the full schema.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("failed to open sqlite memory DB: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate failed: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func mustCreate(t *testing.T, db *gorm.DB, v interface{}) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func CreateOrganization(t *testing.T, db *gorm.DB, name string) organization.Organization {
	t.Helper()
	slug := strings.ReplaceAll(strings.ToLower(name), " ", "-")
	o := organization.Organization{Name: name, Email: "contact@" + slug + ".test"}
	mustCreate(t, db, &o)
	return o
}

func CreateCategory(t *testing.T, db *gorm.DB, orgID int64, name string) category.Category {
	t.Helper()
	c := category.Category{Name: name, OrganizationID: orgID}
	mustCreate(t, db, &c)
	return c
}

func CreateZone(t *testing.T, db *gorm.DB, orgID int64, name string) zone.Zone {
	t.Helper()
	z := zone.Zone{Name: name, OrganizationID: orgID}
	mustCreate(t, db, &z)
	return z
}

// CreateDevice creates a device with its own category and zone in orgID.
func CreateDevice(t *testing.T, db *gorm.DB, orgID int64, name, maxConsumption string) device.Device {
	t.Helper()
	c := CreateCategory(t, db, orgID, "Cat "+name)
	z := CreateZone(t, db, orgID, "Zone "+name)
	d := device.Device{
		Name:           name,
		MaxConsumption: decimal.RequireFromString(maxConsumption),
		CategoryID:     c.ID,
		ZoneID:         z.ID,
		OrganizationID: orgID,
	}
	mustCreate(t, db, &d)
	return d
}

func CreateMeasurement(t *testing.T, db *gorm.DB, d device.Device, value string, at time.Time) measurement.Measurement {
	t.Helper()
	m := measurement.Measurement{
		DeviceID:         d.ID,
		ConsumptionValue: decimal.RequireFromString(value),
		MeasurementDate:  at.UTC(),
		OrganizationID:   d.OrganizationID,
	}
	mustCreate(t, db, &m)
	return m
}

// CreateUser stores an active user. A nil orgID creates a super admin.
func CreateUser(t *testing.T, db *gorm.DB, email, password string, orgID *int64, role auth.OrgRole) user.User {
	t.Helper()
	hash, err := user.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := user.User{Email: email, PasswordHash: hash, FullName: email, Active: true}
	if orgID == nil {
		u.UserType = auth.UserTypeSuperAdmin
	} else {
		u.UserType = auth.UserTypeOrgUser
		u.OrganizationID = orgID
		u.OrgRole = &role
	}
	mustCreate(t, db, &u)
	return u
}

func SuperAdmin() auth.CurrentUser {
	return auth.CurrentUser{ID: 1, Email: "root@ecoenergy.test", UserType: auth.UserTypeSuperAdmin}
}

func OrgUser(orgID int64, role auth.OrgRole) auth.CurrentUser {
	return auth.CurrentUser{
		ID:             100 + orgID,
		Email:          "user@ecoenergy.test",
		UserType:       auth.UserTypeOrgUser,
		OrganizationID: &orgID,
		OrgRole:        &role,
	}
}

// Router returns an engine that authenticates every request as cu.
func Router(cu auth.CurrentUser) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(auth.ContextUserKey, cu)
		c.Next()
	})
	return r
}

// Do sends body (JSON-encoded unless it is already a reader) and records the response.
func Do(h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		rd = b
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
