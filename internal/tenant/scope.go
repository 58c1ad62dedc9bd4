package tenant

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/model"
)

type kind int

const (
	kindNone kind = iota
	kindAll
	kindOrganization
)

// Scope is the visibility of a principal: everything, one organization, or nothing.
// The zero value sees nothing.
type Scope struct {
	kind  kind
	orgID int64
}

func All() Scope { return Scope{kind: kindAll} }
func None() Scope { return Scope{kind: kindNone} }
func Organization(id int64) Scope { return Scope{kind: kindOrganization, orgID: id} }

// For resolves the scope of a logged-in user.
func For(cu auth.CurrentUser) Scope {
	if cu.IsSuperAdmin() {
		return All()
	}
	if cu.OrganizationID != nil {
		return Organization(*cu.OrganizationID)
	}
	return None()
}

// FromContext resolves the scope of the request principal; anonymous requests see nothing.
func FromContext(c *gin.Context) Scope {
	cu, ok := auth.GetCurrentUser(c)
	if !ok {
		return None()
	}
	return For(cu)
}

func (s Scope) Unrestricted() bool { return s.kind == kindAll }

func (s Scope) IsNone() bool { return s.kind == kindNone }

// OrganizationID returns the single organization of an organization scope.
func (s Scope) OrganizationID() (int64, bool) {
	return s.orgID, s.kind == kindOrganization
}

// Allows reports whether a row of organization orgID is visible.
func (s Scope) Allows(orgID int64) bool {
	switch s.kind {
	case kindAll:
		return true
	case kindOrganization:
		return s.orgID == orgID
	default:
		return false
	}
}

// Apply filters db to active rows of table visible in the scope.
// table may be empty when the query is not joined.
func (s Scope) Apply(db *gorm.DB, table string) *gorm.DB {
	col := func(name string) string {
		if table == "" {
			return name
		}
		return table + "." + name
	}

	db = db.Where(col("state")+" = ?", model.StateActive)
	switch s.kind {
	case kindAll:
		return db
	case kindOrganization:
		return db.Where(col("organization_id")+" = ?", s.orgID)
	default:
		// fail closed
		return db.Where("1 = 0")
	}
}

// Func returns Apply as a gorm scope for db.Scopes(...).
func (s Scope) Func(table string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return s.Apply(db, table)
	}
}

// ResolveOrganization picks the organization a new row belongs to.
// Organization users always write into their own organization; superusers must name one.
func (s Scope) ResolveOrganization(requested *int64) (int64, error) {
	switch s.kind {
	case kindOrganization:
		return s.orgID, nil
	case kindAll:
		if requested == nil || *requested <= 0 {
			return 0, apperr.Invalid("organization_id", "OrganizationRequired", nil)
		}
		return *requested, nil
	default:
		return 0, apperr.ErrNoOrganization
	}
}
