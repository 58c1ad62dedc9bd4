package alert_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/username/ecoenergy-api/internal/alert"
	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/tenant"
	"github.com/username/ecoenergy-api/internal/testutil"
)

var ctx = context.Background()

func newService(t *testing.T) (*alert.Service, func() (int64, device.Device)) {
	db := testutil.NewDB(t)
	svc := alert.NewService(db, device.NewService(db, nil), nil)
	n := 0
	mk := func() (int64, device.Device) {
		n++
		org := testutil.CreateOrganization(t, db, fmt.Sprintf("Org %d", n))
		return org.ID, testutil.CreateDevice(t, db, org.ID, fmt.Sprintf("Device %d", n), "3.5")
	}
	return svc, mk
}

func TestCreateManual(t *testing.T) {
	svc, mk := newService(t)
	orgID, d := mk()

	a, err := svc.Create(ctx, tenant.Organization(orgID), alert.Input{DeviceID: d.ID, Severity: "critical", Message: " Revisar cableado "})
	require.NoError(t, err)
	assert.Equal(t, alert.SeverityCritical, a.Severity)
	assert.Equal(t, "Revisar cableado", a.Message)
	assert.Equal(t, orgID, a.OrganizationID)
	assert.Nil(t, a.ResolvedAt)

	_, err = svc.Create(ctx, tenant.Organization(orgID), alert.Input{DeviceID: d.ID, Severity: "SEVERE"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Fields.Has("severity"))
	assert.True(t, ve.Fields.Has("message"))
}

func TestCreate_ForeignDevice(t *testing.T) {
	svc, mk := newService(t)
	orgA, _ := mk()
	_, foreign := mk()

	_, err := svc.Create(ctx, tenant.Organization(orgA), alert.Input{DeviceID: foreign.ID, Severity: "LOW", Message: "x"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "DeviceNotFound", ve.Fields["device_id"].ID)
}

func TestCreate_MeasurementOfAnotherDevice(t *testing.T) {
	db := testutil.NewDB(t)
	svc := alert.NewService(db, device.NewService(db, nil), nil)
	org := testutil.CreateOrganization(t, db, "Org")
	d1 := testutil.CreateDevice(t, db, org.ID, "Uno", "3.5")
	d2 := testutil.CreateDevice(t, db, org.ID, "Dos", "3.5")
	m := testutil.CreateMeasurement(t, db, d2, "1", time.Now())

	_, err := svc.Create(ctx, tenant.All(), alert.Input{DeviceID: d1.ID, MeasurementID: &m.ID, Severity: "LOW", Message: "x"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "AlertMeasurementMismatch", ve.Fields["measurement_id"].ID)
}

func TestResolve(t *testing.T) {
	svc, mk := newService(t)
	orgID, d := mk()
	a, err := svc.Create(ctx, tenant.All(), alert.Input{DeviceID: d.ID, Severity: "HIGH", Message: "x"})
	require.NoError(t, err)

	first, err := svc.Resolve(ctx, tenant.Organization(orgID), a.ID)
	require.NoError(t, err)
	assert.True(t, first.IsResolved)
	require.NotNil(t, first.ResolvedAt)

	again, err := svc.Resolve(ctx, tenant.Organization(orgID), a.ID)
	require.NoError(t, err)
	assert.True(t, again.IsResolved)
	assert.WithinDuration(t, *first.ResolvedAt, *again.ResolvedAt, time.Millisecond, "resolving twice keeps the first timestamp")

	_, err = svc.Resolve(ctx, tenant.Organization(orgID+100), a.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListFiltersAndSort(t *testing.T) {
	svc, mk := newService(t)
	orgID, d := mk()
	scope := tenant.Organization(orgID)
	for _, sev := range []string{"LOW", "CRITICAL", "MEDIUM", "HIGH"} {
		_, err := svc.Create(ctx, scope, alert.Input{DeviceID: d.ID, Severity: sev, Message: "alerta " + sev})
		require.NoError(t, err)
	}
	low, err := svc.All(ctx, scope, alert.Filter{Severity: alert.SeverityLow})
	require.NoError(t, err)
	require.Len(t, low, 1)
	_, err = svc.Resolve(ctx, scope, low[0].ID)
	require.NoError(t, err)

	rows, total, err := svc.List(ctx, scope, alert.Filter{Sort: "-severity"}, pagination.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, rows, 4)
	assert.Equal(t, alert.SeverityCritical, rows[0].Severity)
	assert.Equal(t, alert.SeverityLow, rows[3].Severity)
	assert.Equal(t, d.Name, rows[0].DeviceName)

	open := false
	_, total, err = svc.List(ctx, scope, alert.Filter{IsResolved: &open}, pagination.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	_, total, err = svc.List(ctx, tenant.Organization(orgID+100), alert.Filter{}, pagination.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestHandler(t *testing.T) {
	svc, mk := newService(t)
	orgID, d := mk()
	a, err := svc.Create(ctx, tenant.All(), alert.Input{DeviceID: d.ID, Severity: "HIGH", Message: "x"})
	require.NoError(t, err)

	h := alert.NewHandler(svc)
	operator := testutil.Router(testutil.OrgUser(orgID, auth.OrgRoleOperator))
	h.RegisterRoutes(operator)

	w := testutil.Do(operator, http.MethodPost, fmt.Sprintf("/alerts/%d/resolve", a.ID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "operators cannot change alerts")

	w = testutil.Do(operator, http.MethodGet, fmt.Sprintf("/devices/%d/alerts", d.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, gjson.Get(w.Body.String(), "data").Array(), 1)

	admin := testutil.Router(testutil.OrgUser(orgID, auth.OrgRoleAdmin))
	h.RegisterRoutes(admin)

	w = testutil.Do(admin, http.MethodPost, fmt.Sprintf("/alerts/%d/resolve", a.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "success", gjson.Get(w.Body.String(), "status").String())

	w = testutil.Do(admin, http.MethodGet, "/alerts?is_resolved=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "pagination.total").Int())

	w = testutil.Do(admin, http.MethodGet, "/alerts?severity=URGENT", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.Do(admin, http.MethodDelete, fmt.Sprintf("/alerts/%d", a.ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
