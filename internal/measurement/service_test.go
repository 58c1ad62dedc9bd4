package measurement_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/alert"
	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/measurement"
	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/tenant"
	"github.com/username/ecoenergy-api/internal/testutil"
)

var ctx = context.Background()

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) (*gorm.DB, *measurement.Service) {
	db := testutil.NewDB(t)
	return db, measurement.NewService(db, device.NewService(db, nil), nil)
}

func countAlerts(t *testing.T, db *gorm.DB) int64 {
	var n int64
	require.NoError(t, db.Model(&alert.Alert{}).Count(&n).Error)
	return n
}

func TestCreate_ExceedingValueRaisesAlert(t *testing.T) {
	db, svc := newService(t)
	org := testutil.CreateOrganization(t, db, "EcoTech")
	d := testutil.CreateDevice(t, db, org.ID, "Compresor", "3.5")

	var observed []*alert.Alert
	svc.Observe(alert.ObserverFunc(func(_ context.Context, a *alert.Alert) {
		observed = append(observed, a)
	}))

	when := time.Now().Add(-time.Minute)
	out, err := svc.Create(ctx, tenant.Organization(org.ID), measurement.Input{DeviceID: d.ID, ConsumptionValue: dec("4.0"), MeasurementDate: &when})
	require.NoError(t, err)
	assert.True(t, out.Measurement.ExceedsLimit)
	assert.Equal(t, org.ID, out.Measurement.OrganizationID)
	assert.Equal(t, "Compresor", out.Measurement.DeviceName)

	require.NotNil(t, out.Alert)
	assert.Equal(t, alert.SeverityHigh, out.Alert.Severity)
	assert.Equal(t, out.Measurement.ID, *out.Alert.MeasurementID)
	assert.Equal(t, d.ID, out.Alert.DeviceID)
	assert.Contains(t, out.Alert.Message, "4.00")
	assert.Equal(t, int64(1), countAlerts(t, db))

	require.Len(t, observed, 1)
	assert.Equal(t, out.Alert.ID, observed[0].ID)
}

func TestCreate_WithinLimitNoAlert(t *testing.T) {
	db, svc := newService(t)
	org := testutil.CreateOrganization(t, db, "EcoTech")
	d := testutil.CreateDevice(t, db, org.ID, "Compresor", "3.5")

	for _, v := range []string{"2.0", "3.5"} {
		out, err := svc.Create(ctx, tenant.Organization(org.ID), measurement.Input{DeviceID: d.ID, ConsumptionValue: dec(v)})
		require.NoError(t, err)
		assert.Nil(t, out.Alert, v)
		assert.False(t, out.Measurement.ExceedsLimit, v)
		assert.WithinDuration(t, time.Now(), out.Measurement.MeasurementDate, 5*time.Second, "missing date defaults to now")
	}
	assert.Zero(t, countAlerts(t, db))
}

func TestCreate_Validation(t *testing.T) {
	db, svc := newService(t)
	org := testutil.CreateOrganization(t, db, "EcoTech")
	other := testutil.CreateOrganization(t, db, "GreenCorp")
	d := testutil.CreateDevice(t, db, org.ID, "Compresor", "3.5")
	foreign := testutil.CreateDevice(t, db, other.ID, "Ajeno", "3.5")
	future := time.Now().Add(time.Hour)

	cases := []struct {
		name  string
		scope tenant.Scope
		in    measurement.Input
		field string
		id    string
	}{
		{"zero value", tenant.Organization(org.ID), measurement.Input{DeviceID: d.ID, ConsumptionValue: decimal.Zero}, "consumption_value", "ConsumptionPositive"},
		{"too high", tenant.Organization(org.ID), measurement.Input{DeviceID: d.ID, ConsumptionValue: dec("10000.01")}, "consumption_value", "ConsumptionTooHigh"},
		{"future date", tenant.Organization(org.ID), measurement.Input{DeviceID: d.ID, ConsumptionValue: dec("1"), MeasurementDate: &future}, "measurement_date", "MeasurementDateFuture"},
		{"missing device", tenant.Organization(org.ID), measurement.Input{ConsumptionValue: dec("1")}, "device_id", "Required"},
		{"foreign device", tenant.Organization(org.ID), measurement.Input{DeviceID: foreign.ID, ConsumptionValue: dec("1")}, "device_id", "DeviceNotFound"},
		{"superuser org mismatch", tenant.All(), measurement.Input{DeviceID: d.ID, ConsumptionValue: dec("1"), OrganizationID: &other.ID}, "device_id", "DeviceOrganizationMismatch"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.scope, tc.in)
			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.id, ve.Fields[tc.field].ID)
		})
	}

	_, err := svc.Create(ctx, tenant.None(), measurement.Input{DeviceID: d.ID, ConsumptionValue: dec("1")})
	assert.ErrorIs(t, err, apperr.ErrNoOrganization)
}

func TestUpdate_DoesNotReevaluate(t *testing.T) {
	db, svc := newService(t)
	org := testutil.CreateOrganization(t, db, "EcoTech")
	d := testutil.CreateDevice(t, db, org.ID, "Compresor", "3.5")
	m := testutil.CreateMeasurement(t, db, d, "1.0", time.Now().Add(-time.Hour))

	in := m.Input()
	in.ConsumptionValue = dec("9")
	out, err := svc.Update(ctx, tenant.All(), m.ID, in)
	require.NoError(t, err)
	assert.True(t, out.ExceedsLimit)
	assert.Zero(t, countAlerts(t, db))
}

func TestListDateRange(t *testing.T) {
	db, svc := newService(t)
	org := testutil.CreateOrganization(t, db, "EcoTech")
	d := testutil.CreateDevice(t, db, org.ID, "Compresor", "3.5")
	day := func(s string) time.Time {
		tm, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return tm
	}
	testutil.CreateMeasurement(t, db, d, "1", day("2025-01-01T08:00:00Z"))
	testutil.CreateMeasurement(t, db, d, "5", day("2025-01-02T23:30:00Z"))
	testutil.CreateMeasurement(t, db, d, "2", day("2025-01-03T00:00:01Z"))

	from, err := measurement.ParseDate("2025-01-02T00:00:00Z", false)
	require.NoError(t, err)
	to, err := measurement.ParseDate("2025-01-02T23:59:59Z", true)
	require.NoError(t, err)

	rows, total, err := svc.List(ctx, tenant.Organization(org.ID), measurement.Filter{From: from, To: to}, pagination.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].ExceedsLimit)

	rows, err = svc.ForDevice(ctx, tenant.All(), d.ID, measurement.Filter{}, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].MeasurementDate.After(rows[1].MeasurementDate), "newest first")
}

func TestHandler(t *testing.T) {
	db, svc := newService(t)
	org := testutil.CreateOrganization(t, db, "EcoTech")
	d := testutil.CreateDevice(t, db, org.ID, "Compresor", "3.5")

	h := measurement.NewHandler(svc)
	r := testutil.Router(testutil.OrgUser(org.ID, auth.OrgRoleOperator))
	h.RegisterRoutes(r)

	w := testutil.Do(r, http.MethodPost, "/measurements", map[string]interface{}{
		"device_id":         d.ID,
		"consumption_value": 4.0,
		"notes":             "lectura manual",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, gjson.Get(w.Body.String(), "measurement.exceeds_limit").Bool())
	assert.Equal(t, "HIGH", gjson.Get(w.Body.String(), "alert.severity").String())
	id := gjson.Get(w.Body.String(), "measurement.id").Int()

	w = testutil.Do(r, http.MethodPost, "/measurements", map[string]interface{}{"device_id": d.ID, "consumption_value": 2.0})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, gjson.Null, gjson.Get(w.Body.String(), "alert").Type)

	w = testutil.Do(r, http.MethodGet, fmt.Sprintf("/devices/%d/measurements", d.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, gjson.Get(w.Body.String(), "data").Array(), 2)

	w = testutil.Do(r, http.MethodGet, "/measurements?date_from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.Do(r, http.MethodDelete, fmt.Sprintf("/measurements/%d", id), nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "operators only add and view")
}
