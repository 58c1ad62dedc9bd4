package dashboard

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/alert"
	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/measurement"
	"github.com/username/ecoenergy-api/internal/tenant"
	"github.com/username/ecoenergy-api/internal/zone"
)

const (
	latestMeasurements = 10
	recentAlerts       = 5
	alertWindow        = 7 * 24 * time.Hour
)

// Bucket is one group of a device breakdown.
type Bucket struct {
	Name  string `json:"name" gorm:"column:name"`
	Count int64  `json:"count" gorm:"column:count"`
}

type SeverityCount struct {
	Severity alert.Severity `json:"severity" gorm:"column:severity"`
	Count    int64          `json:"count" gorm:"column:count"`
}

type Stats struct {
	TotalDevices       int64                 `json:"total_devices"`
	TotalZones         int64                 `json:"total_zones"`
	TotalMeasurements  int64                 `json:"total_measurements"`
	ActiveAlerts       int64                 `json:"active_alerts"`
	AvgConsumption     decimal.NullDecimal   `json:"avg_consumption"`
	DevicesByCategory  []Bucket              `json:"devices_by_category"`
	DevicesByZone      []Bucket              `json:"devices_by_zone"`
	WeeklyAlerts       []SeverityCount       `json:"weekly_alerts"`
	LatestMeasurements []measurement.Summary `json:"latest_measurements"`
	RecentAlerts       []alert.Summary       `json:"recent_alerts"`
}

type Service struct {
	Devices      *device.Service
	Zones        *zone.Service
	Measurements *measurement.Service
	Alerts       *alert.Service
	Log          *zap.Logger
	now          func() time.Time
}

func NewService(devices *device.Service, zones *zone.Service, measurements *measurement.Service, alerts *alert.Service, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		Devices:      devices,
		Zones:        zones,
		Measurements: measurements,
		Alerts:       alerts,
		Log:          log,
		now:          time.Now,
	}
}

// Stats aggregates everything visible in scope. A principal without an
// organization gets ErrNoOrganization instead of empty numbers.
func (s *Service) Stats(ctx context.Context, scope tenant.Scope) (*Stats, error) {
	if scope.IsNone() {
		return nil, apperr.ErrNoOrganization
	}

	st := &Stats{}
	unresolved := false

	counts := []struct {
		q   *gorm.DB
		dst *int64
	}{
		{s.Devices.Query(ctx, scope, device.Filter{}), &st.TotalDevices},
		{s.Zones.Query(ctx, scope), &st.TotalZones},
		{s.Measurements.Query(ctx, scope, measurement.Filter{}), &st.TotalMeasurements},
		{s.Alerts.Query(ctx, scope, alert.Filter{IsResolved: &unresolved}), &st.ActiveAlerts},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}

	var agg struct {
		Avg decimal.NullDecimal
	}
	err := s.Measurements.Query(ctx, scope, measurement.Filter{}).
		Select("AVG(measurements.consumption_value) AS avg").
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	if agg.Avg.Valid {
		agg.Avg.Decimal = agg.Avg.Decimal.Round(2)
	}
	st.AvgConsumption = agg.Avg

	if st.DevicesByCategory, err = s.devicesBy(ctx, scope, "categories.name"); err != nil {
		return nil, err
	}
	if st.DevicesByZone, err = s.devicesBy(ctx, scope, "zones.name"); err != nil {
		return nil, err
	}
	if st.WeeklyAlerts, err = s.weeklyAlerts(ctx, scope); err != nil {
		return nil, err
	}

	if st.LatestMeasurements, err = s.Measurements.Latest(ctx, scope, measurement.Filter{}, latestMeasurements); err != nil {
		return nil, err
	}
	if st.RecentAlerts, err = s.Alerts.Latest(ctx, scope, alert.Filter{IsResolved: &unresolved}, recentAlerts); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) devicesBy(ctx context.Context, scope tenant.Scope, column string) ([]Bucket, error) {
	rows := []Bucket{}
	err := s.Devices.Query(ctx, scope, device.Filter{}).
		Select(column + " AS name, COUNT(*) AS count").
		Group(column).
		Order("count DESC, name").
		Scan(&rows).Error
	return rows, err
}

// weeklyAlerts counts the alerts of the last seven days per severity.
// Every severity is present, most urgent first.
func (s *Service) weeklyAlerts(ctx context.Context, scope tenant.Scope) ([]SeverityCount, error) {
	var rows []SeverityCount
	err := s.Alerts.Query(ctx, scope, alert.Filter{}).
		Where("alerts.created_at >= ?", s.now().Add(-alertWindow)).
		Select("alerts.severity AS severity, COUNT(*) AS count").
		Group("alerts.severity").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	bySeverity := make(map[alert.Severity]int64, len(rows))
	for _, r := range rows {
		bySeverity[r.Severity] = r.Count
	}
	out := make([]SeverityCount, 0, len(alert.Severities))
	for _, sev := range alert.Severities {
		out = append(out, SeverityCount{Severity: sev, Count: bySeverity[sev]})
	}
	return out, nil
}
