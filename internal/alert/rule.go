package alert

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/username/ecoenergy-api/internal/i18n"
)

// Exceeds is the threshold rule: strictly greater than the device limit.
func Exceeds(value, limit decimal.Decimal) bool {
	return value.GreaterThan(limit)
}

// Reading is what the rule needs to know about a new measurement.
type Reading struct {
	DeviceID       int64
	MeasurementID  int64
	OrganizationID int64
	Value          decimal.Decimal
	Limit          decimal.Decimal
}

// Evaluate returns the HIGH alert for r, or nil when the value is within the limit.
// The message is stored in the default language.
func Evaluate(r Reading) *Alert {
	if !Exceeds(r.Value, r.Limit) {
		return nil
	}
	measurementID := r.MeasurementID
	return &Alert{
		DeviceID:      r.DeviceID,
		MeasurementID: &measurementID,
		Severity:      SeverityHigh,
		Message: i18n.Tr(i18n.DefaultLang(), i18n.M("AlertConsumptionExceeded", i18n.Data{
			"Value": r.Value.StringFixed(2),
			"Limit": r.Limit.StringFixed(2),
		})),
		Details: datatypes.JSONMap{
			"consumption_value": r.Value.StringFixed(2),
			"max_consumption":   r.Limit.StringFixed(2),
			"unit":              "kW",
		},
		OrganizationID: r.OrganizationID,
	}
}

// Observer is notified after an automatic alert has been committed.
type Observer interface {
	AlertRaised(ctx context.Context, a *Alert)
}

type ObserverFunc func(ctx context.Context, a *Alert)

func (f ObserverFunc) AlertRaised(ctx context.Context, a *Alert) { f(ctx, a) }

// LogObserver writes one structured line per raised alert.
func LogObserver(log *zap.Logger) Observer {
	return ObserverFunc(func(_ context.Context, a *Alert) {
		log.Warn("consumption alert raised",
			zap.Int64("alert_id", a.ID),
			zap.Int64("device_id", a.DeviceID),
			zap.Int64p("measurement_id", a.MeasurementID),
			zap.Int64("organization_id", a.OrganizationID),
			zap.String("severity", string(a.Severity)),
			zap.String("message", a.Message),
		)
	})
}
