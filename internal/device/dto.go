package device

import (
	"github.com/shopspring/decimal"
)

// ========= DTO REQUEST & RESPONSE =========

// Input is the writable part of a device. OrganizationID is only read for superusers.
type Input struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	MaxConsumption decimal.Decimal `json:"max_consumption"`
	CategoryID     int64           `json:"category_id"`
	ZoneID         int64           `json:"zone_id"`
	OrganizationID *int64          `json:"organization_id"`
}

func (d *Device) Input() Input {
	orgID := d.OrganizationID
	return Input{
		Name:           d.Name,
		Description:    d.Description,
		MaxConsumption: d.MaxConsumption,
		CategoryID:     d.CategoryID,
		ZoneID:         d.ZoneID,
		OrganizationID: &orgID,
	}
}

// Filter narrows the device list. Zero ids mean "any".
type Filter struct {
	CategoryID int64
	ZoneID     int64
	Search     string
	Sort       string
}

// Summary is a list row.
type Summary struct {
	Device
	CategoryName     string `json:"category_name" gorm:"column:category_name"`
	ZoneName         string `json:"zone_name" gorm:"column:zone_name"`
	OrganizationName string `json:"organization_name" gorm:"column:organization_name"`
}

// Detail is the single-device view.
type Detail struct {
	Summary
	MeasurementCount int64               `json:"measurement_count" gorm:"column:measurement_count"`
	ActiveAlertCount int64               `json:"active_alert_count" gorm:"column:active_alert_count"`
	AvgConsumption   decimal.NullDecimal `json:"avg_consumption" gorm:"column:avg_consumption"`
}

// Stats aggregates the active measurements of a device.
type Stats struct {
	DeviceID           int64               `json:"device_id"`
	DeviceName         string              `json:"device_name"`
	MaxConsumption     decimal.Decimal     `json:"max_consumption"`
	TotalMeasurements  int64               `json:"total_measurements"`
	Average            decimal.NullDecimal `json:"average"`
	Max                decimal.NullDecimal `json:"max"`
	Min                decimal.NullDecimal `json:"min"`
	TimesExceededLimit int64               `json:"times_exceeded_limit"`
	PercentageExceeded decimal.Decimal     `json:"percentage_exceeded"`
}

// SavedResponse is the create/update body: the device plus non-blocking warnings.
type SavedResponse struct {
	*Device
	Warnings []string `json:"warnings,omitempty"`
}
