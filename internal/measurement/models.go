package measurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/ecoenergy-api/internal/alert"
	"github.com/username/ecoenergy-api/internal/model"
)

var (
	// MaxConsumptionValue is the sanity bound of a single reading, in kW.
	MaxConsumptionValue = decimal.NewFromInt(10000)
)

type Measurement struct {
	ID               int64           `json:"id" gorm:"column:id;primaryKey"`
	DeviceID         int64           `json:"device_id" gorm:"column:device_id;not null;index"`
	ConsumptionValue decimal.Decimal `json:"consumption_value" gorm:"column:consumption_value;type:decimal(10,2);not null"`
	MeasurementDate  time.Time       `json:"measurement_date" gorm:"column:measurement_date;not null;index"`
	Notes            string          `json:"notes" gorm:"column:notes"`
	OrganizationID   int64           `json:"organization_id" gorm:"column:organization_id;not null;index"`
	model.Base
}

func (Measurement) TableName() string {
	return "measurements"
}

// Summary is a list row: the measurement, its device and whether it exceeded the limit.
type Summary struct {
	Measurement
	DeviceName           string          `json:"device_name" gorm:"column:device_name"`
	DeviceMaxConsumption decimal.Decimal `json:"device_max_consumption" gorm:"column:device_max_consumption"`
	ExceedsLimit         bool            `json:"exceeds_limit" gorm:"-"`
}

func (s *Summary) fill() {
	s.ExceedsLimit = alert.Exceeds(s.ConsumptionValue, s.DeviceMaxConsumption)
}

// Input is the writable part of a measurement. A nil date means now.
type Input struct {
	DeviceID         int64           `json:"device_id"`
	ConsumptionValue decimal.Decimal `json:"consumption_value"`
	MeasurementDate  *time.Time      `json:"measurement_date"`
	Notes            string          `json:"notes"`
	OrganizationID   *int64          `json:"organization_id"`
}

func (m *Measurement) Input() Input {
	date := m.MeasurementDate
	return Input{
		DeviceID:         m.DeviceID,
		ConsumptionValue: m.ConsumptionValue,
		MeasurementDate:  &date,
		Notes:            m.Notes,
	}
}

// Filter narrows the measurement list. From and To are inclusive.
type Filter struct {
	DeviceID int64
	From     *time.Time
	To       *time.Time
	Search   string
	Sort     string
}

// Created is the body of a successful POST: the measurement and the alert it raised, if any.
type Created struct {
	Measurement *Summary     `json:"measurement"`
	Alert       *alert.Alert `json:"alert"`
}
