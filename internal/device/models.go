package device

import (
	"github.com/shopspring/decimal"

	"github.com/username/ecoenergy-api/internal/model"
)

// SuspiciousMaxConsumption is the limit above which a max consumption is accepted with a warning.
var SuspiciousMaxConsumption = decimal.NewFromInt(1000)

// Tabel devices. Semua nilai konsumsi dalam kW.
type Device struct {
	ID             int64           `json:"id" gorm:"column:id;primaryKey"`
	Name           string          `json:"name" gorm:"column:name;size:100;not null"`
	Description    string          `json:"description" gorm:"column:description"`
	MaxConsumption decimal.Decimal `json:"max_consumption" gorm:"column:max_consumption;type:decimal(10,2);not null"`
	CategoryID     int64           `json:"category_id" gorm:"column:category_id;not null;index"`
	ZoneID         int64           `json:"zone_id" gorm:"column:zone_id;not null;index"`
	OrganizationID int64           `json:"organization_id" gorm:"column:organization_id;not null;index"`
	model.Base
}

func (Device) TableName() string {
	return "devices"
}
