package alert

import (
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/username/ecoenergy-api/internal/model"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities in descending order of urgency.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range Severities {
		if v == sev {
			return sev, true
		}
	}
	return "", false
}

// Model untuk tabel alerts
type Alert struct {
	ID             int64             `json:"id" gorm:"column:id;primaryKey"`
	DeviceID       int64             `json:"device_id" gorm:"column:device_id;not null;index"`
	MeasurementID  *int64            `json:"measurement_id" gorm:"column:measurement_id;index"`
	Severity       Severity          `json:"severity" gorm:"column:severity;size:10;not null"`
	Message        string            `json:"message" gorm:"column:message;not null"`
	Details        datatypes.JSONMap `json:"details" gorm:"column:details"`
	IsResolved     bool              `json:"is_resolved" gorm:"column:is_resolved;not null;default:false;index"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty" gorm:"column:resolved_at"`
	OrganizationID int64             `json:"organization_id" gorm:"column:organization_id;not null;index"`
	model.Base
}

func (Alert) TableName() string {
	return "alerts"
}

// Summary is a list row with the device name.
type Summary struct {
	Alert
	DeviceName string `json:"device_name" gorm:"column:device_name"`
}
