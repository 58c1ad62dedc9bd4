package model

import (
	"time"

	"gorm.io/gorm"
)

// State is the soft-delete marker shared by every domain table.
type State string

const (
	StateActive   State = "ACTIVE"
	StateInactive State = "INACTIVE"
)

func (s State) Valid() bool {
	return s == StateActive || s == StateInactive
}

// Base dikomposisikan ke semua entity domain (organization, category, zone, device, measurement, alert).
type Base struct {
	State     State      `json:"state" gorm:"column:state;type:varchar(10);not null;default:ACTIVE;index"`
	CreatedAt time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"column:deleted_at"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.State == "" {
		b.State = StateActive
	}
	return nil
}

func (b Base) IsActive() bool {
	return b.State == StateActive
}

// SoftDeleteColumns is the update map used to flip a row to INACTIVE.
func SoftDeleteColumns(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"state":      StateInactive,
		"deleted_at": now,
		"updated_at": now,
	}
}

// NameTaken reports whether an active row of table in organization orgID already uses name.
// The comparison ignores case; excludeID skips the row being edited.
func NameTaken(tx *gorm.DB, table string, orgID int64, name string, excludeID int64) (bool, error) {
	var n int64
	q := tx.Table(table).
		Where("organization_id = ? AND state = ?", orgID, StateActive).
		Where("LOWER(name) = LOWER(?)", name)
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
