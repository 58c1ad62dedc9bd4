package organization

import "github.com/username/ecoenergy-api/internal/model"

type Organization struct {
	ID      int64  `json:"id" gorm:"column:id;primaryKey"`
	Name    string `json:"name" gorm:"column:name;size:200;not null"`
	Email   string `json:"email" gorm:"column:email;size:254"`
	Phone   string `json:"phone" gorm:"column:phone;size:20"`
	Address string `json:"address" gorm:"column:address"`
	model.Base
}

func (Organization) TableName() string {
	return "organizations"
}

// Input is the writable part of an organization.
type Input struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// AdminInput describes the first user created together with an organization.
type AdminInput struct {
	Email           string `json:"admin_email"`
	Password        string `json:"admin_password"`
	PasswordConfirm string `json:"admin_password_confirm"`
	FullName        string `json:"admin_full_name"`
	Phone           string `json:"admin_phone"`
	Position        string `json:"admin_position"`
}

// Summary is the API view with dependent counts.
type Summary struct {
	Organization
	DeviceCount int64 `json:"device_count" gorm:"column:device_count"`
	ZoneCount   int64 `json:"zone_count" gorm:"column:zone_count"`
}
