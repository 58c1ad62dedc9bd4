package category

import "github.com/username/ecoenergy-api/internal/model"

type Category struct {
	ID             int64  `json:"id" gorm:"column:id;primaryKey"`
	Name           string `json:"name" gorm:"column:name;size:100;not null"`
	Description    string `json:"description" gorm:"column:description"`
	OrganizationID int64  `json:"organization_id" gorm:"column:organization_id;not null;index"`
	model.Base
}

func (Category) TableName() string {
	return "categories"
}

// Input is the writable part of a category. OrganizationID is only read for superusers.
type Input struct {
	Name           string `json:"name" form:"name"`
	Description    string `json:"description" form:"description"`
	OrganizationID *int64 `json:"organization_id" form:"organization_id"`
}

func (c *Category) Input() Input {
	orgID := c.OrganizationID
	return Input{Name: c.Name, Description: c.Description, OrganizationID: &orgID}
}

// Summary adds the number of active devices and the organization name.
type Summary struct {
	Category
	OrganizationName string `json:"organization_name" gorm:"column:organization_name"`
	DeviceCount      int64  `json:"device_count" gorm:"column:device_count"`
}
