package user

import (
	"time"

	"github.com/username/ecoenergy-api/internal/auth"
)

type UserType = auth.UserType
type OrgRole = auth.OrgRole

const (
	UserTypeSuperAdmin = auth.UserTypeSuperAdmin
	UserTypeOrgUser    = auth.UserTypeOrgUser

	OrgRoleAdmin    = auth.OrgRoleAdmin
	OrgRoleOperator = auth.OrgRoleOperator
	OrgRoleViewer   = auth.OrgRoleViewer
)

type User struct {
	ID             int64     `json:"id" gorm:"column:id;primaryKey"`
	Email          string    `json:"email" gorm:"column:email;size:254;uniqueIndex"`
	PasswordHash   string    `json:"-" gorm:"column:password_hash"`
	FullName       string    `json:"full_name" gorm:"column:full_name"`
	UserType       UserType  `json:"user_type" gorm:"column:user_type"`
	OrganizationID *int64    `json:"organization_id,omitempty" gorm:"column:organization_id;index"`
	OrgRole        *OrgRole  `json:"org_role,omitempty" gorm:"column:org_role"`
	Phone          string    `json:"phone" gorm:"column:phone;size:20"`
	Position       string    `json:"position" gorm:"column:position;size:100"`
	Address        string    `json:"address" gorm:"column:address"`
	AvatarPath     string    `json:"avatar" gorm:"column:avatar_path"`
	Active         bool      `json:"active" gorm:"column:active"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsOrgAdmin() bool {
	return u.UserType == UserTypeOrgUser && u.OrgRole != nil && *u.OrgRole == OrgRoleAdmin
}

func (u *User) IsSuperAdmin() bool {
	return u.UserType == UserTypeSuperAdmin
}

// CurrentUser builds the principal stored in tokens and sessions.
func (u *User) CurrentUser() auth.CurrentUser {
	return auth.CurrentUser{
		ID:             u.ID,
		Email:          u.Email,
		FullName:       u.FullName,
		UserType:       u.UserType,
		OrganizationID: u.OrganizationID,
		OrgRole:        u.OrgRole,
	}
}

// PasswordResetToken is a single-use token for the password reset flow.
type PasswordResetToken struct {
	ID        int64      `gorm:"column:id;primaryKey"`
	UserID    int64      `gorm:"column:user_id;index"`
	TokenHash string     `gorm:"column:token_hash;size:64;uniqueIndex"`
	ExpiresAt time.Time  `gorm:"column:expires_at"`
	UsedAt    *time.Time `gorm:"column:used_at"`
	CreatedAt time.Time  `gorm:"column:created_at"`
}

func (PasswordResetToken) TableName() string {
	return "password_reset_tokens"
}
