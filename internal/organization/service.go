package organization

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/model"
	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/tenant"
	"github.com/username/ecoenergy-api/internal/user"
)

var ListSpec = pagination.Spec{
	SearchColumns: []string{"organizations.name", "organizations.email"},
	Sorts: map[string]string{
		"name":       "organizations.name",
		"created_at": "organizations.created_at",
	},
	DefaultSort: "name",
	PerPageKey:  "organizations_per_page",
}

const summaryColumns = `organizations.*,
	(SELECT COUNT(*) FROM devices WHERE devices.organization_id = organizations.id AND devices.state = 'ACTIVE') AS device_count,
	(SELECT COUNT(*) FROM zones WHERE zones.organization_id = organizations.id AND zones.state = 'ACTIVE') AS zone_count`

type Service struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{DB: db, Log: log}
}

// visible filters organizations by id: the tenant of an organization row is the row itself.
func visible(db *gorm.DB, scope tenant.Scope) *gorm.DB {
	db = db.Where("organizations.state = ?", model.StateActive)
	if scope.Unrestricted() {
		return db
	}
	if id, ok := scope.OrganizationID(); ok {
		return db.Where("organizations.id = ?", id)
	}
	return db.Where("1 = 0")
}

// List returns one API page of organizations with their device and zone counts.
func (s *Service) List(ctx context.Context, scope tenant.Scope, search, sort string, p pagination.Pagination) ([]Summary, int64, error) {
	base := ListSpec.Search(visible(s.DB.WithContext(ctx).Model(&Organization{}), scope), search)

	var rows []Summary
	total, err := pagination.Fetch(base, ListSpec.Order(sort), p.Limit, p.Offset, func(q *gorm.DB) error {
		return q.Select(summaryColumns).Find(&rows).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (s *Service) Get(ctx context.Context, scope tenant.Scope, id int64) (*Organization, error) {
	var org Organization
	err := visible(s.DB.WithContext(ctx), scope).Where("organizations.id = ?", id).First(&org).Error
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	return &org, nil
}

// Summary returns the organization with its dependent counts.
func (s *Service) Summary(ctx context.Context, scope tenant.Scope, id int64) (*Summary, error) {
	var row Summary
	err := visible(s.DB.WithContext(ctx).Model(&Organization{}), scope).
		Where("organizations.id = ?", id).
		Select(summaryColumns).
		Take(&row).Error
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	return &row, nil
}

// Options lists the organizations visible in scope, for select boxes.
func (s *Service) Options(ctx context.Context, scope tenant.Scope) ([]Organization, error) {
	var orgs []Organization
	err := visible(s.DB.WithContext(ctx), scope).Order("organizations.name").Find(&orgs).Error
	return orgs, err
}

func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
}

// check validates in against the active organizations other than excludeID.
func (s *Service) check(tx *gorm.DB, in Input, excludeID int64, f apperr.FieldErrors) error {
	switch n := utf8.RuneCountInString(in.Name); {
	case n == 0:
		f.Add("name", "Required", nil)
	case n < 3:
		f.Add("name", "OrganizationNameTooShort", nil)
	case n > 200:
		f.Add("name", "OrganizationNameTooLong", nil)
	}
	if !f.Has("name") {
		taken, err := s.taken(tx, "LOWER(name) = LOWER(?)", in.Name, excludeID)
		if err != nil {
			return err
		}
		if taken {
			f.Add("name", "OrganizationNameTaken", map[string]interface{}{"Name": in.Name})
		}
	}

	switch {
	case in.Email == "":
		f.Add("email", "Required", nil)
	case !apperr.ValidEmail(in.Email):
		f.Add("email", "EmailInvalid", nil)
	default:
		taken, err := s.taken(tx, "LOWER(email) = ?", in.Email, excludeID)
		if err != nil {
			return err
		}
		if taken {
			f.Add("email", "OrganizationEmailTaken", map[string]interface{}{"Email": in.Email})
		}
	}

	apperr.CheckPhone(f, "phone", in.Phone)
	return nil
}

func (s *Service) taken(tx *gorm.DB, cond string, value string, excludeID int64) (bool, error) {
	var n int64
	q := tx.Model(&Organization{}).Where("state = ?", model.StateActive).Where(cond, value)
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Create adds an organization and, when admin is given, its first ADMIN user in the same transaction.
func (s *Service) Create(ctx context.Context, in Input, admin *AdminInput) (*Organization, *user.User, error) {
	in.normalize()

	var org *Organization
	var adminUser *user.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f := apperr.FieldErrors{}
		if err := s.check(tx, in, 0, f); err != nil {
			return err
		}
		if admin != nil {
			if err := checkAdmin(tx, admin, f); err != nil {
				return err
			}
		}
		if err := f.Err(); err != nil {
			return err
		}

		org = &Organization{Name: in.Name, Email: in.Email, Phone: in.Phone, Address: in.Address}
		if err := tx.Create(org).Error; err != nil {
			return err
		}
		if admin == nil {
			return nil
		}

		hash, err := user.HashPassword(admin.Password)
		if err != nil {
			return err
		}
		role := user.OrgRoleAdmin
		adminUser = &user.User{
			Email:          admin.Email,
			PasswordHash:   hash,
			FullName:       admin.FullName,
			UserType:       user.UserTypeOrgUser,
			OrganizationID: &org.ID,
			OrgRole:        &role,
			Phone:          admin.Phone,
			Position:       admin.Position,
			Active:         true,
		}
		return tx.Create(adminUser).Error
	})
	if err != nil {
		return nil, nil, err
	}

	s.Log.Info("organization created", zap.Int64("organization_id", org.ID), zap.String("name", org.Name))
	return org, adminUser, nil
}

// Register is the public sign-up: an organization plus its first administrator.
func (s *Service) Register(ctx context.Context, in Input, admin AdminInput) (*Organization, *user.User, error) {
	return s.Create(ctx, in, &admin)
}

func checkAdmin(tx *gorm.DB, admin *AdminInput, f apperr.FieldErrors) error {
	admin.Email = strings.ToLower(strings.TrimSpace(admin.Email))
	admin.FullName = strings.TrimSpace(admin.FullName)
	admin.Phone = strings.TrimSpace(admin.Phone)
	admin.Position = strings.TrimSpace(admin.Position)

	switch {
	case admin.Email == "":
		f.Add("admin_email", "Required", nil)
	case !apperr.ValidEmail(admin.Email):
		f.Add("admin_email", "EmailInvalid", nil)
	default:
		var n int64
		if err := tx.Model(&user.User{}).Where("LOWER(email) = ?", admin.Email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			f.Add("admin_email", "UserEmailTaken", nil)
		}
	}
	if admin.FullName == "" {
		f.Add("admin_full_name", "Required", nil)
	}
	apperr.CheckPhone(f, "admin_phone", admin.Phone)
	user.CheckPassword(f, "admin_password", "admin_password_confirm", admin.Password, admin.PasswordConfirm, admin.Email)
	return nil
}

// Update replaces the editable fields of a visible organization.
func (s *Service) Update(ctx context.Context, scope tenant.Scope, id int64, in Input) (*Organization, error) {
	org, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	in.normalize()

	f := apperr.FieldErrors{}
	if err := s.check(s.DB.WithContext(ctx), in, org.ID, f); err != nil {
		return nil, err
	}
	if err := f.Err(); err != nil {
		return nil, err
	}

	org.Name, org.Email, org.Phone, org.Address = in.Name, in.Email, in.Phone, in.Address
	if err := s.DB.WithContext(ctx).Save(org).Error; err != nil {
		return nil, err
	}
	return org, nil
}

// Delete soft-deletes an organization; it is declined while the organization has active devices.
func (s *Service) Delete(ctx context.Context, scope tenant.Scope, id int64) (*Organization, error) {
	org, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	var devices int64
	err = s.DB.WithContext(ctx).Table("devices").
		Where("organization_id = ? AND state = ?", org.ID, model.StateActive).
		Count(&devices).Error
	if err != nil {
		return nil, err
	}
	if devices > 0 {
		s.Log.Info("delete declined",
			zap.String("entity", "organization"),
			zap.Int64("id", org.ID),
			zap.Int64("dependents", devices),
		)
		return nil, apperr.Declined("OrganizationDeleteBlocked", org.Name, devices)
	}

	now := time.Now()
	if err := s.DB.WithContext(ctx).Model(org).Updates(model.SoftDeleteColumns(now)).Error; err != nil {
		return nil, err
	}
	org.State = model.StateInactive
	org.DeletedAt = &now
	return org, nil
}

// Name returns the name of an active organization. Used in validation messages.
func Name(ctx context.Context, db *gorm.DB, id int64) (string, error) {
	var row struct{ Name string }
	err := db.WithContext(ctx).Table("organizations").
		Where("id = ? AND state = ?", id, model.StateActive).
		Select("name").
		Take(&row).Error
	if err != nil {
		return "", apperr.FromDB(err)
	}
	return row.Name, nil
}

func (o *Organization) Input() Input {
	return Input{Name: o.Name, Email: o.Email, Phone: o.Phone, Address: o.Address}
}
