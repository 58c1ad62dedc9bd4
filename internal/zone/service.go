package zone

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/model"
	"github.com/username/ecoenergy-api/internal/organization"
	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/tenant"
)

const table = "zones"

var ListSpec = pagination.Spec{
	SearchColumns: []string{"zones.name", "zones.description"},
	Sorts: map[string]string{
		"name":       "zones.name",
		"created_at": "zones.created_at",
	},
	DefaultSort: "name",
	PerPageKey:  "zones_per_page",
}

const summaryColumns = `zones.*, organizations.name AS organization_name,
	(SELECT COUNT(*) FROM devices WHERE devices.zone_id = zones.id AND devices.state = 'ACTIVE') AS device_count`

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

// Query is the scoped base query of the zone list.
func (s *Service) Query(ctx context.Context, scope tenant.Scope) *gorm.DB {
	return scope.Apply(s.DB.WithContext(ctx).Model(&Zone{}), table).
		Joins("LEFT JOIN organizations ON organizations.id = zones.organization_id")
}

// List returns one API page.
func (s *Service) List(ctx context.Context, scope tenant.Scope, search, sort string, p pagination.Pagination) ([]Summary, int64, error) {
	base := ListSpec.Search(s.Query(ctx, scope), search)

	var rows []Summary
	total, err := pagination.Fetch(base, ListSpec.Order(sort), p.Limit, p.Offset, func(q *gorm.DB) error {
		return q.Select(summaryColumns).Find(&rows).Error
	})
	return rows, total, err
}

// Page returns one page of the web list.
func (s *Service) Page(ctx context.Context, scope tenant.Scope, r pagination.Request) ([]Summary, pagination.Page, error) {
	var rows []Summary
	page, err := pagination.Paginate(s.Query(ctx, scope), ListSpec, r, func(q *gorm.DB) error {
		return q.Select(summaryColumns).Find(&rows).Error
	})
	return rows, page, err
}

// All returns every visible zone ordered by sort, for exports and select boxes.
func (s *Service) All(ctx context.Context, scope tenant.Scope, search, sort string) ([]Summary, error) {
	var rows []Summary
	err := ListSpec.Search(s.Query(ctx, scope), search).
		Order(ListSpec.Order(sort)).
		Select(summaryColumns).
		Find(&rows).Error
	return rows, err
}

func (s *Service) Get(ctx context.Context, scope tenant.Scope, id int64) (*Zone, error) {
	var z Zone
	err := scope.Apply(s.DB.WithContext(ctx), table).Where("zones.id = ?", id).First(&z).Error
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	return &z, nil
}

func (s *Service) Summary(ctx context.Context, scope tenant.Scope, id int64) (*Summary, error) {
	var row Summary
	err := s.Query(ctx, scope).Where("zones.id = ?", id).Select(summaryColumns).Take(&row).Error
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	return &row, nil
}

func (s *Service) check(ctx context.Context, orgID int64, in *Input, excludeID int64) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)

	if _, err := organization.Name(ctx, s.DB, orgID); errors.Is(err, apperr.ErrNotFound) {
		return apperr.Invalid("organization_id", "OrganizationNotFound", nil)
	} else if err != nil {
		return err
	}

	f := apperr.FieldErrors{}
	switch {
	case in.Name == "":
		f.Add("name", "Required", nil)
	case utf8.RuneCountInString(in.Name) > 100:
		f.Add("name", "TooLong", map[string]interface{}{"Max": 100})
	default:
		taken, err := model.NameTaken(s.DB.WithContext(ctx), table, orgID, in.Name, excludeID)
		if err != nil {
			return err
		}
		if taken {
			f.Add("name", "ZoneNameTaken", map[string]interface{}{"Name": in.Name})
		}
	}
	return f.Err()
}

// Create adds a zone to the organization resolved from scope.
func (s *Service) Create(ctx context.Context, scope tenant.Scope, in Input) (*Zone, error) {
	orgID, err := scope.ResolveOrganization(in.OrganizationID)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, orgID, &in, 0); err != nil {
		return nil, err
	}

	z := &Zone{Name: in.Name, Description: in.Description, OrganizationID: orgID}
	if err := s.DB.WithContext(ctx).Create(z).Error; err != nil {
		return nil, err
	}
	return z, nil
}

// Update edits name and description. The organization of a zone never changes.
func (s *Service) Update(ctx context.Context, scope tenant.Scope, id int64, in Input) (*Zone, error) {
	z, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, z.OrganizationID, &in, z.ID); err != nil {
		return nil, err
	}

	z.Name, z.Description = in.Name, in.Description
	if err := s.DB.WithContext(ctx).Save(z).Error; err != nil {
		return nil, err
	}
	return z, nil
}

// Delete soft-deletes a zone; it is declined while active devices use it.
func (s *Service) Delete(ctx context.Context, scope tenant.Scope, id int64) (*Zone, error) {
	z, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	var devices int64
	err = s.DB.WithContext(ctx).Table("devices").
		Where("zone_id = ? AND state = ?", z.ID, model.StateActive).
		Count(&devices).Error
	if err != nil {
		return nil, err
	}
	if devices > 0 {
		s.Log.Info("delete declined",
			zap.String("entity", "zone"),
			zap.Int64("id", z.ID),
			zap.Int64("dependents", devices),
		)
		return nil, apperr.Declined("ZoneDeleteBlocked", z.Name, devices)
	}

	now := time.Now()
	if err := s.DB.WithContext(ctx).Model(z).Updates(model.SoftDeleteColumns(now)).Error; err != nil {
		return nil, err
	}
	z.State = model.StateInactive
	z.DeletedAt = &now
	return z, nil
}
