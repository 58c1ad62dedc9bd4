package category

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

const table = "categories"

var ListSpec = pagination.Spec{
	SearchColumns: []string{"categories.name", "categories.description"},
	Sorts: map[string]string{
		"name":       "categories.name",
		"created_at": "categories.created_at",
	},
	DefaultSort: "name",
	PerPageKey:  "categories_per_page",
}

const summaryColumns = `categories.*, organizations.name AS organization_name,
	(SELECT COUNT(*) FROM devices WHERE devices.category_id = categories.id AND devices.state = 'ACTIVE') AS device_count`

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

// Query is the scoped base query of the category list.
func (s *Service) Query(ctx context.Context, scope tenant.Scope) *gorm.DB {
	return scope.Apply(s.DB.WithContext(ctx).Model(&Category{}), table).
		Joins("LEFT JOIN organizations ON organizations.id = categories.organization_id")
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

// All returns every visible category ordered by sort, for exports and select boxes.
func (s *Service) All(ctx context.Context, scope tenant.Scope, search, sort string) ([]Summary, error) {
	var rows []Summary
	err := ListSpec.Search(s.Query(ctx, scope), search).
		Order(ListSpec.Order(sort)).
		Select(summaryColumns).
		Find(&rows).Error
	return rows, err
}

func (s *Service) Get(ctx context.Context, scope tenant.Scope, id int64) (*Category, error) {
	var cat Category
	err := scope.Apply(s.DB.WithContext(ctx), table).Where("categories.id = ?", id).First(&cat).Error
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	return &cat, nil
}

func (s *Service) Summary(ctx context.Context, scope tenant.Scope, id int64) (*Summary, error) {
	var row Summary
	err := s.Query(ctx, scope).Where("categories.id = ?", id).Select(summaryColumns).Take(&row).Error
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
			f.Add("name", "CategoryNameTaken", map[string]interface{}{"Name": in.Name})
		}
	}
	return f.Err()
}

// Create adds a category to the organization resolved from scope.
func (s *Service) Create(ctx context.Context, scope tenant.Scope, in Input) (*Category, error) {
	orgID, err := scope.ResolveOrganization(in.OrganizationID)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, orgID, &in, 0); err != nil {
		return nil, err
	}

	cat := &Category{Name: in.Name, Description: in.Description, OrganizationID: orgID}
	if err := s.DB.WithContext(ctx).Create(cat).Error; err != nil {
		return nil, err
	}
	return cat, nil
}

// Update edits name and description. The organization of a category never changes.
func (s *Service) Update(ctx context.Context, scope tenant.Scope, id int64, in Input) (*Category, error) {
	cat, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, cat.OrganizationID, &in, cat.ID); err != nil {
		return nil, err
	}

	cat.Name, cat.Description = in.Name, in.Description
	if err := s.DB.WithContext(ctx).Save(cat).Error; err != nil {
		return nil, err
	}
	return cat, nil
}

// Delete soft-deletes a category; it is declined while active devices use it.
func (s *Service) Delete(ctx context.Context, scope tenant.Scope, id int64) (*Category, error) {
	cat, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	var devices int64
	err = s.DB.WithContext(ctx).Table("devices").
		Where("category_id = ? AND state = ?", cat.ID, model.StateActive).
		Count(&devices).Error
	if err != nil {
		return nil, err
	}
	if devices > 0 {
		s.Log.Info("delete declined",
			zap.String("entity", "category"),
			zap.Int64("id", cat.ID),
			zap.Int64("dependents", devices),
		)
		return nil, apperr.Declined("CategoryDeleteBlocked", cat.Name, devices)
	}

	now := time.Now()
	if err := s.DB.WithContext(ctx).Model(cat).Updates(model.SoftDeleteColumns(now)).Error; err != nil {
		return nil, err
	}
	cat.State = model.StateInactive
	cat.DeletedAt = &now
	return cat, nil
}
