package device

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/category"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/model"
	"github.com/username/ecoenergy-api/internal/organization"
	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/tenant"
	"github.com/username/ecoenergy-api/internal/zone"
)

const table = "devices"

var ListSpec = pagination.Spec{
	SearchColumns: []string{"devices.name", "devices.description"},
	Sorts: map[string]string{
		"name":            "devices.name",
		"max_consumption": "devices.max_consumption",
		"created_at":      "devices.created_at",
	},
	DefaultSort: "name",
	PerPageKey:  "devices_per_page",
}

const summaryColumns = `devices.*,
	categories.name AS category_name,
	zones.name AS zone_name,
	organizations.name AS organization_name`

const detailColumns = summaryColumns + `,
	(SELECT COUNT(*) FROM measurements WHERE measurements.device_id = devices.id AND measurements.state = 'ACTIVE') AS measurement_count,
	(SELECT COUNT(*) FROM alerts WHERE alerts.device_id = devices.id AND alerts.state = 'ACTIVE' AND alerts.is_resolved = ?) AS active_alert_count,
	(SELECT AVG(consumption_value) FROM measurements WHERE measurements.device_id = devices.id AND measurements.state = 'ACTIVE') AS avg_consumption`

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

// Query is the scoped, joined and filtered base query of the device list.
func (s *Service) Query(ctx context.Context, scope tenant.Scope, f Filter) *gorm.DB {
	q := scope.Apply(s.DB.WithContext(ctx).Model(&Device{}), table).
		Joins("LEFT JOIN categories ON categories.id = devices.category_id").
		Joins("LEFT JOIN zones ON zones.id = devices.zone_id").
		Joins("LEFT JOIN organizations ON organizations.id = devices.organization_id")
	if f.CategoryID > 0 {
		q = q.Where("devices.category_id = ?", f.CategoryID)
	}
	if f.ZoneID > 0 {
		q = q.Where("devices.zone_id = ?", f.ZoneID)
	}
	return q
}

func (s *Service) List(ctx context.Context, scope tenant.Scope, f Filter, p pagination.Pagination) ([]Summary, int64, error) {
	base := ListSpec.Search(s.Query(ctx, scope, f), f.Search)

	var rows []Summary
	total, err := pagination.Fetch(base, ListSpec.Order(f.Sort), p.Limit, p.Offset, func(q *gorm.DB) error {
		return q.Select(summaryColumns).Find(&rows).Error
	})
	return rows, total, err
}

func (s *Service) Page(ctx context.Context, scope tenant.Scope, f Filter, r pagination.Request) ([]Summary, pagination.Page, error) {
	var rows []Summary
	page, err := pagination.Paginate(s.Query(ctx, scope, f), ListSpec, r, func(q *gorm.DB) error {
		return q.Select(summaryColumns).Find(&rows).Error
	})
	return rows, page, err
}

// All returns every matching device, for exports and select boxes.
func (s *Service) All(ctx context.Context, scope tenant.Scope, f Filter) ([]Summary, error) {
	var rows []Summary
	err := ListSpec.Search(s.Query(ctx, scope, f), f.Search).
		Order(ListSpec.Order(f.Sort)).
		Select(summaryColumns).
		Find(&rows).Error
	return rows, err
}

func (s *Service) Get(ctx context.Context, scope tenant.Scope, id int64) (*Device, error) {
	var d Device
	err := scope.Apply(s.DB.WithContext(ctx), table).Where("devices.id = ?", id).First(&d).Error
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	return &d, nil
}

// Detail returns the device with names, counts and average consumption.
func (s *Service) Detail(ctx context.Context, scope tenant.Scope, id int64) (*Detail, error) {
	var row Detail
	err := s.Query(ctx, scope, Filter{}).
		Where("devices.id = ?", id).
		Select(detailColumns, false).
		Take(&row).Error
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	return &row, nil
}

// Stats aggregates the active measurements of a visible device.
func (s *Service) Stats(ctx context.Context, scope tenant.Scope, id int64) (*Stats, error) {
	d, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	var agg struct {
		Total    int64
		Average  decimal.NullDecimal
		Max      decimal.NullDecimal
		Min      decimal.NullDecimal
		Exceeded int64
	}
	err = s.DB.WithContext(ctx).Table("measurements").
		Joins("JOIN devices ON devices.id = measurements.device_id").
		Where("measurements.device_id = ? AND measurements.state = ?", d.ID, model.StateActive).
		Select(`COUNT(*) AS total,
			AVG(measurements.consumption_value) AS average,
			MAX(measurements.consumption_value) AS max,
			MIN(measurements.consumption_value) AS min,
			COALESCE(SUM(CASE WHEN measurements.consumption_value > devices.max_consumption THEN 1 ELSE 0 END), 0) AS exceeded`).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	st := &Stats{
		DeviceID:           d.ID,
		DeviceName:         d.Name,
		MaxConsumption:     d.MaxConsumption,
		TotalMeasurements:  agg.Total,
		Average:            roundNull(agg.Average),
		Max:                agg.Max,
		Min:                agg.Min,
		TimesExceededLimit: agg.Exceeded,
		PercentageExceeded: decimal.Zero,
	}
	if agg.Total > 0 {
		st.PercentageExceeded = decimal.NewFromInt(agg.Exceeded * 100).
			Div(decimal.NewFromInt(agg.Total)).
			Round(2)
	}
	return st, nil
}

func roundNull(d decimal.NullDecimal) decimal.NullDecimal {
	if d.Valid {
		d.Decimal = d.Decimal.Round(2)
	}
	return d
}

// check validates in for organization orgID and returns the non-blocking warnings.
func (s *Service) check(ctx context.Context, orgID int64, in *Input, excludeID int64) ([]i18n.Message, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	db := s.DB.WithContext(ctx)

	orgName, err := organization.Name(ctx, db, orgID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Invalid("organization_id", "OrganizationNotFound", nil)
	}
	if err != nil {
		return nil, err
	}

	f := apperr.FieldErrors{}
	switch {
	case in.Name == "":
		f.Add("name", "Required", nil)
	case utf8.RuneCountInString(in.Name) > 100:
		f.Add("name", "TooLong", i18n.Data{"Max": 100})
	default:
		taken, err := model.NameTaken(db, table, orgID, in.Name, excludeID)
		if err != nil {
			return nil, err
		}
		if taken {
			f.Add("name", "DeviceNameTaken", i18n.Data{"Name": in.Name, "Organization": orgName})
		}
	}

	var warnings []i18n.Message
	if !in.MaxConsumption.IsPositive() {
		f.Add("max_consumption", "MaxConsumptionPositive", nil)
	} else if in.MaxConsumption.GreaterThan(SuspiciousMaxConsumption) {
		warnings = append(warnings, i18n.M("MaxConsumptionSuspicious", nil))
	}

	if in.CategoryID <= 0 {
		f.Add("category_id", "Required", nil)
	} else {
		var cat category.Category
		err := db.Where("id = ? AND state = ?", in.CategoryID, model.StateActive).First(&cat).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			f.Add("category_id", "CategoryNotFound", nil)
		case err != nil:
			return nil, err
		case cat.OrganizationID != orgID:
			f.Add("category_id", "CategoryOrganizationMismatch", i18n.Data{"Category": cat.Name, "Organization": orgName})
		}
	}

	if in.ZoneID <= 0 {
		f.Add("zone_id", "Required", nil)
	} else {
		var z zone.Zone
		err := db.Where("id = ? AND state = ?", in.ZoneID, model.StateActive).First(&z).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			f.Add("zone_id", "ZoneNotFound", nil)
		case err != nil:
			return nil, err
		case z.OrganizationID != orgID:
			f.Add("zone_id", "ZoneOrganizationMismatch", i18n.Data{"Zone": z.Name, "Organization": orgName})
		}
	}

	return warnings, f.Err()
}

// Create adds a device. Warnings do not prevent the save.
func (s *Service) Create(ctx context.Context, scope tenant.Scope, in Input) (*Device, []i18n.Message, error) {
	orgID, err := scope.ResolveOrganization(in.OrganizationID)
	if err != nil {
		return nil, nil, err
	}
	warnings, err := s.check(ctx, orgID, &in, 0)
	if err != nil {
		return nil, nil, err
	}

	d := &Device{
		Name:           in.Name,
		Description:    in.Description,
		MaxConsumption: in.MaxConsumption,
		CategoryID:     in.CategoryID,
		ZoneID:         in.ZoneID,
		OrganizationID: orgID,
	}
	if err := s.DB.WithContext(ctx).Create(d).Error; err != nil {
		return nil, nil, err
	}
	return d, warnings, nil
}

// Update edits a visible device. Its organization never changes.
func (s *Service) Update(ctx context.Context, scope tenant.Scope, id int64, in Input) (*Device, []i18n.Message, error) {
	d, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	warnings, err := s.check(ctx, d.OrganizationID, &in, d.ID)
	if err != nil {
		return nil, nil, err
	}

	d.Name = in.Name
	d.Description = in.Description
	d.MaxConsumption = in.MaxConsumption
	d.CategoryID = in.CategoryID
	d.ZoneID = in.ZoneID
	if err := s.DB.WithContext(ctx).Save(d).Error; err != nil {
		return nil, nil, err
	}
	return d, warnings, nil
}

// Delete soft-deletes a device; it is declined while the device has active measurements.
func (s *Service) Delete(ctx context.Context, scope tenant.Scope, id int64) (*Device, error) {
	d, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	var measurements int64
	err = s.DB.WithContext(ctx).Table("measurements").
		Where("device_id = ? AND state = ?", d.ID, model.StateActive).
		Count(&measurements).Error
	if err != nil {
		return nil, err
	}
	if measurements > 0 {
		s.Log.Info("delete declined",
			zap.String("entity", "device"),
			zap.Int64("id", d.ID),
			zap.Int64("dependents", measurements),
		)
		return nil, apperr.Declined("DeviceDeleteBlocked", d.Name, measurements)
	}

	now := time.Now()
	if err := s.DB.WithContext(ctx).Model(d).Updates(model.SoftDeleteColumns(now)).Error; err != nil {
		return nil, err
	}
	d.State = model.StateInactive
	d.DeletedAt = &now
	return d, nil
}
