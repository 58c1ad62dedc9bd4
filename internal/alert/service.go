package alert

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/model"
	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/tenant"
)

const table = "alerts"

// severityRank orders alerts by urgency rather than alphabetically.
const severityRank = "CASE alerts.severity WHEN 'CRITICAL' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END"

var ListSpec = pagination.Spec{
	SearchColumns: []string{"alerts.message", "devices.name"},
	Sorts: map[string]string{
		"created_at": "alerts.created_at",
		"severity":   severityRank,
	},
	DefaultSort: "-created_at",
	PerPageKey:  "alerts_per_page",
}

const summaryColumns = "alerts.*, devices.name AS device_name"

// Filter narrows the alert list. Nil IsResolved means both.
type Filter struct {
	DeviceID   int64
	Severity   Severity
	IsResolved *bool
	Search     string
	Sort       string
}

// Input is the writable part of a manual alert.
type Input struct {
	DeviceID      int64                  `json:"device_id"`
	MeasurementID *int64                 `json:"measurement_id"`
	Severity      string                 `json:"severity"`
	Message       string                 `json:"message"`
	Details       map[string]interface{} `json:"details"`
	IsResolved    bool                   `json:"is_resolved"`
}

func (a *Alert) Input() Input {
	return Input{
		DeviceID:      a.DeviceID,
		MeasurementID: a.MeasurementID,
		Severity:      string(a.Severity),
		Message:       a.Message,
		Details:       a.Details,
		IsResolved:    a.IsResolved,
	}
}

type Service struct {
	DB      *gorm.DB
	Devices *device.Service
	Log     *zap.Logger
}

func NewService(db *gorm.DB, devices *device.Service, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{DB: db, Devices: devices, Log: log}
}

func (s *Service) Query(ctx context.Context, scope tenant.Scope, f Filter) *gorm.DB {
	q := scope.Apply(s.DB.WithContext(ctx).Model(&Alert{}), table).
		Joins("LEFT JOIN devices ON devices.id = alerts.device_id")
	if f.DeviceID > 0 {
		q = q.Where("alerts.device_id = ?", f.DeviceID)
	}
	if f.Severity != "" {
		q = q.Where("alerts.severity = ?", f.Severity)
	}
	if f.IsResolved != nil {
		q = q.Where("alerts.is_resolved = ?", *f.IsResolved)
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

func (s *Service) All(ctx context.Context, scope tenant.Scope, f Filter) ([]Summary, error) {
	var rows []Summary
	err := ListSpec.Search(s.Query(ctx, scope, f), f.Search).
		Order(ListSpec.Order(f.Sort)).
		Select(summaryColumns).
		Find(&rows).Error
	return rows, err
}

// ForDevice returns the latest alerts of a visible device.
func (s *Service) ForDevice(ctx context.Context, scope tenant.Scope, deviceID int64, limit int) ([]Summary, error) {
	if _, err := s.Devices.Get(ctx, scope, deviceID); err != nil {
		return nil, err
	}
	return s.Latest(ctx, scope, Filter{DeviceID: deviceID}, limit)
}

// Latest returns at most limit matching alerts, newest first.
func (s *Service) Latest(ctx context.Context, scope tenant.Scope, f Filter, limit int) ([]Summary, error) {
	var rows []Summary
	err := s.Query(ctx, scope, f).
		Select(summaryColumns).
		Order("alerts.created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (s *Service) Get(ctx context.Context, scope tenant.Scope, id int64) (*Alert, error) {
	var a Alert
	err := scope.Apply(s.DB.WithContext(ctx), table).Where("alerts.id = ?", id).First(&a).Error
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	return &a, nil
}

func (s *Service) Summary(ctx context.Context, scope tenant.Scope, id int64) (*Summary, error) {
	var row Summary
	err := s.Query(ctx, scope, Filter{}).Where("alerts.id = ?", id).Select(summaryColumns).Take(&row).Error
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	return &row, nil
}

// check validates a manual alert and returns the device it belongs to.
func (s *Service) check(ctx context.Context, scope tenant.Scope, in *Input) (*device.Device, error) {
	in.Message = strings.TrimSpace(in.Message)
	f := apperr.FieldErrors{}

	var dev *device.Device
	if in.DeviceID <= 0 {
		f.Add("device_id", "Required", nil)
	} else {
		d, err := s.Devices.Get(ctx, scope, in.DeviceID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			f.Add("device_id", "DeviceNotFound", nil)
		case err != nil:
			return nil, err
		default:
			dev = d
		}
	}

	if _, ok := ParseSeverity(in.Severity); !ok {
		f.Add("severity", "AlertSeverityInvalid", nil)
	}
	if in.Message == "" {
		f.Add("message", "Required", nil)
	}

	if in.MeasurementID != nil && dev != nil {
		var m struct {
			DeviceID   int64
			DeviceName string
		}
		err := scope.Apply(s.DB.WithContext(ctx).Table("measurements"), "measurements").
			Joins("JOIN devices ON devices.id = measurements.device_id").
			Where("measurements.id = ?", *in.MeasurementID).
			Select("measurements.device_id, devices.name AS device_name").
			Take(&m).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			f.Add("measurement_id", "MeasurementNotFound", nil)
		case err != nil:
			return nil, err
		case m.DeviceID != dev.ID:
			f.Add("measurement_id", "AlertMeasurementMismatch", i18n.Data{
				"MeasurementDevice": m.DeviceName,
				"Device":            dev.Name,
			})
		}
	}

	return dev, f.Err()
}

// Create stores a manual alert in the organization of its device.
func (s *Service) Create(ctx context.Context, scope tenant.Scope, in Input) (*Alert, error) {
	if scope.IsNone() {
		return nil, apperr.ErrNoOrganization
	}
	dev, err := s.check(ctx, scope, &in)
	if err != nil {
		return nil, err
	}

	sev, _ := ParseSeverity(in.Severity)
	a := &Alert{
		DeviceID:       dev.ID,
		MeasurementID:  in.MeasurementID,
		Severity:       sev,
		Message:        in.Message,
		Details:        datatypes.JSONMap(in.Details),
		IsResolved:     in.IsResolved,
		OrganizationID: dev.OrganizationID,
	}
	if a.IsResolved {
		now := time.Now()
		a.ResolvedAt = &now
	}
	if err := s.DB.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Update(ctx context.Context, scope tenant.Scope, id int64, in Input) (*Alert, error) {
	a, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	dev, err := s.check(ctx, scope, &in)
	if err != nil {
		return nil, err
	}

	sev, _ := ParseSeverity(in.Severity)
	a.DeviceID = dev.ID
	a.MeasurementID = in.MeasurementID
	a.Severity = sev
	a.Message = in.Message
	a.Details = datatypes.JSONMap(in.Details)
	if in.IsResolved && !a.IsResolved {
		now := time.Now()
		a.ResolvedAt = &now
	}
	if !in.IsResolved {
		a.ResolvedAt = nil
	}
	a.IsResolved = in.IsResolved
	if err := s.DB.WithContext(ctx).Save(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// Resolve marks a visible alert as resolved. Resolving twice keeps the first timestamp.
func (s *Service) Resolve(ctx context.Context, scope tenant.Scope, id int64) (*Alert, error) {
	a, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if a.IsResolved {
		return a, nil
	}

	now := time.Now()
	err = s.DB.WithContext(ctx).Model(a).Updates(map[string]interface{}{
		"is_resolved": true,
		"resolved_at": now,
		"updated_at":  now,
	}).Error
	if err != nil {
		return nil, err
	}
	a.IsResolved = true
	a.ResolvedAt = &now
	return a, nil
}

func (s *Service) Delete(ctx context.Context, scope tenant.Scope, id int64) (*Alert, error) {
	a, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.DB.WithContext(ctx).Model(a).Updates(model.SoftDeleteColumns(now)).Error; err != nil {
		return nil, err
	}
	a.State = model.StateInactive
	a.DeletedAt = &now
	return a, nil
}
