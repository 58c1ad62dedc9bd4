package measurement

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/alert"
	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/model"
	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/tenant"
)

const table = "measurements"

var ListSpec = pagination.Spec{
	SearchColumns: []string{"devices.name", "measurements.notes"},
	Sorts: map[string]string{
		"measurement_date":  "measurements.measurement_date",
		"consumption_value": "measurements.consumption_value",
		"device__name":      "devices.name",
	},
	DefaultSort: "-measurement_date",
	PerPageKey:  "measurements_per_page",
}

const summaryColumns = `measurements.*,
	devices.name AS device_name,
	devices.max_consumption AS device_max_consumption`

type Service struct {
	DB        *gorm.DB
	Devices   *device.Service
	Log       *zap.Logger
	observers []alert.Observer
	recorders []Recorder
	now       func() time.Time
}

func NewService(db *gorm.DB, devices *device.Service, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{DB: db, Devices: devices, Log: log, now: time.Now}
}

// Observe registers observers notified after an automatic alert is committed.
func (s *Service) Observe(obs ...alert.Observer) {
	s.observers = append(s.observers, obs...)
}

// Recorder is told about every committed measurement.
type Recorder interface {
	MeasurementRecorded(ctx context.Context, m *Measurement, exceeded bool)
}

func (s *Service) Record(r ...Recorder) {
	s.recorders = append(s.recorders, r...)
}

func (s *Service) Query(ctx context.Context, scope tenant.Scope, f Filter) *gorm.DB {
	q := scope.Apply(s.DB.WithContext(ctx).Model(&Measurement{}), table).
		Joins("LEFT JOIN devices ON devices.id = measurements.device_id")
	if f.DeviceID > 0 {
		q = q.Where("measurements.device_id = ?", f.DeviceID)
	}
	if f.From != nil {
		q = q.Where("measurements.measurement_date >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("measurements.measurement_date <= ?", f.To.UTC())
	}
	return q
}

func fillAll(rows []Summary) {
	for i := range rows {
		rows[i].fill()
	}
}

func (s *Service) List(ctx context.Context, scope tenant.Scope, f Filter, p pagination.Pagination) ([]Summary, int64, error) {
	base := ListSpec.Search(s.Query(ctx, scope, f), f.Search)

	var rows []Summary
	total, err := pagination.Fetch(base, ListSpec.Order(f.Sort), p.Limit, p.Offset, func(q *gorm.DB) error {
		return q.Select(summaryColumns).Find(&rows).Error
	})
	fillAll(rows)
	return rows, total, err
}

func (s *Service) Page(ctx context.Context, scope tenant.Scope, f Filter, r pagination.Request) ([]Summary, pagination.Page, error) {
	var rows []Summary
	page, err := pagination.Paginate(s.Query(ctx, scope, f), ListSpec, r, func(q *gorm.DB) error {
		return q.Select(summaryColumns).Find(&rows).Error
	})
	fillAll(rows)
	return rows, page, err
}

// Latest returns at most limit matching measurements, newest first.
func (s *Service) Latest(ctx context.Context, scope tenant.Scope, f Filter, limit int) ([]Summary, error) {
	var rows []Summary
	err := ListSpec.Search(s.Query(ctx, scope, f), f.Search).
		Select(summaryColumns).
		Order("measurements.measurement_date DESC").
		Limit(limit).
		Find(&rows).Error
	fillAll(rows)
	return rows, err
}

// ForDevice returns the latest measurements of a visible device.
func (s *Service) ForDevice(ctx context.Context, scope tenant.Scope, deviceID int64, f Filter, limit int) ([]Summary, error) {
	if _, err := s.Devices.Get(ctx, scope, deviceID); err != nil {
		return nil, err
	}
	f.DeviceID = deviceID
	return s.Latest(ctx, scope, f, limit)
}

func (s *Service) Get(ctx context.Context, scope tenant.Scope, id int64) (*Measurement, error) {
	var m Measurement
	err := scope.Apply(s.DB.WithContext(ctx), table).Where("measurements.id = ?", id).First(&m).Error
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	return &m, nil
}

func (s *Service) Summary(ctx context.Context, scope tenant.Scope, id int64) (*Summary, error) {
	var row Summary
	err := s.Query(ctx, scope, Filter{}).Where("measurements.id = ?", id).Select(summaryColumns).Take(&row).Error
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	row.fill()
	return &row, nil
}

// check validates in and returns the device the measurement is recorded for.
func (s *Service) check(ctx context.Context, scope tenant.Scope, in *Input) (*device.Device, error) {
	in.Notes = strings.TrimSpace(in.Notes)
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
		case scope.Unrestricted() && in.OrganizationID != nil && *in.OrganizationID != d.OrganizationID:
			f.Add("device_id", "DeviceOrganizationMismatch", i18n.Data{"Device": d.Name})
		default:
			dev = d
		}
	}

	switch {
	case !in.ConsumptionValue.IsPositive():
		f.Add("consumption_value", "ConsumptionPositive", nil)
	case in.ConsumptionValue.GreaterThan(MaxConsumptionValue):
		f.Add("consumption_value", "ConsumptionTooHigh", nil)
	}

	now := s.now()
	if in.MeasurementDate == nil || in.MeasurementDate.IsZero() {
		in.MeasurementDate = &now
	} else if in.MeasurementDate.After(now) {
		f.Add("measurement_date", "MeasurementDateFuture", nil)
	}

	return dev, f.Err()
}

// Create records a measurement. When the value exceeds the device limit a HIGH
// alert is created in the same transaction; observers run after commit.
func (s *Service) Create(ctx context.Context, scope tenant.Scope, in Input) (*Created, error) {
	if scope.IsNone() {
		return nil, apperr.ErrNoOrganization
	}
	dev, err := s.check(ctx, scope, &in)
	if err != nil {
		return nil, err
	}

	m := &Measurement{
		DeviceID:         dev.ID,
		ConsumptionValue: in.ConsumptionValue,
		MeasurementDate:  in.MeasurementDate.UTC(),
		Notes:            in.Notes,
		OrganizationID:   dev.OrganizationID,
	}

	var raised *alert.Alert
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}

		// limit dibaca ulang di dalam transaksi
		var current device.Device
		if err := tx.Select("id", "max_consumption").First(&current, dev.ID).Error; err != nil {
			return err
		}
		dev.MaxConsumption = current.MaxConsumption

		raised = alert.Evaluate(alert.Reading{
			DeviceID:       m.DeviceID,
			MeasurementID:  m.ID,
			OrganizationID: m.OrganizationID,
			Value:          m.ConsumptionValue,
			Limit:          current.MaxConsumption,
		})
		if raised == nil {
			return nil
		}
		return tx.Create(raised).Error
	})
	if err != nil {
		return nil, err
	}

	for _, r := range s.recorders {
		r.MeasurementRecorded(ctx, m, raised != nil)
	}
	if raised != nil {
		for _, o := range s.observers {
			o.AlertRaised(ctx, raised)
		}
	}

	out := &Summary{
		Measurement:          *m,
		DeviceName:           dev.Name,
		DeviceMaxConsumption: dev.MaxConsumption,
	}
	out.fill()
	return &Created{Measurement: out, Alert: raised}, nil
}

// Update edits a measurement. Alerts are not re-evaluated.
func (s *Service) Update(ctx context.Context, scope tenant.Scope, id int64, in Input) (*Summary, error) {
	m, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	dev, err := s.check(ctx, scope, &in)
	if err != nil {
		return nil, err
	}
	if dev.OrganizationID != m.OrganizationID {
		return nil, apperr.Invalid("device_id", "DeviceOrganizationMismatch", i18n.Data{"Device": dev.Name})
	}

	m.DeviceID = dev.ID
	m.ConsumptionValue = in.ConsumptionValue
	m.MeasurementDate = in.MeasurementDate.UTC()
	m.Notes = in.Notes
	if err := s.DB.WithContext(ctx).Save(m).Error; err != nil {
		return nil, err
	}

	out := &Summary{Measurement: *m, DeviceName: dev.Name, DeviceMaxConsumption: dev.MaxConsumption}
	out.fill()
	return out, nil
}

func (s *Service) Delete(ctx context.Context, scope tenant.Scope, id int64) (*Measurement, error) {
	m, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.DB.WithContext(ctx).Model(m).Updates(model.SoftDeleteColumns(now)).Error; err != nil {
		return nil, err
	}
	m.State = model.StateInactive
	m.DeletedAt = &now
	return m, nil
}
