package export

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/username/ecoenergy-api/internal/alert"
	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/category"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/measurement"
	"github.com/username/ecoenergy-api/internal/model"
	"github.com/username/ecoenergy-api/internal/tenant"
	"github.com/username/ecoenergy-api/internal/zone"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// MaxMeasurementRows caps the measurement export, newest first.
	MaxMeasurementRows = 1000

	dateLayout     = "02/01/2006 15:04"
	dateTimeLayout = "02/01/2006 15:04:05"
)

type Handler struct {
	Zones        *zone.Service
	Categories   *category.Service
	Devices      *device.Service
	Measurements *measurement.Service
	Alerts       *alert.Service
	Log          *zap.Logger
	now          func() time.Time
}

func NewHandler(zones *zone.Service, categories *category.Service, devices *device.Service, measurements *measurement.Service, alerts *alert.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Zones:        zones,
		Categories:   categories,
		Devices:      devices,
		Measurements: measurements,
		Alerts:       alerts,
		Log:          log,
		now:          time.Now,
	}
}

func view(r auth.Resource) gin.HandlerFunc {
	return auth.RequirePermission(auth.Perm(r, auth.ActionView))
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/export/zones.xlsx", view(auth.ResourceZone), h.ExportZones)
	r.GET("/export/categories.xlsx", view(auth.ResourceCategory), h.ExportCategories)
	r.GET("/export/devices.xlsx", view(auth.ResourceDevice), h.ExportDevices)
	r.GET("/export/measurements.xlsx", view(auth.ResourceMeasurement), h.ExportMeasurements)
	r.GET("/export/alerts.xlsx", view(auth.ResourceAlert), h.ExportAlerts)
}

// Filename is <prefix>_YYYYMMDD_HHMMSS.xlsx.
func Filename(prefix string, at time.Time) string {
	return prefix + "_" + at.Format("20060102_150405") + ".xlsx"
}

func (h *Handler) send(c *gin.Context, prefix string, s Sheet) {
	data, err := Render(s)
	if err != nil {
		h.Log.Error("export failed", zap.String("sheet", s.Name), zap.Error(err))
		apperr.Respond(c, err)
		return
	}
	h.Log.Info("export generated",
		zap.String("sheet", s.Name),
		zap.Int("rows", len(s.Rows)),
	)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, Filename(prefix, h.now())))
	c.Data(http.StatusOK, ContentType, data)
}

func stateLabel(s model.State, feminine bool) string {
	switch {
	case s == model.StateActive && feminine:
		return "Activa"
	case s == model.StateActive:
		return "Activo"
	case feminine:
		return "Inactiva"
	default:
		return "Inactivo"
	}
}

func yesNo(b bool) string {
	if b {
		return "SÍ"
	}
	return "NO"
}

func kw(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func (h *Handler) ExportZones(c *gin.Context) {
	rows, err := h.Zones.All(c.Request.Context(), tenant.FromContext(c), c.Query("search"), c.Query("sort"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	s := Sheet{
		Name:    "Zonas",
		Headers: []string{"ID", "Nombre", "Descripción", "Organización", "Fecha Creación", "Estado"},
	}
	for _, z := range rows {
		s.Rows = append(s.Rows, []interface{}{
			z.ID, z.Name, z.Description, z.OrganizationName,
			z.CreatedAt.Format(dateLayout), stateLabel(z.State, true),
		})
	}
	h.send(c, "zonas", s)
}

func (h *Handler) ExportCategories(c *gin.Context) {
	rows, err := h.Categories.All(c.Request.Context(), tenant.FromContext(c), c.Query("search"), c.Query("sort"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	s := Sheet{
		Name:    "Categorías",
		Headers: []string{"ID", "Nombre", "Descripción", "Organización", "Fecha Creación", "Estado"},
	}
	for _, cat := range rows {
		s.Rows = append(s.Rows, []interface{}{
			cat.ID, cat.Name, cat.Description, cat.OrganizationName,
			cat.CreatedAt.Format(dateLayout), stateLabel(cat.State, true),
		})
	}
	h.send(c, "categorias", s)
}

func (h *Handler) ExportDevices(c *gin.Context) {
	f, ok := device.ParseFilter(c)
	if !ok {
		return
	}
	rows, err := h.Devices.All(c.Request.Context(), tenant.FromContext(c), f)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	s := Sheet{
		Name: "Dispositivos",
		Headers: []string{"ID", "Nombre", "Categoría", "Zona", "Consumo Máximo (kW)",
			"Organización", "Fecha Creación", "Estado"},
	}
	for _, d := range rows {
		s.Rows = append(s.Rows, []interface{}{
			d.ID, d.Name, d.CategoryName, d.ZoneName, kw(d.MaxConsumption),
			d.OrganizationName, d.CreatedAt.Format(dateLayout), stateLabel(d.State, false),
		})
	}
	h.send(c, "dispositivos", s)
}

// measurementRow adds the category and zone of the device to a measurement.
type measurementRow struct {
	ID                   int64
	DeviceName           string
	CategoryName         string
	ZoneName             string
	ConsumptionValue     decimal.Decimal
	DeviceMaxConsumption decimal.Decimal
	MeasurementDate      time.Time
	Notes                string
}

func (h *Handler) ExportMeasurements(c *gin.Context) {
	f, ok := measurement.ParseFilter(c)
	if !ok {
		return
	}

	var rows []measurementRow
	err := measurement.ListSpec.Search(h.Measurements.Query(c.Request.Context(), tenant.FromContext(c), f), f.Search).
		Joins("LEFT JOIN categories ON categories.id = devices.category_id").
		Joins("LEFT JOIN zones ON zones.id = devices.zone_id").
		Select(`measurements.id, devices.name AS device_name,
			categories.name AS category_name, zones.name AS zone_name,
			measurements.consumption_value, devices.max_consumption AS device_max_consumption,
			measurements.measurement_date, measurements.notes`).
		Order(measurement.ListSpec.Order(f.Sort)).
		Limit(MaxMeasurementRows).
		Scan(&rows).Error
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	exceeds := make([]bool, len(rows))
	s := Sheet{
		Name: "Mediciones",
		Headers: []string{"ID", "Dispositivo", "Categoría", "Zona", "Consumo (kW)",
			"Consumo Máximo (kW)", "¿Excede?", "Fecha Medición", "Notas"},
		Highlight: func(i int) bool { return exceeds[i] },
	}
	for i, m := range rows {
		exceeds[i] = alert.Exceeds(m.ConsumptionValue, m.DeviceMaxConsumption)
		s.Rows = append(s.Rows, []interface{}{
			m.ID, m.DeviceName, m.CategoryName, m.ZoneName,
			kw(m.ConsumptionValue), kw(m.DeviceMaxConsumption), yesNo(exceeds[i]),
			m.MeasurementDate.Format(dateTimeLayout), m.Notes,
		})
	}
	h.send(c, "mediciones", s)
}

func (h *Handler) ExportAlerts(c *gin.Context) {
	f, ok := alert.ParseFilter(c)
	if !ok {
		return
	}
	rows, err := h.Alerts.All(c.Request.Context(), tenant.FromContext(c), f)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	s := Sheet{
		Name: "Alertas",
		Headers: []string{"ID", "Dispositivo", "Severidad", "Mensaje", "Resuelta",
			"Fecha Creación", "Fecha Resolución"},
	}
	for _, a := range rows {
		resolved := ""
		if a.ResolvedAt != nil {
			resolved = a.ResolvedAt.Format(dateLayout)
		}
		s.Rows = append(s.Rows, []interface{}{
			a.ID, a.DeviceName, string(a.Severity), a.Message, yesNo(a.IsResolved),
			a.CreatedAt.Format(dateLayout), resolved,
		})
	}
	h.send(c, "alertas", s)
}
