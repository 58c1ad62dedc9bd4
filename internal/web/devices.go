package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/measurement"
	"github.com/username/ecoenergy-api/internal/session"
	"github.com/username/ecoenergy-api/internal/tenant"
)

// jumlah baris terakhir di halaman detail device
const (
	detailMeasurements = 10
	detailAlerts       = 5
)

// queryInt64 ignores malformed ids; pages fall back to "any".
func queryInt64(c *gin.Context, name string) int64 {
	n, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// catalogOptions lists the visible categories and zones for selects and filters.
func (h *Handler) catalogOptions(ctx context.Context, scope tenant.Scope, categoryID, zoneID int64) ([]Option, []Option, error) {
	cats, err := h.Categories.All(ctx, scope, "", "name")
	if err != nil {
		return nil, nil, err
	}
	zones, err := h.Zones.All(ctx, scope, "", "name")
	if err != nil {
		return nil, nil, err
	}
	catIDs, catNames := make([]int64, len(cats)), make([]string, len(cats))
	for i, x := range cats {
		catIDs[i], catNames[i] = x.ID, x.Name
		if scope.Unrestricted() {
			catNames[i] += " (" + x.OrganizationName + ")"
		}
	}
	zoneIDs, zoneNames := make([]int64, len(zones)), make([]string, len(zones))
	for i, x := range zones {
		zoneIDs[i], zoneNames[i] = x.ID, x.Name
		if scope.Unrestricted() {
			zoneNames[i] += " (" + x.OrganizationName + ")"
		}
	}
	return options(categoryID, catIDs, catNames), options(zoneID, zoneIDs, zoneNames), nil
}

func (h *Handler) ListDevices(c *gin.Context) {
	scope := tenant.FromContext(c)
	f := device.Filter{CategoryID: queryInt64(c, "category"), ZoneID: queryInt64(c, "zone")}

	rows, page, err := h.Devices.Page(c.Request.Context(), scope, f, device.ListSpec.Parse(c, session.FromContext(c)))
	if err != nil {
		h.fail(c, err)
		return
	}
	cats, zones, err := h.catalogOptions(c.Request.Context(), scope, f.CategoryID, f.ZoneID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "devices", gin.H{
		"Title":      "Dispositivos",
		"Rows":       rows,
		"Page":       page,
		"Categories": cats,
		"Zones":      zones,
	})
}

func (h *Handler) ShowDevice(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.ErrNotFound)
		return
	}
	ctx, scope := c.Request.Context(), tenant.FromContext(c)

	d, err := h.Devices.Detail(ctx, scope, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	stats, err := h.Devices.Stats(ctx, scope, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ms, err := h.Measurements.ForDevice(ctx, scope, id, measurement.Filter{}, detailMeasurements)
	if err != nil {
		h.fail(c, err)
		return
	}
	as, err := h.Alerts.ForDevice(ctx, scope, id, detailAlerts)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "device_detail", gin.H{
		"Title":        d.Name,
		"Device":       d,
		"Stats":        stats,
		"Measurements": ms,
		"Alerts":       as,
	})
}

func (h *Handler) deviceForm(c *gin.Context, in device.Input, action, title string, create bool) (*Form, error) {
	cats, zones, err := h.catalogOptions(c.Request.Context(), tenant.FromContext(c), in.CategoryID, in.ZoneID)
	if err != nil {
		return nil, err
	}
	max := ""
	if !in.MaxConsumption.IsZero() {
		max = in.MaxConsumption.String()
	}
	f := &Form{
		Title:  title,
		Action: action,
		Cancel: "/devices",
		Submit: "Guardar",
		Fields: []Field{
			{Name: "name", Label: "Nombre", Type: "text", Value: in.Name, Required: true},
			{Name: "description", Label: "Descripción", Type: "textarea", Value: in.Description},
			{Name: "max_consumption", Label: "Consumo máximo (kW)", Type: "number", Step: "0.01", Value: max, Required: true},
			{Name: "category_id", Label: "Categoría", Type: "select", Options: cats, Required: true},
			{Name: "zone_id", Label: "Zona", Type: "select", Options: zones, Required: true},
		},
	}
	if !create {
		return f, nil
	}
	org, err := h.organizationField(c, in.OrganizationID)
	if err != nil {
		return nil, err
	}
	if org != nil {
		f.Fields = append(f.Fields, *org)
	}
	return f, nil
}

func deviceInput(c *gin.Context) device.Input {
	return device.Input{
		Name:           c.PostForm("name"),
		Description:    c.PostForm("description"),
		MaxConsumption: formDecimal(c, "max_consumption"),
		CategoryID:     formInt64(c, "category_id"),
		ZoneID:         formInt64(c, "zone_id"),
		OrganizationID: formInt64Ptr(c, "organization_id"),
	}
}

func (h *Handler) NewDevice(c *gin.Context) {
	in := device.Input{CategoryID: queryInt64(c, "category"), ZoneID: queryInt64(c, "zone")}
	f, err := h.deviceForm(c, in, "/devices/new", "Nuevo dispositivo", true)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "form", gin.H{"Title": f.Title, "Form": f})
}

func (h *Handler) CreateDevice(c *gin.Context) {
	in := deviceInput(c)
	d, warnings, err := h.Devices.Create(c.Request.Context(), tenant.FromContext(c), in)
	if err != nil {
		h.formError(c, err, func() (*Form, error) {
			return h.deviceForm(c, in, "/devices/new", "Nuevo dispositivo", true)
		})
		return
	}
	h.saved(c, i18n.M("DeviceCreated", i18n.Data{"Name": d.Name}), warnings)
	h.redirect(c, "/devices/"+idString(d.ID))
}

func (h *Handler) EditDevice(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.ErrNotFound)
		return
	}
	d, err := h.Devices.Get(c.Request.Context(), tenant.FromContext(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	f, err := h.deviceForm(c, d.Input(), "/devices/"+idString(id)+"/edit", "Editar dispositivo", false)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "form", gin.H{"Title": f.Title, "Form": f})
}

func (h *Handler) UpdateDevice(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.ErrNotFound)
		return
	}
	in := deviceInput(c)
	d, warnings, err := h.Devices.Update(c.Request.Context(), tenant.FromContext(c), id, in)
	if err != nil {
		h.formError(c, err, func() (*Form, error) {
			return h.deviceForm(c, in, "/devices/"+idString(id)+"/edit", "Editar dispositivo", false)
		})
		return
	}
	h.saved(c, i18n.M("DeviceUpdated", i18n.Data{"Name": d.Name}), warnings)
	h.redirect(c, "/devices/"+idString(d.ID))
}

// saved flashes the success message followed by the non-blocking warnings.
func (h *Handler) saved(c *gin.Context, msg i18n.Message, warnings []i18n.Message) {
	h.flash(c, session.FlashSuccess, msg)
	for _, w := range translateAll(c, warnings) {
		session.FromContext(c).AddFlash(session.FlashWarning, w)
	}
}

func (h *Handler) DeleteDevice(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.ajaxResult(c, apperr.ErrNotFound, i18n.Message{})
		return
	}
	d, err := h.Devices.Delete(c.Request.Context(), tenant.FromContext(c), id)
	var name string
	if d != nil {
		name = d.Name
	}
	h.ajaxResult(c, err, i18n.M("DeviceDeleted", i18n.Data{"Name": name}))
}
