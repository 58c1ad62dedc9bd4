package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/measurement"
	"github.com/username/ecoenergy-api/internal/session"
	"github.com/username/ecoenergy-api/internal/tenant"
)

func (h *Handler) deviceOptions(c *gin.Context, selected int64) ([]Option, error) {
	devices, err := h.Devices.All(c.Request.Context(), tenant.FromContext(c), device.Filter{Sort: "name"})
	if err != nil {
		return nil, err
	}
	ids, names := make([]int64, len(devices)), make([]string, len(devices))
	for i, d := range devices {
		ids[i], names[i] = d.ID, d.Name+" ("+d.ZoneName+")"
	}
	return options(selected, ids, names), nil
}

// ListMeasurements filters by device and date range; malformed dates are ignored.
func (h *Handler) ListMeasurements(c *gin.Context) {
	f := measurement.Filter{DeviceID: queryInt64(c, "device")}
	if from, err := measurement.ParseDate(c.Query("date_from"), false); err == nil {
		f.From = from
	}
	if to, err := measurement.ParseDate(c.Query("date_to"), true); err == nil {
		f.To = to
	}

	rows, page, err := h.Measurements.Page(c.Request.Context(), tenant.FromContext(c), f, measurement.ListSpec.Parse(c, session.FromContext(c)))
	if err != nil {
		h.fail(c, err)
		return
	}
	devices, err := h.deviceOptions(c, f.DeviceID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "measurements", gin.H{
		"Title":    "Mediciones",
		"Rows":     rows,
		"Page":     page,
		"Devices":  devices,
		"DateFrom": c.Query("date_from"),
		"DateTo":   c.Query("date_to"),
		"Export":   h.Export != nil,
	})
}

func (h *Handler) ShowMeasurement(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.ErrNotFound)
		return
	}
	m, err := h.Measurements.Summary(c.Request.Context(), tenant.FromContext(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "measurement_detail", gin.H{"Title": "Medición", "M": m})
}

func (h *Handler) measurementForm(c *gin.Context, in measurement.Input, action, title string) (*Form, error) {
	devices, err := h.deviceOptions(c, in.DeviceID)
	if err != nil {
		return nil, err
	}
	value, date := "", ""
	if !in.ConsumptionValue.IsZero() {
		value = in.ConsumptionValue.String()
	}
	if in.MeasurementDate != nil {
		date = in.MeasurementDate.In(time.Local).Format(dateTimeLocal)
	}
	return &Form{
		Title:  title,
		Action: action,
		Cancel: "/measurements",
		Submit: "Guardar",
		Fields: []Field{
			{Name: "device_id", Label: "Dispositivo", Type: "select", Options: devices, Required: true},
			{Name: "consumption_value", Label: "Consumo (kW)", Type: "number", Step: "0.01", Value: value, Required: true},
			{Name: "measurement_date", Label: "Fecha de medición", Type: "datetime-local", Value: date},
			{Name: "notes", Label: "Notas", Type: "textarea", Value: in.Notes},
		},
	}, nil
}

// measurementInput reads the form. A malformed date is reported as a field error.
func measurementInput(c *gin.Context) (measurement.Input, error) {
	in := measurement.Input{
		DeviceID:         formInt64(c, "device_id"),
		ConsumptionValue: formDecimal(c, "consumption_value"),
		Notes:            c.PostForm("notes"),
	}
	date, ok := formTime(c, "measurement_date")
	if !ok {
		return in, apperr.Invalid("measurement_date", "InvalidDate", nil)
	}
	in.MeasurementDate = date
	return in, nil
}

func (h *Handler) NewMeasurement(c *gin.Context) {
	in := measurement.Input{DeviceID: queryInt64(c, "device")}
	f, err := h.measurementForm(c, in, "/measurements/new", "Registrar medición")
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "form", gin.H{"Title": f.Title, "Form": f})
}

// CreateMeasurement records the reading and warns when it raised an alert.
func (h *Handler) CreateMeasurement(c *gin.Context) {
	in, err := measurementInput(c)
	var out *measurement.Created
	if err == nil {
		out, err = h.Measurements.Create(c.Request.Context(), tenant.FromContext(c), in)
	}
	if err != nil {
		h.formError(c, err, func() (*Form, error) {
			return h.measurementForm(c, in, "/measurements/new", "Registrar medición")
		})
		return
	}
	h.flash(c, session.FlashSuccess, i18n.M("MeasurementRecorded", i18n.Data{
		"Value": out.Measurement.ConsumptionValue.StringFixed(2),
	}))
	if out.Alert != nil {
		h.flash(c, session.FlashWarning, i18n.M("AlertRaised", nil))
	}
	h.redirect(c, "/measurements")
}

func (h *Handler) EditMeasurement(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.ErrNotFound)
		return
	}
	m, err := h.Measurements.Get(c.Request.Context(), tenant.FromContext(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	f, err := h.measurementForm(c, m.Input(), "/measurements/"+idString(id)+"/edit", "Editar medición")
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "form", gin.H{"Title": f.Title, "Form": f})
}

func (h *Handler) UpdateMeasurement(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.ErrNotFound)
		return
	}
	in, err := measurementInput(c)
	if err == nil {
		_, err = h.Measurements.Update(c.Request.Context(), tenant.FromContext(c), id, in)
	}
	if err != nil {
		h.formError(c, err, func() (*Form, error) {
			return h.measurementForm(c, in, "/measurements/"+idString(id)+"/edit", "Editar medición")
		})
		return
	}
	h.flash(c, session.FlashSuccess, i18n.M("MeasurementUpdated", nil))
	h.redirect(c, "/measurements/"+idString(id))
}

func (h *Handler) DeleteMeasurement(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.ajaxResult(c, apperr.ErrNotFound, i18n.Message{})
		return
	}
	_, err = h.Measurements.Delete(c.Request.Context(), tenant.FromContext(c), id)
	h.ajaxResult(c, err, i18n.M("MeasurementDeleted", nil))
}
