package measurement

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/tenant"
)

// jumlah measurement terakhir di /devices/:id/measurements
const deviceMeasurementLimit = 50

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func perm(a auth.Action) gin.HandlerFunc {
	return auth.RequirePermission(auth.Perm(auth.ResourceMeasurement, a))
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/measurements", perm(auth.ActionView), h.ListMeasurements)
	r.POST("/measurements", perm(auth.ActionAdd), h.CreateMeasurement)
	r.GET("/measurements/:id", perm(auth.ActionView), h.GetMeasurementByID)
	r.PUT("/measurements/:id", perm(auth.ActionChange), h.UpdateMeasurement)
	r.PATCH("/measurements/:id", perm(auth.ActionChange), h.UpdateMeasurement)
	r.DELETE("/measurements/:id", perm(auth.ActionDelete), h.DeleteMeasurement)
	r.GET("/devices/:id/measurements", perm(auth.ActionView), h.ListDeviceMeasurements)
}

// ParseFilter reads device, date_from, date_to, search and sort.
func ParseFilter(c *gin.Context) (Filter, bool) {
	f := Filter{Search: c.Query("search"), Sort: c.Query("sort")}

	if v := c.Query("device"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			apperr.BadRequest(c, "InvalidFilter", i18n.Data{"Field": "device"})
			return Filter{}, false
		}
		f.DeviceID = id
	}

	from, err := ParseDate(c.Query("date_from"), false)
	if err != nil {
		apperr.BadRequest(c, "InvalidDate", nil)
		return Filter{}, false
	}
	to, err := ParseDate(c.Query("date_to"), true)
	if err != nil {
		apperr.BadRequest(c, "InvalidDate", nil)
		return Filter{}, false
	}
	f.From, f.To = from, to
	return f, true
}

func (h *Handler) ListMeasurements(c *gin.Context) {
	f, ok := ParseFilter(c)
	if !ok {
		return
	}
	p := pagination.ParsePagination(c)
	if c.IsAborted() {
		return
	}

	rows, total, err := h.Svc.List(c.Request.Context(), tenant.FromContext(c), f, p)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "pagination": p.Meta(total)})
}

func (h *Handler) ListDeviceMeasurements(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	f, ok := ParseFilter(c)
	if !ok {
		return
	}

	rows, err := h.Svc.ForDevice(c.Request.Context(), tenant.FromContext(c), id, f, deviceMeasurementLimit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (h *Handler) GetMeasurementByID(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	row, err := h.Svc.Summary(c.Request.Context(), tenant.FromContext(c), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// CreateMeasurement returns the measurement plus the alert it raised (null if none).
func (h *Handler) CreateMeasurement(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	out, err := h.Svc.Create(c.Request.Context(), tenant.FromContext(c), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) UpdateMeasurement(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	scope := tenant.FromContext(c)

	m, err := h.Svc.Get(c.Request.Context(), scope, id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	in := m.Input()
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	row, err := h.Svc.Update(c.Request.Context(), scope, id, in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *Handler) DeleteMeasurement(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	if _, err := h.Svc.Delete(c.Request.Context(), tenant.FromContext(c), id); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
