package alert

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

// jumlah alert terakhir di /devices/:id/alerts
const deviceAlertLimit = 20

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func perm(a auth.Action) gin.HandlerFunc {
	return auth.RequirePermission(auth.Perm(auth.ResourceAlert, a))
}

// Daftarkan route alerts
func (h *Handler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/alerts", perm(auth.ActionView), h.ListAlerts)
	router.POST("/alerts", perm(auth.ActionAdd), h.CreateAlert)
	router.GET("/alerts/:id", perm(auth.ActionView), h.GetAlertByID)
	router.PUT("/alerts/:id", perm(auth.ActionChange), h.UpdateAlert)
	router.PATCH("/alerts/:id", perm(auth.ActionChange), h.UpdateAlert)
	router.DELETE("/alerts/:id", perm(auth.ActionDelete), h.DeleteAlert)
	router.POST("/alerts/:id/resolve", perm(auth.ActionChange), h.ResolveAlert)
	router.GET("/devices/:id/alerts", perm(auth.ActionView), h.ListDeviceAlerts)
}

// ParseFilter reads device, severity, is_resolved, search and sort.
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
	if v := c.Query("severity"); v != "" {
		sev, ok := ParseSeverity(v)
		if !ok {
			apperr.BadRequest(c, "AlertSeverityInvalid", nil)
			return Filter{}, false
		}
		f.Severity = sev
	}
	if v := c.Query("is_resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			apperr.BadRequest(c, "InvalidFilter", i18n.Data{"Field": "is_resolved"})
			return Filter{}, false
		}
		f.IsResolved = &b
	}
	return f, true
}

func (h *Handler) ListAlerts(c *gin.Context) {
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

func (h *Handler) ListDeviceAlerts(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	rows, err := h.Svc.ForDevice(c.Request.Context(), tenant.FromContext(c), id, deviceAlertLimit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (h *Handler) GetAlertByID(c *gin.Context) {
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

func (h *Handler) CreateAlert(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}
	a, err := h.Svc.Create(c.Request.Context(), tenant.FromContext(c), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) UpdateAlert(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	scope := tenant.FromContext(c)

	a, err := h.Svc.Get(c.Request.Context(), scope, id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	in := a.Input()
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	a, err = h.Svc.Update(c.Request.Context(), scope, id, in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	if _, err := h.Svc.Resolve(c.Request.Context(), tenant.FromContext(c), id); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": i18n.T(c, i18n.M("AlertResolved", nil)),
	})
}

func (h *Handler) DeleteAlert(c *gin.Context) {
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
