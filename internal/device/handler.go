package device

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/category"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/tenant"
	"github.com/username/ecoenergy-api/internal/zone"
)

type Handler struct {
	Svc        *Service
	Zones      *zone.Service
	Categories *category.Service
}

func NewHandler(svc *Service, zones *zone.Service, categories *category.Service) *Handler {
	return &Handler{Svc: svc, Zones: zones, Categories: categories}
}

func perm(a auth.Action) gin.HandlerFunc {
	return auth.RequirePermission(auth.Perm(auth.ResourceDevice, a))
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/devices", perm(auth.ActionView), h.ListDevices)
	r.POST("/devices", perm(auth.ActionAdd), h.CreateDevice)
	r.GET("/devices/:id", perm(auth.ActionView), h.GetDeviceByID)
	r.PUT("/devices/:id", perm(auth.ActionChange), h.UpdateDevice)
	r.PATCH("/devices/:id", perm(auth.ActionChange), h.UpdateDevice)
	r.DELETE("/devices/:id", perm(auth.ActionDelete), h.DeleteDevice)

	// nested
	r.GET("/devices/:id/stats", perm(auth.ActionView), h.DeviceStats)
	r.GET("/zones/:id/devices", perm(auth.ActionView), h.ListZoneDevices)
	r.GET("/categories/:id/devices", perm(auth.ActionView), h.ListCategoryDevices)
}

// queryID reads an optional numeric filter. Returns false after writing 400 when malformed.
func queryID(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		apperr.BadRequest(c, "InvalidFilter", i18n.Data{"Field": name})
		return 0, false
	}
	return v, true
}

// ParseFilter reads category, zone, search and sort from the query string.
func ParseFilter(c *gin.Context) (Filter, bool) {
	catID, ok := queryID(c, "category")
	if !ok {
		return Filter{}, false
	}
	zoneID, ok := queryID(c, "zone")
	if !ok {
		return Filter{}, false
	}
	return Filter{
		CategoryID: catID,
		ZoneID:     zoneID,
		Search:     c.Query("search"),
		Sort:       c.Query("sort"),
	}, true
}

func (h *Handler) ListDevices(c *gin.Context) {
	f, ok := ParseFilter(c)
	if !ok {
		return
	}
	h.list(c, f)
}

func (h *Handler) list(c *gin.Context, f Filter) {
	p := pagination.ParsePagination(c)
	if c.IsAborted() {
		return
	}

	rows, total, err := h.Svc.List(c.Request.Context(), tenant.FromContext(c), f, p)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       rows,
		"pagination": p.Meta(total),
	})
}

func (h *Handler) GetDeviceByID(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	d, err := h.Svc.Detail(c.Request.Context(), tenant.FromContext(c), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func translate(c *gin.Context, msgs []i18n.Message) []string {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, i18n.T(c, m))
	}
	return out
}

func (h *Handler) CreateDevice(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	d, warnings, err := h.Svc.Create(c.Request.Context(), tenant.FromContext(c), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, SavedResponse{Device: d, Warnings: translate(c, warnings)})
}

// UpdateDevice serves PUT and PATCH; absent fields keep their value.
func (h *Handler) UpdateDevice(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	scope := tenant.FromContext(c)

	d, err := h.Svc.Get(c.Request.Context(), scope, id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	in := d.Input()
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	d, warnings, err := h.Svc.Update(c.Request.Context(), scope, id, in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, SavedResponse{Device: d, Warnings: translate(c, warnings)})
}

// DeleteDevice: device yang masih punya measurement aktif ditolak (409).
func (h *Handler) DeleteDevice(c *gin.Context) {
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
