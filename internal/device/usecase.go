package device

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/tenant"
)

// ========= USECASE: NESTED DEVICE ACTIONS =========

// DeviceStats returns total, average, max, min and how often the limit was exceeded.
func (h *Handler) DeviceStats(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	st, err := h.Svc.Stats(c.Request.Context(), tenant.FromContext(c), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ListZoneDevices lists the devices of a visible zone.
func (h *Handler) ListZoneDevices(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	if _, err := h.Zones.Get(c.Request.Context(), tenant.FromContext(c), id); err != nil {
		apperr.Respond(c, err)
		return
	}
	h.list(c, Filter{ZoneID: id, Search: c.Query("search"), Sort: c.Query("sort")})
}

// ListCategoryDevices lists the devices of a visible category.
func (h *Handler) ListCategoryDevices(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	if _, err := h.Categories.Get(c.Request.Context(), tenant.FromContext(c), id); err != nil {
		apperr.Respond(c, err)
		return
	}
	h.list(c, Filter{CategoryID: id, Search: c.Query("search"), Sort: c.Query("sort")})
}
