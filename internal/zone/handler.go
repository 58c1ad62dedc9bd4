package zone

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/tenant"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func perm(a auth.Action) gin.HandlerFunc {
	return auth.RequirePermission(auth.Perm(auth.ResourceZone, a))
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/zones", perm(auth.ActionView), h.ListZones)
	r.POST("/zones", perm(auth.ActionAdd), h.CreateZone)
	r.GET("/zones/:id", perm(auth.ActionView), h.GetZoneByID)
	r.PUT("/zones/:id", perm(auth.ActionChange), h.UpdateZone)
	r.PATCH("/zones/:id", perm(auth.ActionChange), h.UpdateZone)
	r.DELETE("/zones/:id", perm(auth.ActionDelete), h.DeleteZone)
}

func (h *Handler) ListZones(c *gin.Context) {
	p := pagination.ParsePagination(c)
	if c.IsAborted() {
		return
	}

	rows, total, err := h.Svc.List(c.Request.Context(), tenant.FromContext(c), c.Query("search"), c.Query("sort"), p)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       rows,
		"pagination": p.Meta(total),
	})
}

func (h *Handler) GetZoneByID(c *gin.Context) {
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

func (h *Handler) CreateZone(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	z, err := h.Svc.Create(c.Request.Context(), tenant.FromContext(c), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, z)
}

func (h *Handler) UpdateZone(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	scope := tenant.FromContext(c)

	z, err := h.Svc.Get(c.Request.Context(), scope, id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	in := z.Input()
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	z, err = h.Svc.Update(c.Request.Context(), scope, id, in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, z)
}

// DeleteZone: zona yang masih punya device aktif tidak bisa dihapus.
func (h *Handler) DeleteZone(c *gin.Context) {
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
