package category

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
	return auth.RequirePermission(auth.Perm(auth.ResourceCategory, a))
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/categories", perm(auth.ActionView), h.ListCategories)
	r.POST("/categories", perm(auth.ActionAdd), h.CreateCategory)
	r.GET("/categories/:id", perm(auth.ActionView), h.GetCategoryByID)
	r.PUT("/categories/:id", perm(auth.ActionChange), h.UpdateCategory)
	r.PATCH("/categories/:id", perm(auth.ActionChange), h.UpdateCategory)
	r.DELETE("/categories/:id", perm(auth.ActionDelete), h.DeleteCategory)
}

func (h *Handler) ListCategories(c *gin.Context) {
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

func (h *Handler) GetCategoryByID(c *gin.Context) {
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

func (h *Handler) CreateCategory(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	cat, err := h.Svc.Create(c.Request.Context(), tenant.FromContext(c), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (h *Handler) UpdateCategory(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	scope := tenant.FromContext(c)

	cat, err := h.Svc.Get(c.Request.Context(), scope, id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	in := cat.Input()
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	cat, err = h.Svc.Update(c.Request.Context(), scope, id, in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

// DeleteCategory soft-delete; 409 kalau masih dipakai device aktif.
func (h *Handler) DeleteCategory(c *gin.Context) {
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
