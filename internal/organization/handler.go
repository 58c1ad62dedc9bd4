package organization

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/tenant"
	"github.com/username/ecoenergy-api/internal/user"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// CreateRequest is the organization body plus optional first admin fields.
type CreateRequest struct {
	Input
	AdminInput
}

type CreateResponse struct {
	Organization Organization          `json:"organization"`
	AdminUser    *OrganizationAdminDTO `json:"admin_user,omitempty"`
}

type OrganizationAdminDTO struct {
	ID             int64  `json:"id"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	UserType       string `json:"user_type"`
	OrganizationID int64  `json:"organization_id"`
	OrgRole        string `json:"org_role"`
}

func adminDTO(u *user.User) *OrganizationAdminDTO {
	if u == nil {
		return nil
	}
	dto := &OrganizationAdminDTO{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		UserType: string(u.UserType),
	}
	if u.OrganizationID != nil {
		dto.OrganizationID = *u.OrganizationID
	}
	if u.OrgRole != nil {
		dto.OrgRole = string(*u.OrgRole)
	}
	return dto
}

func perm(a auth.Action) gin.HandlerFunc {
	return auth.RequirePermission(auth.Perm(auth.ResourceOrganization, a))
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/organizations", perm(auth.ActionView), h.ListOrganizations)
	r.POST("/organizations", perm(auth.ActionAdd), h.CreateOrganization)
	r.GET("/organizations/:id", perm(auth.ActionView), h.GetOrganizationByID)
	r.PUT("/organizations/:id", perm(auth.ActionChange), h.UpdateOrganization)
	r.PATCH("/organizations/:id", perm(auth.ActionChange), h.UpdateOrganization)
	r.DELETE("/organizations/:id", perm(auth.ActionDelete), h.DeleteOrganization)
}

// RegisterPublicRoutes mounts the self-service sign-up.
func (h *Handler) RegisterPublicRoutes(r gin.IRoutes) {
	r.POST("/auth/register", h.Register)
}

// ListOrganizations: superuser lihat semua, user org hanya organisasinya sendiri.
func (h *Handler) ListOrganizations(c *gin.Context) {
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

func (h *Handler) GetOrganizationByID(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	org, err := h.Svc.Summary(c.Request.Context(), tenant.FromContext(c), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// CreateOrganization membuat organisasi baru, admin pertama opsional (admin_email kosong = tanpa admin).
func (h *Handler) CreateOrganization(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	var admin *AdminInput
	if req.AdminInput.Email != "" {
		admin = &req.AdminInput
	}

	org, adminUser, err := h.Svc.Create(c.Request.Context(), req.Input, admin)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateResponse{Organization: *org, AdminUser: adminDTO(adminUser)})
}

// UpdateOrganization serves PUT and PATCH: absent fields keep their current value.
func (h *Handler) UpdateOrganization(c *gin.Context) {
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	scope := tenant.FromContext(c)

	org, err := h.Svc.Get(c.Request.Context(), scope, id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	in := org.Input()
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	org, err = h.Svc.Update(c.Request.Context(), scope, id, in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// DeleteOrganization soft-delete, ditolak selama masih ada device aktif.
func (h *Handler) DeleteOrganization(c *gin.Context) {
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

// Register is the public sign-up endpoint.
func (h *Handler) Register(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	org, adminUser, err := h.Svc.Register(c.Request.Context(), req.Input, req.AdminInput)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":      i18n.T(c, i18n.M("RegisterSuccess", nil)),
		"organization": org,
		"admin_user":   adminDTO(adminUser),
	})
}
