package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/pagination"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

type UserDTO struct {
	ID             int64  `json:"id"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	UserType       string `json:"user_type"`
	OrganizationID int64  `json:"organization_id"`
	OrgRole        string `json:"org_role"`
	RoleLabel      string `json:"role_label,omitempty"`
	Phone          string `json:"phone"`
	Position       string `json:"position"`
	Address        string `json:"address"`
	Avatar         string `json:"avatar,omitempty"`
	Active         bool   `json:"active"`
}

func ToDTO(u *User) UserDTO {
	dto := UserDTO{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		UserType: string(u.UserType),
		Phone:    u.Phone,
		Position: u.Position,
		Address:  u.Address,
		Active:   u.Active,
	}
	if u.OrganizationID != nil {
		dto.OrganizationID = *u.OrganizationID
	}
	if u.OrgRole != nil {
		dto.OrgRole = string(*u.OrgRole)
		dto.RoleLabel = auth.RoleLabel(*u.OrgRole)
	}
	if u.AvatarPath != "" {
		dto.Avatar = "/media/" + u.AvatarPath
	}
	return dto
}

// RegisterRoutes mounts user management (org admins) and the self-service profile.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	admin := auth.RequireOrgAdmin()
	r.POST("/users", admin, h.CreateUserInOrg)
	r.GET("/users", admin, h.ListUsers)
	r.GET("/users/:id", admin, h.GetUserByID)
	r.PUT("/users/:id", admin, h.UpdateUser)
	r.PATCH("/users/:id", admin, h.UpdateUser)
	r.DELETE("/users/:id", admin, h.DeleteUser)

	r.GET("/roles", h.ListRoles)
	r.GET("/profile", h.GetProfile)
	r.PUT("/profile", h.UpdateProfile)
	r.POST("/profile/avatar", h.UploadAvatar)
	r.POST("/auth/password/change", h.ChangePassword)
}

// RegisterPublicRoutes mounts the password reset flow.
func (h *Handler) RegisterPublicRoutes(r gin.IRoutes) {
	r.POST("/auth/password/reset", h.RequestPasswordReset)
	r.POST("/auth/password/reset/confirm", h.ConfirmPasswordReset)
}

func currentUser(c *gin.Context) (auth.CurrentUser, bool) {
	cu, ok := auth.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": i18n.T(c, i18n.M("Unauthorized", nil))})
	}
	return cu, ok
}

// ListUsers: SUPER_ADMIN lihat semua, admin org hanya user organisasinya.
func (h *Handler) ListUsers(c *gin.Context) {
	cu, ok := currentUser(c)
	if !ok {
		return
	}
	p := pagination.ParsePagination(c)
	if c.IsAborted() {
		return
	}

	users, total, err := h.Svc.List(c.Request.Context(), cu, p.Limit, p.Offset)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	out := make([]UserDTO, 0, len(users))
	for i := range users {
		out = append(out, ToDTO(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "pagination": p.Meta(total)})
}

func (h *Handler) GetUserByID(c *gin.Context) {
	cu, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	u, err := h.Svc.Get(c.Request.Context(), cu, id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ToDTO(u))
}

func (h *Handler) CreateUserInOrg(c *gin.Context) {
	cu, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	u, err := h.Svc.Create(c.Request.Context(), cu, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, ToDTO(u))
}

// UpdateUser: ganti nama, role, password, status aktif.
func (h *Handler) UpdateUser(c *gin.Context) {
	cu, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	var req UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	u, err := h.Svc.Update(c.Request.Context(), cu, id, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ToDTO(u))
}

// DeleteUser soft-delete: active = false
func (h *Handler) DeleteUser(c *gin.Context) {
	cu, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := apperr.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.Svc.Deactivate(c.Request.Context(), cu, id); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListRoles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": auth.Roles()})
}

func (h *Handler) GetProfile(c *gin.Context) {
	cu, ok := currentUser(c)
	if !ok {
		return
	}
	u, err := h.Svc.Profile(c.Request.Context(), cu.ID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ToDTO(u))
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	cu, ok := currentUser(c)
	if !ok {
		return
	}
	u, err := h.Svc.Profile(c.Request.Context(), cu.ID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	in := u.ProfileInput()
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}

	u, err = h.Svc.UpdateProfile(c.Request.Context(), cu.ID, in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": i18n.T(c, i18n.M("ProfileUpdated", nil)),
		"user":    ToDTO(u),
	})
}

// UploadAvatar menerima multipart field "avatar".
func (h *Handler) UploadAvatar(c *gin.Context) {
	cu, ok := currentUser(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("avatar")
	if err != nil {
		apperr.Respond(c, apperr.Invalid("avatar", "Required", nil))
		return
	}

	u, err := h.Svc.SaveAvatar(c.Request.Context(), cu.ID, fh)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": i18n.T(c, i18n.M("AvatarUpdated", nil)),
		"user":    ToDTO(u),
	})
}

func (h *Handler) ChangePassword(c *gin.Context) {
	cu, ok := currentUser(c)
	if !ok {
		return
	}
	var in PasswordChangeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}
	if err := h.Svc.ChangePassword(c.Request.Context(), cu.ID, in); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": i18n.T(c, i18n.M("PasswordChanged", nil))})
}

// RequestPasswordReset selalu 202, email terdaftar atau tidak.
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}
	if err := h.Svc.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": i18n.T(c, ResetMessage)})
}

func (h *Handler) ConfirmPasswordReset(c *gin.Context) {
	var in ResetInput
	if err := c.ShouldBindJSON(&in); err != nil {
		apperr.BadRequest(c, "InvalidBody", nil)
		return
	}
	if err := h.Svc.ConfirmPasswordReset(c.Request.Context(), in); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": i18n.T(c, i18n.M("PasswordResetDone", nil))})
}
