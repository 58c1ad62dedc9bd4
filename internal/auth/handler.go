package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/session"
)

// ErrInvalidCredentials is returned by an Authenticator for a wrong email or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator checks a login. Implemented by the user service.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (CurrentUser, error)
}

type Handler struct {
	Users  Authenticator
	Tokens *Tokens
}

func NewHandler(users Authenticator, tokens *Tokens) *Handler {
	return &Handler{Users: users, Tokens: tokens}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt int64            `json:"expires_at"`
	User      LoginUserPayload `json:"user"`
}

type LoginUserPayload struct {
	ID             int64   `json:"id"`
	Email          string  `json:"email"`
	FullName       string  `json:"full_name"`
	UserType       string  `json:"user_type"`
	OrganizationID *int64  `json:"organization_id,omitempty"`
	OrgRole        *string `json:"org_role,omitempty"`
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/auth/login", h.Login)
	r.POST("/auth/logout", h.Logout)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": i18n.T(c, i18n.M("InvalidBody", nil)),
		})
		return
	}

	cu, err := h.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_credentials",
			"message": i18n.T(c, i18n.M("InvalidCredentials", nil)),
		})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	token, exp, err := h.Tokens.Issue(cu)
	if err != nil {
		internalError(c, err)
		return
	}

	payload := LoginUserPayload{
		ID:             cu.ID,
		Email:          cu.Email,
		FullName:       cu.FullName,
		UserType:       string(cu.UserType),
		OrganizationID: cu.OrganizationID,
	}
	if cu.OrgRole != nil {
		role := string(*cu.OrgRole)
		payload.OrgRole = &role
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: exp.Unix(), User: payload})
}

// Logout drops the UI preferences of the session. JWTs are stateless and simply expire.
func (h *Handler) Logout(c *gin.Context) {
	ClearSession(session.FromContext(c))
	c.Status(http.StatusNoContent)
}

// internalError hands err to the request logger and answers with a generic message.
func internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": i18n.T(c, i18n.M("InternalError", nil)),
	})
}
