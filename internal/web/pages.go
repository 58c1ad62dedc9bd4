package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/session"
	"github.com/username/ecoenergy-api/internal/tenant"
)

// safeNext only follows local redirects.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func (h *Handler) LoginForm(c *gin.Context) {
	if _, ok := auth.GetCurrentUser(c); ok {
		h.redirect(c, safeNext(c.Query("next")))
		return
	}
	h.render(c, http.StatusOK, "login", gin.H{"Title": "Iniciar sesión", "Next": c.Query("next")})
}

func (h *Handler) Login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	next := c.PostForm("next")

	cu, err := h.Users.Authenticate(c.Request.Context(), email, c.PostForm("password"))
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			h.Log.Error("web login failed", zap.Error(err))
		}
		h.render(c, http.StatusOK, "login", gin.H{
			"Title": "Iniciar sesión",
			"Next":  next,
			"Email": email,
			"Error": i18n.T(c, i18n.M("InvalidCredentials", nil)),
		})
		return
	}

	sess := session.FromContext(c)
	if err := auth.LoginSession(sess, cu); err != nil {
		h.fail(c, err)
		return
	}
	name := cu.FullName
	if name == "" {
		name = cu.Email
	}
	h.flash(c, session.FlashSuccess, i18n.M("Welcome", i18n.Data{"Name": name}))
	h.Log.Info("web login", zap.Int64("user_id", cu.ID))
	h.redirect(c, safeNext(next))
}

func (h *Handler) Logout(c *gin.Context) {
	auth.ClearSession(session.FromContext(c))
	h.flash(c, session.FlashInfo, i18n.M("LoggedOut", nil))
	h.redirect(c, LoginPath)
}

func (h *Handler) Dashboard(c *gin.Context) {
	stats, err := h.Services.Dashboard.Stats(c.Request.Context(), tenant.FromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "dashboard", gin.H{"Title": "Dashboard", "Stats": stats})
}
