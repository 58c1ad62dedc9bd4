package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/session"
)

const sessionUserKey = "_auth_user_id"

// ErrUserInactive is returned by a UserLoader when the user is gone or deactivated.
var ErrUserInactive = errors.New("user not found or inactive")

// UserLoader reloads the web identity on every request. Implemented by the user service.
type UserLoader interface {
	LoadUser(ctx context.Context, id int64) (CurrentUser, error)
}

// LoginSession stores the id of the logged-in user in the session.
func LoginSession(sess *session.Session, cu CurrentUser) error {
	if cu.ID <= 0 {
		return errors.New("session login without user id")
	}
	sess.Set(sessionUserKey, strconv.FormatInt(cu.ID, 10))
	return nil
}

// SessionUserID returns the id stored by LoginSession.
func SessionUserID(sess *session.Session) (int64, bool) {
	raw, ok := sess.Get(sessionUserKey)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ClearSession logs the web identity out and drops the zone visit counter and saved filters.
func ClearSession(sess *session.Session) {
	sess.Delete(sessionUserKey, session.KeyZoneVisits, session.KeyZoneFilters)
}

// SessionMiddleware loads the current state of the session user into the request context.
// A deactivated or deleted user is logged out; role changes apply on the next request.
func SessionMiddleware(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := session.FromContext(c)
		id, ok := SessionUserID(sess)
		if !ok {
			c.Next()
			return
		}

		cu, err := users.LoadUser(c.Request.Context(), id)
		switch {
		case errors.Is(err, ErrUserInactive):
			ClearSession(sess)
		case err != nil:
			internalError(c, err)
			return
		default:
			c.Set(ContextUserKey, cu)
		}
		c.Next()
	}
}

// RequireSessionLogin redirects anonymous page views to the login form.
func RequireSessionLogin(loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetCurrentUser(c); !ok {
			c.Redirect(http.StatusFound, loginPath+"?next="+c.Request.URL.RequestURI())
			c.Abort()
			return
		}
		c.Next()
	}
}
