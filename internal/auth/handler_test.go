package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/username/ecoenergy-api/internal/session"
)

type fakeUsers struct {
	cu  CurrentUser
	err error
}

func (f fakeUsers) Authenticate(_ context.Context, email, password string) (CurrentUser, error) {
	if f.err != nil {
		return CurrentUser{}, f.err
	}
	if email != f.cu.Email || password != "EcoTech2025" {
		return CurrentUser{}, ErrInvalidCredentials
	}
	return f.cu, nil
}

func loginRouter(users Authenticator) (*gin.Engine, *Tokens) {
	gin.SetMode(gin.TestMode)
	tokens := NewTokens("test-secret", time.Hour)
	r := gin.New()
	NewHandler(users, tokens).RegisterRoutes(r)
	return r, tokens
}

func postLogin(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	org := int64(3)
	role := OrgRoleOperator
	r, tokens := loginRouter(fakeUsers{cu: CurrentUser{ID: 9, Email: "op@ecotech.cl", UserType: UserTypeOrgUser, OrganizationID: &org, OrgRole: &role}})

	w := postLogin(r, `{"email":"op@ecotech.cl","password":"EcoTech2025"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(9), resp.User.ID)
	require.NotNil(t, resp.User.OrgRole)
	assert.Equal(t, "OPERATOR", *resp.User.OrgRole)

	cu, err := tokens.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(9), cu.ID)
	assert.Equal(t, org, *cu.OrganizationID)
	assert.True(t, cu.Can(Perm(ResourceMeasurement, ActionAdd)))
	assert.False(t, cu.Can(Perm(ResourceDevice, ActionDelete)))
}

func TestLogin_Failures(t *testing.T) {
	r, _ := loginRouter(fakeUsers{cu: CurrentUser{Email: "op@ecotech.cl"}})
	assert.Equal(t, http.StatusUnauthorized, postLogin(r, `{"email":"op@ecotech.cl","password":"bad"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postLogin(r, `{"email":`).Code)

	r, _ = loginRouter(fakeUsers{err: errors.New("db down")})
	assert.Equal(t, http.StatusInternalServerError, postLogin(r, `{"email":"a@b.cl","password":"x"}`).Code)
}

func TestLogin_InternalErrorIsNotLeaked(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logged []string
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		logged = append(logged, c.Errors.Errors()...)
	})
	NewHandler(fakeUsers{err: errors.New("pq: password authentication failed for user \"eco\"")}, NewTokens("test-secret", time.Hour)).RegisterRoutes(r)

	w := postLogin(r, `{"email":"a@b.cl","password":"x"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body["error"])
	assert.NotEmpty(t, body["message"])
	assert.NotContains(t, w.Body.String(), "pq:")
	assert.Equal(t, []string{`pq: password authentication failed for user "eco"`}, logged)
}

// memUsers is a UserLoader over an in-memory table.
type memUsers struct {
	users map[int64]CurrentUser
	err   error
}

func (m *memUsers) LoadUser(_ context.Context, id int64) (CurrentUser, error) {
	if m.err != nil {
		return CurrentUser{}, m.err
	}
	cu, ok := m.users[id]
	if !ok {
		return CurrentUser{}, ErrUserInactive
	}
	return cu, nil
}

func sessionRouter(users UserLoader) (*gin.Engine, session.Store) {
	gin.SetMode(gin.TestMode)
	store := session.NewMemoryStore(zap.NewNop())
	opts := session.Options{CookieName: "sid", TTL: time.Hour}

	r := gin.New()
	r.Use(session.Middleware(store, opts, zap.NewNop()), SessionMiddleware(users))
	r.POST("/login", func(c *gin.Context) {
		sess := session.FromContext(c)
		if err := LoginSession(sess, CurrentUser{ID: 1}); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		sess.SetInt(session.KeyZoneVisits, 4)
		c.Status(http.StatusNoContent)
	})
	r.GET("/panel", RequireSessionLogin("/login"), func(c *gin.Context) {
		cu, _ := GetCurrentUser(c)
		c.String(http.StatusOK, cu.Email)
	})
	r.POST("/logout", func(c *gin.Context) {
		ClearSession(session.FromContext(c))
		c.Status(http.StatusNoContent)
	})
	return r, store
}

// loginCookie logs in through /login and returns the session cookie plus a client sending it.
func loginCookie(t *testing.T, r http.Handler) (*http.Cookie, func(method, path string) *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0], func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.AddCookie(cookies[0])
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
}

func TestSessionLogin(t *testing.T) {
	users := &memUsers{users: map[int64]CurrentUser{
		1: {ID: 1, Email: "root@ecoenergy.cl", UserType: UserTypeSuperAdmin},
	}}
	r, store := sessionRouter(users)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panel", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=/panel", w.Header().Get("Location"))

	cookie, withCookie := loginCookie(t, r)
	w = withCookie(http.MethodGet, "/panel")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "root@ecoenergy.cl", w.Body.String())

	withCookie(http.MethodPost, "/logout")
	values, err := store.Load(context.Background(), cookie.Value)
	if err == nil {
		_, visits := values[session.KeyZoneVisits]
		assert.False(t, visits, "logout drops the zone visit counter")
	}
	assert.Equal(t, http.StatusFound, withCookie(http.MethodGet, "/panel").Code)
}

func TestSessionMiddleware_ReloadsUser(t *testing.T) {
	org := int64(5)
	admin, viewer := OrgRoleAdmin, OrgRoleViewer
	users := &memUsers{users: map[int64]CurrentUser{
		1: {ID: 1, Email: "admin@ecotech.cl", UserType: UserTypeOrgUser, OrganizationID: &org, OrgRole: &admin},
	}}
	r, store := sessionRouter(users)
	r.GET("/zones/delete", RequireSessionLogin("/login"), RequirePermission(Perm(ResourceZone, ActionDelete)), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	cookie, withCookie := loginCookie(t, r)
	assert.Equal(t, http.StatusNoContent, withCookie(http.MethodGet, "/zones/delete").Code)

	// rol diturunkan: berlaku di request berikutnya
	users.users[1] = CurrentUser{ID: 1, Email: "admin@ecotech.cl", UserType: UserTypeOrgUser, OrganizationID: &org, OrgRole: &viewer}
	assert.Equal(t, http.StatusForbidden, withCookie(http.MethodGet, "/zones/delete").Code)

	users.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, withCookie(http.MethodGet, "/panel").Code)
	users.err = nil

	delete(users.users, 1)
	w := withCookie(http.MethodGet, "/panel")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=/panel", w.Header().Get("Location"))

	values, err := store.Load(context.Background(), cookie.Value)
	if err != nil {
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
		return
	}
	_, still := values[sessionUserKey]
	assert.False(t, still, "an inactive user is logged out of the session")
}

func TestLoginSession_StoresOnlyID(t *testing.T) {
	sess := session.FromContext(&gin.Context{})
	require.NoError(t, LoginSession(sess, CurrentUser{ID: 42, Email: "a@b.cl"}))
	id, ok := SessionUserID(sess)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	raw, _ := sess.Get(sessionUserKey)
	assert.Equal(t, "42", raw)

	assert.Error(t, LoginSession(sess, CurrentUser{}))
}
