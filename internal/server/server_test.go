package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/username/ecoenergy-api/internal/apidoc"
	"github.com/username/ecoenergy-api/internal/config"
	"github.com/username/ecoenergy-api/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(fmt.Sprintf(`
server:
  mode: test
  version: 9.9.9
  web: true
database:
  type: sqlite
jwt:
  secret: server-test-secret
metrics:
  enabled: true
uploads:
  dir: %q
cors:
  allowed_origins: ["http://panel.ecotech.cl"]
`, t.TempDir())))
	require.NoError(t, err)
	return cfg
}

func newServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	cfg := testConfig(t)
	s, err := New(cfg, testutil.NewDB(t), nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, cfg
}

func TestHealth(t *testing.T) {
	s, _ := newServer(t)

	for _, path := range []string{"/health", "/info"} {
		w := testutil.Do(s.Handler(), http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		body := w.Body.String()
		assert.Equal(t, "ok", gjson.Get(body, "status").String())
		assert.Equal(t, "9.9.9", gjson.Get(body, "version").String())
		assert.Equal(t, ServiceName, gjson.Get(body, "service").String())
		assert.Equal(t, "connected", gjson.Get(body, "database").String())
		assert.NotEmpty(t, gjson.Get(body, "timestamp").String())
	}
}

var docParam = regexp.MustCompile(`\{(\w+)\}`)

func TestDocumentedRoutesAreRegistered(t *testing.T) {
	s, cfg := newServer(t)

	registered := map[string]bool{}
	for _, r := range s.engine.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	doc, err := apidoc.Load(cfg.Server.Version)
	require.NoError(t, err)
	for path, item := range doc.Paths.Map() {
		ginPath := docParam.ReplaceAllString(path, ":$1")
		for method := range item.Operations() {
			assert.True(t, registered[method+" "+ginPath], "%s %s is documented but not routed", method, path)
		}
	}
}

func TestAPIRequiresToken(t *testing.T) {
	s, _ := newServer(t)

	w := testutil.Do(s.Handler(), http.MethodGet, "/api/zones", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = testutil.Do(s.Handler(), http.MethodGet, "/api/openapi.json", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginThenAPI(t *testing.T) {
	s, _ := newServer(t)
	db := s.db
	org := testutil.CreateOrganization(t, db, "EcoTech")
	testutil.CreateZone(t, db, org.ID, "Planta Norte")
	testutil.CreateUser(t, db, "root@ecotech.cl", "Secreto123", nil, "")

	w := testutil.Do(s.Handler(), http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "root@ecotech.cl",
		"password": "Secreto123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := gjson.Get(w.Body.String(), "token").String()
	require.NotEmpty(t, token)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec
	}

	w = get("/api/zones")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Planta Norte", gjson.Get(w.Body.String(), "data.0.name").String())

	w = get("/api/dashboard/stats")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = get("/api/export/zones.xlsx")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/zones", nil)
	req.Header.Set("Origin", "http://panel.ecotech.cl")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://panel.ecotech.cl", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSWildcardDropsCredentials(t *testing.T) {
	r := gin.New()
	r.Use(corsMiddleware([]string{"*"}))
	r.GET("/api/zones", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/zones", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	s, _ := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newServer(t)

	testutil.Do(s.Handler(), http.MethodGet, "/health", nil)
	w := testutil.Do(s.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "ecoenergy_http_requests_total"))
}

func TestWebRedirectsToLogin(t *testing.T) {
	s, _ := newServer(t)

	w := testutil.Do(s.Handler(), http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/login")
}
