package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bearer(r http.Handler, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := NewTokens("test-secret", time.Hour)

	r := gin.New()
	r.Use(AuthMiddleware(tokens))
	r.GET("/alerts", RequirePermission(Perm(ResourceAlert, ActionView)), func(c *gin.Context) {
		cu, _ := GetCurrentUser(c)
		c.String(http.StatusOK, cu.Email)
	})
	r.DELETE("/alerts/1", RequirePermission(Perm(ResourceAlert, ActionDelete)), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusUnauthorized, bearer(r, "/alerts", "").Code)
	assert.Equal(t, http.StatusUnauthorized, bearer(r, "/alerts", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, bearer(r, "/alerts", "Bearer not-a-jwt").Code)

	other := NewTokens("other-secret", time.Hour)
	forged, _, err := other.Issue(CurrentUser{ID: 1, Email: "root@ecotech.cl", UserType: UserTypeSuperAdmin})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, bearer(r, "/alerts", "Bearer "+forged).Code)

	expired := NewTokens("test-secret", -time.Minute)
	old, _, err := expired.Issue(CurrentUser{ID: 1, Email: "root@ecotech.cl", UserType: UserTypeSuperAdmin})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, bearer(r, "/alerts", "Bearer "+old).Code)

	org := int64(4)
	role := OrgRoleViewer
	tok, _, err := tokens.Issue(CurrentUser{ID: 7, Email: "consulta@ecotech.cl", UserType: UserTypeOrgUser, OrganizationID: &org, OrgRole: &role})
	require.NoError(t, err)

	w := bearer(r, "/alerts", "Bearer "+tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "consulta@ecotech.cl", w.Body.String())

	req := httptest.NewRequest(http.MethodDelete, "/alerts/1", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code, "viewers cannot delete")
}

func TestRequirePermission_WithoutUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/alerts", RequirePermission(Perm(ResourceAlert, ActionView)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusUnauthorized, bearer(r, "/alerts", "").Code)
}

func TestRequireOrgAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	org := int64(2)
	cases := []struct {
		name string
		cu   *CurrentUser
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"superuser", &CurrentUser{ID: 1, UserType: UserTypeSuperAdmin}, http.StatusOK},
		{"org admin", &CurrentUser{ID: 2, UserType: UserTypeOrgUser, OrganizationID: &org, OrgRole: rolePtr(OrgRoleAdmin)}, http.StatusOK},
		{"operator", &CurrentUser{ID: 3, UserType: UserTypeOrgUser, OrganizationID: &org, OrgRole: rolePtr(OrgRoleOperator)}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/users", func(c *gin.Context) {
				if tc.cu != nil {
					c.Set(ContextUserKey, *tc.cu)
				}
				c.Next()
			}, RequireOrgAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })
			assert.Equal(t, tc.want, bearer(r, "/users", "").Code)
		})
	}
}

func rolePtr(r OrgRole) *OrgRole { return &r }
