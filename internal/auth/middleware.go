package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/username/ecoenergy-api/internal/i18n"
)

// Claims JWT
type UserClaims struct {
	UserID         int64   `json:"userId"`
	Email          string  `json:"email"`
	FullName       string  `json:"fullName"`
	UserType       string  `json:"userType"`       // "SUPER_ADMIN" / "ORG_USER"
	OrganizationID *int64  `json:"organizationId"` // boleh nil
	OrgRole        *string `json:"orgRole"`        // "ADMIN" / "OPERATOR" / "VIEWER"
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 access tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for cu.
func (t *Tokens) Issue(cu CurrentUser) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(t.ttl)

	claims := UserClaims{
		UserID:         cu.ID,
		Email:          cu.Email,
		FullName:       cu.FullName,
		UserType:       string(cu.UserType),
		OrganizationID: cu.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if cu.OrgRole != nil {
		role := string(*cu.OrgRole)
		claims.OrgRole = &role
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	return signed, exp, err
}

// Parse validates a token and rebuilds the CurrentUser.
func (t *Tokens) Parse(tokenString string) (CurrentUser, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(tk *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return CurrentUser{}, err
	}
	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return CurrentUser{}, errors.New("invalid token claims")
	}

	cu := CurrentUser{
		ID:             claims.UserID,
		Email:          claims.Email,
		FullName:       claims.FullName,
		UserType:       UserType(claims.UserType),
		OrganizationID: claims.OrganizationID,
	}
	if claims.OrgRole != nil {
		role := OrgRole(*claims.OrgRole)
		cu.OrgRole = &role
	}
	return cu, nil
}

func AuthMiddleware(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header missing or invalid",
			})
			return
		}

		cu, err := tokens.Parse(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid token",
			})
			return
		}

		c.Set(ContextUserKey, cu)
		c.Next()
	}
}

// RequirePermission guards an API route.
func RequirePermission(p Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		cu, ok := GetCurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": i18n.T(c, i18n.M("Unauthorized", nil)),
			})
			return
		}
		if !cu.Can(p) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":      "forbidden",
				"message":    i18n.T(c, i18n.M("Forbidden", nil)),
				"permission": string(p),
			})
			return
		}
		c.Next()
	}
}

// Helper untuk ambil current user di handler
func GetCurrentUser(c *gin.Context) (CurrentUser, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return CurrentUser{}, false
	}
	cu, ok := v.(CurrentUser)
	return cu, ok
}

// RequireOrgAdmin allows superusers and organization administrators (user management).
func RequireOrgAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		cu, ok := GetCurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": i18n.T(c, i18n.M("Unauthorized", nil)),
			})
			return
		}
		if !cu.IsSuperAdmin() && !cu.IsOrgAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": i18n.T(c, i18n.M("Forbidden", nil)),
			})
			return
		}
		c.Next()
	}
}
