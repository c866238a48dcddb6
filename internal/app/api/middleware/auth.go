package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"

	cfgpkg "github.com/tableside/billing/pkg/config"
	"github.com/tableside/billing/pkg/response"
)

const (
	ctxKeyUserID = "user_id"
	ctxKeyRole   = "role"

	roleAdmin = "admin"
)

// Auth validates the Bearer token and stores the caller's user id (token
// subject) and role in gin.Context and the request context.
func Auth(cfg *cfgpkg.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(cfg.Auth.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.Unauthorized(c, "invalid token claims")
			c.Abort()
			return
		}
		userID, _ := claims["sub"].(string)
		if userID == "" {
			response.Unauthorized(c, "token missing subject")
			c.Abort()
			return
		}
		role, _ := claims["role"].(string)

		c.Set(ctxKeyUserID, userID)
		c.Set(ctxKeyRole, role)
		ctx := context.WithValue(c.Request.Context(), ctxKeyUserID, userID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireAdmin gates admin routes; it assumes Auth already ran.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxKeyRole) != roleAdmin {
			response.Forbidden(c, "admin role required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserIDFromGin returns the authenticated caller's user id, or "".
func UserIDFromGin(c *gin.Context) string {
	return c.GetString(ctxKeyUserID)
}
