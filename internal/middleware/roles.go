package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/planbook/planbook-api/internal/models"
	appErrors "github.com/planbook/planbook-api/pkg/errors"
	"github.com/planbook/planbook-api/pkg/response"
)

// RequireEditor rejects requests whose authenticated role cannot mutate
// planning data. Must run after JWT.
func RequireEditor() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil || !claims.Role.CanEdit() {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "editing requires the planner or admin role"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin restricts a route to administrators. Must run after JWT.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil || claims.Role != models.RoleAdmin {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "admin role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
