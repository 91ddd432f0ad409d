package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles. No roles
// means any resolved identity passes. It must run after Identity.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		val, ok := c.Get(ContextIdentity)
		if !ok {
			response.Unauthorized(c, "missing identity context")
			c.Abort()
			return
		}
		if len(allowed) == 0 {
			c.Next()
			return
		}
		identity, _ := val.(models.Identity)
		if _, ok := allowed[identity.Role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
