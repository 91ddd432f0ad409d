package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/response"
)

const (
	// HeaderUserID carries the caller's user ID.
	HeaderUserID = "x-user-id"
	// HeaderOrgID carries the caller's organization ID.
	HeaderOrgID = "x-org-id"
	// HeaderRole carries the caller's role (ADMIN or MEMBER).
	HeaderRole = "x-user-role"

	// ContextIdentity is the key for the caller identity in gin context.
	ContextIdentity = "identity"
)

// Identity returns a middleware that extracts the caller identity from the
// x-user-id, x-org-id and x-user-role headers and sets it in the request
// context. Requests with missing or malformed headers are rejected with 401.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDRaw := c.GetHeader(HeaderUserID)
		orgIDRaw := c.GetHeader(HeaderOrgID)
		roleRaw := c.GetHeader(HeaderRole)
		if userIDRaw == "" || orgIDRaw == "" || roleRaw == "" {
			response.Unauthorized(c, "missing identity headers")
			c.Abort()
			return
		}
		userID, err := uuid.Parse(userIDRaw)
		if err != nil {
			response.Unauthorized(c, "invalid user id header")
			c.Abort()
			return
		}
		orgID, err := uuid.Parse(orgIDRaw)
		if err != nil {
			response.Unauthorized(c, "invalid org id header")
			c.Abort()
			return
		}
		role := models.Role(roleRaw)
		if !role.Valid() {
			response.Unauthorized(c, "invalid role header")
			c.Abort()
			return
		}
		c.Set(ContextIdentity, models.Identity{
			UserID:         userID,
			OrganizationID: orgID,
			Role:           role,
		})
		c.Next()
	}
}

// IdentityFrom returns the caller identity set by the Identity middleware.
func IdentityFrom(c *gin.Context) models.Identity {
	return c.MustGet(ContextIdentity).(models.Identity)
}
