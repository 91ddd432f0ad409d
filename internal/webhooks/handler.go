package webhooks

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/issuedesk/backend/internal/middleware"
	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/response"
)

// CreateRequest is the body for POST /webhooks. An empty events list
// subscribes to every issue event.
type CreateRequest struct {
	URL    string   `json:"url" binding:"required,url"`
	Secret string   `json:"secret" binding:"required,min=16,max=200"`
	Events []string `json:"events" binding:"omitempty,dive,oneof=issue.created issue.updated issue.deleted issue.commented"`
}

// Handler handles webhook subscription endpoints. All routes are admin only.
type Handler struct {
	repo *Repository
}

// NewHandler creates a webhooks handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Create handles POST /webhooks. The secret is write-only; responses never
// echo it.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	identity := middleware.IdentityFrom(c)

	w := &models.Webhook{
		OrganizationID: identity.OrganizationID,
		URL:            req.URL,
		Secret:         req.Secret,
		Events:         req.Events,
	}
	if w.Events == nil {
		w.Events = []string{}
	}
	if err := h.repo.Insert(c.Request.Context(), w); err != nil {
		response.Internal(c, "failed to create webhook")
		return
	}
	response.Created(c, w)
}

// List handles GET /webhooks.
func (h *Handler) List(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	list, err := h.repo.ListByOrg(c.Request.Context(), identity.OrganizationID)
	if err != nil {
		response.Internal(c, "failed to list webhooks")
		return
	}
	response.OK(c, list)
}

// Delete handles DELETE /webhooks/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webhook id")
		return
	}
	identity := middleware.IdentityFrom(c)
	if err := h.repo.Delete(c.Request.Context(), id, identity.OrganizationID); err != nil {
		response.FromError(c, err)
		return
	}
	response.NoContent(c)
}
