package organizations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/issuedesk/backend/internal/middleware"
	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/response"
)

// CreateRequest is the body for POST /organizations.
type CreateRequest struct {
	Name string `json:"name" binding:"required,min=1,max=200"`
}

// Handler handles organization HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates an organizations handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Create handles POST /organizations. The endpoint is unauthenticated so a
// fresh deployment can bootstrap its first tenant.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	o := &models.Organization{Name: req.Name}
	if err := h.repo.Create(c.Request.Context(), o); err != nil {
		response.Internal(c, "failed to create organization")
		return
	}
	response.Created(c, o)
}

// GetByID handles GET /organizations/:id. Callers can only see their own
// organization; any other ID reads as missing.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	identity := middleware.IdentityFrom(c)
	if id != identity.OrganizationID {
		response.NotFound(c, "organization not found")
		return
	}
	o, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, o)
}
