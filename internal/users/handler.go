package users

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/issuedesk/backend/internal/middleware"
	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/response"
)

// CreateRequest is the body for POST /users.
type CreateRequest struct {
	Name  string `json:"name" binding:"required,min=1,max=200"`
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required,oneof=ADMIN MEMBER"`
}

// Handler handles user HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a users handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Create handles POST /users (admin only). The user is created in the
// caller's organization.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	identity := middleware.IdentityFrom(c)
	u := &models.User{
		OrganizationID: identity.OrganizationID,
		Name:           req.Name,
		Email:          req.Email,
		Role:           models.Role(req.Role),
	}
	if err := h.repo.Create(c.Request.Context(), u); err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, u)
}

// List handles GET /users.
func (h *Handler) List(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	list, err := h.repo.List(c.Request.Context(), identity.OrganizationID)
	if err != nil {
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /users/:id. Users outside the caller's organization
// read as missing.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	identity := middleware.IdentityFrom(c)
	u, err := h.repo.GetByID(c.Request.Context(), id, identity.OrganizationID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, u)
}
