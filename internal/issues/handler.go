package issues

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/issuedesk/backend/internal/middleware"
	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/response"
)

// CreateRequest is the body for POST /issues.
type CreateRequest struct {
	Title       string  `json:"title" binding:"required,min=1,max=500"`
	Description string  `json:"description"`
	Priority    string  `json:"priority" binding:"omitempty,issuepriority"`
	AssigneeID  *string `json:"assigneeId" binding:"omitempty,uuid"`
}

// UpdateRequest is the body for PATCH /issues/:id. Every field is optional;
// assigneeId distinguishes absent from explicit null (null clears it).
type UpdateRequest struct {
	Title       *string             `json:"title" binding:"omitempty,min=1,max=500"`
	Description *string             `json:"description"`
	Status      *string             `json:"status" binding:"omitempty,issuestatus"`
	Priority    *string             `json:"priority" binding:"omitempty,issuepriority"`
	AssigneeID  models.NullableUUID `json:"assigneeId"`
}

// Handler handles issue HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an issues handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create handles POST /issues.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	identity := middleware.IdentityFrom(c)

	in := CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    models.IssuePriority(req.Priority),
	}
	if req.AssigneeID != nil {
		id, err := uuid.Parse(*req.AssigneeID)
		if err != nil {
			response.BadRequest(c, "invalid assigneeId")
			return
		}
		in.AssigneeID = &id
	}

	issue, err := h.svc.Create(c.Request.Context(), identity, in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, issue)
}

// List handles GET /issues. Query params status and assignee narrow the
// result set.
func (h *Handler) List(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	var f ListFilter
	if s := c.Query("status"); s != "" {
		status := models.IssueStatus(s)
		if !status.Valid() {
			response.BadRequest(c, "invalid status filter")
			return
		}
		f.Status = status
	}
	if a := c.Query("assignee"); a != "" {
		id, err := uuid.Parse(a)
		if err != nil {
			response.BadRequest(c, "invalid assignee filter")
			return
		}
		f.Assignee = &id
	}

	list, err := h.svc.List(c.Request.Context(), identity, f)
	if err != nil {
		response.Internal(c, "failed to list issues")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /issues/:id. The response embeds the issue's full
// activity history, newest first.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid issue id")
		return
	}
	identity := middleware.IdentityFrom(c)
	detail, err := h.svc.Get(c.Request.Context(), identity, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, detail)
}

// Update handles PATCH /issues/:id (admin only).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid issue id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	identity := middleware.IdentityFrom(c)

	in := UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Assignee:    req.AssigneeID,
	}
	if req.Status != nil {
		status := models.IssueStatus(*req.Status)
		in.Status = &status
	}
	if req.Priority != nil {
		priority := models.IssuePriority(*req.Priority)
		in.Priority = &priority
	}

	issue, err := h.svc.Update(c.Request.Context(), identity, id, in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, issue)
}

// Delete handles DELETE /issues/:id (admin only).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid issue id")
		return
	}
	identity := middleware.IdentityFrom(c)
	if err := h.svc.Delete(c.Request.Context(), identity, id); err != nil {
		response.FromError(c, err)
		return
	}
	response.NoContent(c)
}

// Stats handles GET /issues/stats.
func (h *Handler) Stats(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	stats, err := h.svc.Stats(c.Request.Context(), identity)
	if err != nil {
		response.Internal(c, "failed to load issue stats")
		return
	}
	response.OK(c, stats)
}
