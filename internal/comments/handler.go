package comments

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/issuedesk/backend/internal/middleware"
	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/response"
)

// CommentStore is the persistence surface the handler needs.
type CommentStore interface {
	Insert(ctx context.Context, cm *models.Comment) error
	ListByIssue(ctx context.Context, issueID uuid.UUID) ([]models.Comment, error)
	GetByID(ctx context.Context, id, orgID uuid.UUID) (*models.Comment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// IssueResolver resolves issues within an organization; commenting on an
// issue the caller cannot see must read as not-found.
type IssueResolver interface {
	GetByID(ctx context.Context, id, orgID uuid.UUID) (*models.Issue, error)
}

// ActivityAppender records COMMENTED entries on the issue timeline.
type ActivityAppender interface {
	Append(ctx context.Context, e *models.ActivityEntry) error
}

// EventSink receives issue.commented events.
type EventSink interface {
	IssueEvent(orgID uuid.UUID, event string, payload any)
}

// CreateRequest is the body for POST /issues/:id/comments.
type CreateRequest struct {
	Body string `json:"body" binding:"required,min=1,max=10000"`
}

// Handler handles comment HTTP endpoints.
type Handler struct {
	store    CommentStore
	issues   IssueResolver
	activity ActivityAppender
	events   EventSink
	logger   *zap.Logger
}

// NewHandler creates a comments handler. events may be nil.
func NewHandler(store CommentStore, issues IssueResolver, activity ActivityAppender, events EventSink, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:    store,
		issues:   issues,
		activity: activity,
		events:   events,
		logger:   logger,
	}
}

// Create handles POST /issues/:id/comments.
func (h *Handler) Create(c *gin.Context) {
	issueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid issue id")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	identity := middleware.IdentityFrom(c)
	ctx := c.Request.Context()

	if _, err := h.issues.GetByID(ctx, issueID, identity.OrganizationID); err != nil {
		response.FromError(c, err)
		return
	}

	cm := &models.Comment{
		IssueID:  issueID,
		AuthorID: identity.UserID,
		Body:     req.Body,
	}
	if err := h.store.Insert(ctx, cm); err != nil {
		response.Internal(c, "failed to create comment")
		return
	}

	if err := h.activity.Append(ctx, &models.ActivityEntry{
		IssueID:     issueID,
		Action:      models.ActionCommented,
		PerformedBy: identity.UserID,
	}); err != nil {
		h.logger.Warn("activity append failed",
			zap.String("issue_id", issueID.String()),
			zap.Error(err))
	}
	if h.events != nil {
		h.events.IssueEvent(identity.OrganizationID, models.EventIssueCommented, cm)
	}
	response.Created(c, cm)
}

// List handles GET /issues/:id/comments, newest first.
func (h *Handler) List(c *gin.Context) {
	issueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid issue id")
		return
	}
	identity := middleware.IdentityFrom(c)
	ctx := c.Request.Context()

	if _, err := h.issues.GetByID(ctx, issueID, identity.OrganizationID); err != nil {
		response.FromError(c, err)
		return
	}
	list, err := h.store.ListByIssue(ctx, issueID)
	if err != nil {
		response.Internal(c, "failed to list comments")
		return
	}
	response.OK(c, list)
}

// Delete handles DELETE /comments/:id. Only the author or an admin may
// delete a comment.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid comment id")
		return
	}
	identity := middleware.IdentityFrom(c)
	ctx := c.Request.Context()

	cm, err := h.store.GetByID(ctx, id, identity.OrganizationID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if cm.AuthorID != identity.UserID && !identity.IsAdmin() {
		response.Forbidden(c, "only the author or an admin can delete a comment")
		return
	}
	if err := h.store.Delete(ctx, id); err != nil {
		response.Internal(c, "failed to delete comment")
		return
	}
	response.NoContent(c)
}
