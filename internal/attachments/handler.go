package attachments

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/issuedesk/backend/internal/middleware"
	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/response"
	"github.com/issuedesk/backend/pkg/storage"
)

// Store is the metadata persistence surface the handler needs.
type Store interface {
	Insert(ctx context.Context, a *models.Attachment) error
	ListByIssue(ctx context.Context, issueID uuid.UUID) ([]models.Attachment, error)
	GetByID(ctx context.Context, id, orgID uuid.UUID) (*models.Attachment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// IssueResolver resolves issues within an organization.
type IssueResolver interface {
	GetByID(ctx context.Context, id, orgID uuid.UUID) (*models.Issue, error)
}

// ObjectStore is the S3 surface the handler needs. It is nil when the
// deployment has no object storage configured; all attachment endpoints then
// answer 503.
type ObjectStore interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error
	DeleteObject(ctx context.Context, key string) error
	PresignExpire() time.Duration
}

// UploadURLRequest is the body for POST /issues/:id/attachments/upload-url.
type UploadURLRequest struct {
	FileName    string `json:"file_name" binding:"required,min=1,max=255"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes" binding:"required,min=1"`
}

// UploadURLResponse returns the presigned PUT target for a client upload.
type UploadURLResponse struct {
	AttachmentID     uuid.UUID `json:"attachment_id"`
	UploadURL        string    `json:"upload_url"`
	ExpiresInSeconds int64     `json:"expires_in_seconds"`
}

// RegisterRequest is the body for POST /issues/:id/attachments, confirming a
// presigned upload completed.
type RegisterRequest struct {
	AttachmentID string `json:"attachment_id" binding:"required,uuid"`
	FileName     string `json:"file_name" binding:"required,min=1,max=255"`
	ContentType  string `json:"content_type"`
	SizeBytes    int64  `json:"size_bytes" binding:"required,min=1"`
}

// Handler handles attachment HTTP endpoints.
type Handler struct {
	store   Store
	issues  IssueResolver
	objects ObjectStore
	logger  *zap.Logger
}

// NewHandler creates an attachments handler. objects may be nil when S3 is
// not configured.
func NewHandler(store Store, issues IssueResolver, objects ObjectStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:   store,
		issues:  issues,
		objects: objects,
		logger:  logger,
	}
}

func (h *Handler) resolveIssue(c *gin.Context) (*models.Issue, models.Identity, bool) {
	identity := middleware.IdentityFrom(c)
	issueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid issue id")
		return nil, identity, false
	}
	issue, err := h.issues.GetByID(c.Request.Context(), issueID, identity.OrganizationID)
	if err != nil {
		response.FromError(c, err)
		return nil, identity, false
	}
	return issue, identity, true
}

func (h *Handler) storageReady(c *gin.Context) bool {
	if h.objects == nil {
		response.ServiceUnavailable(c, "object storage is not configured")
		return false
	}
	return true
}

// UploadURL handles POST /issues/:id/attachments/upload-url. The object key
// embeds a fresh attachment id; the client uploads and then registers the
// metadata with that id.
func (h *Handler) UploadURL(c *gin.Context) {
	if !h.storageReady(c) {
		return
	}
	issue, identity, ok := h.resolveIssue(c)
	if !ok {
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.SizeBytes > storage.MaxAttachmentSize {
		response.BadRequest(c, "file too large")
		return
	}
	if !storage.ValidateAttachmentType(req.ContentType, req.FileName) {
		response.BadRequest(c, "unsupported file type")
		return
	}

	attachmentID := uuid.New()
	contentType := storage.EffectiveContentType(req.ContentType, req.FileName)
	key := storage.AttachmentKey(identity.OrganizationID.String(), issue.ID.String(),
		attachmentID.String(), req.FileName)
	url, err := h.objects.PresignUpload(c.Request.Context(), key, contentType)
	if err != nil {
		h.logger.Error("presign upload", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to create upload url")
		return
	}
	response.OK(c, UploadURLResponse{
		AttachmentID:     attachmentID,
		UploadURL:        url,
		ExpiresInSeconds: int64(h.objects.PresignExpire().Seconds()),
	})
}

// Register handles POST /issues/:id/attachments. The row's object key is
// recomputed server-side so clients cannot point metadata at foreign keys.
func (h *Handler) Register(c *gin.Context) {
	if !h.storageReady(c) {
		return
	}
	issue, identity, ok := h.resolveIssue(c)
	if !ok {
		return
	}
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.SizeBytes > storage.MaxAttachmentSize {
		response.BadRequest(c, "file too large")
		return
	}
	if !storage.ValidateAttachmentType(req.ContentType, req.FileName) {
		response.BadRequest(c, "unsupported file type")
		return
	}

	attachmentID := uuid.MustParse(req.AttachmentID)
	contentType := storage.EffectiveContentType(req.ContentType, req.FileName)
	a := &models.Attachment{
		ID:          attachmentID,
		IssueID:     issue.ID,
		UploadedBy:  identity.UserID,
		FileName:    req.FileName,
		ContentType: contentType,
		SizeBytes:   req.SizeBytes,
		S3Key: storage.AttachmentKey(identity.OrganizationID.String(), issue.ID.String(),
			attachmentID.String(), req.FileName),
	}
	if err := h.store.Insert(c.Request.Context(), a); err != nil {
		response.Internal(c, "failed to register attachment")
		return
	}
	response.Created(c, a)
}

// Upload handles POST /issues/:id/attachments/upload: a small-file multipart
// upload streamed through the API.
func (h *Handler) Upload(c *gin.Context) {
	if !h.storageReady(c) {
		return
	}
	issue, identity, ok := h.resolveIssue(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file field")
		return
	}
	if fileHeader.Size > storage.MaxAttachmentSize {
		response.BadRequest(c, "file too large")
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !storage.ValidateAttachmentType(contentType, fileHeader.Filename) {
		response.BadRequest(c, "unsupported file type")
		return
	}
	contentType = storage.EffectiveContentType(contentType, fileHeader.Filename)

	file, err := fileHeader.Open()
	if err != nil {
		response.Internal(c, "failed to read upload")
		return
	}
	defer file.Close()

	attachmentID := uuid.New()
	key := storage.AttachmentKey(identity.OrganizationID.String(), issue.ID.String(),
		attachmentID.String(), fileHeader.Filename)
	if err := h.objects.Upload(c.Request.Context(), key, contentType, file, fileHeader.Size); err != nil {
		h.logger.Error("upload attachment", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to store attachment")
		return
	}

	a := &models.Attachment{
		ID:          attachmentID,
		IssueID:     issue.ID,
		UploadedBy:  identity.UserID,
		FileName:    fileHeader.Filename,
		ContentType: contentType,
		SizeBytes:   fileHeader.Size,
		S3Key:       key,
	}
	if err := h.store.Insert(c.Request.Context(), a); err != nil {
		if derr := h.objects.DeleteObject(c.Request.Context(), key); derr != nil {
			h.logger.Warn("orphaned attachment object", zap.String("key", key), zap.Error(derr))
		}
		response.Internal(c, "failed to register attachment")
		return
	}
	response.Created(c, a)
}

// List handles GET /issues/:id/attachments with presigned download links.
func (h *Handler) List(c *gin.Context) {
	if !h.storageReady(c) {
		return
	}
	issue, _, ok := h.resolveIssue(c)
	if !ok {
		return
	}
	list, err := h.store.ListByIssue(c.Request.Context(), issue.ID)
	if err != nil {
		response.Internal(c, "failed to list attachments")
		return
	}
	for i := range list {
		url, err := h.objects.PresignDownload(c.Request.Context(), list[i].S3Key)
		if err != nil {
			h.logger.Warn("presign download",
				zap.String("attachment_id", list[i].ID.String()),
				zap.Error(err))
			continue
		}
		list[i].DownloadURL = url
	}
	response.OK(c, list)
}

// Delete handles DELETE /attachments/:id. Only the uploader or an admin may
// delete an attachment.
func (h *Handler) Delete(c *gin.Context) {
	if !h.storageReady(c) {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid attachment id")
		return
	}
	identity := middleware.IdentityFrom(c)
	ctx := c.Request.Context()

	a, err := h.store.GetByID(ctx, id, identity.OrganizationID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if a.UploadedBy != identity.UserID && !identity.IsAdmin() {
		response.Forbidden(c, "only the uploader or an admin can delete an attachment")
		return
	}
	if err := h.objects.DeleteObject(ctx, a.S3Key); err != nil {
		h.logger.Warn("delete attachment object",
			zap.String("key", a.S3Key),
			zap.Error(err))
	}
	if err := h.store.Delete(ctx, id); err != nil {
		response.Internal(c, "failed to delete attachment")
		return
	}
	response.NoContent(c)
}
