package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is metadata for a file stored in S3 under an issue.
// DownloadURL is a pre-signed link filled in on reads; it is never persisted.
type Attachment struct {
	ID          uuid.UUID `json:"id"`
	IssueID     uuid.UUID `json:"issue_id"`
	UploadedBy  uuid.UUID `json:"uploaded_by"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	S3Key       string    `json:"-"`
	DownloadURL string    `json:"download_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
