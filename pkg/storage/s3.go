// Package storage provides S3 operations for issue attachments: direct
// streamed uploads, pre-signed upload/download URLs, and deletion.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const (
	// MaxAttachmentSize is the maximum allowed attachment size (25MB).
	MaxAttachmentSize = 25 * 1024 * 1024
	// FolderAttachments is the S3 prefix for attachment objects.
	FolderAttachments = "attachments"
)

// Allowed attachment MIME types and extensions.
var (
	AllowedAttachmentTypes = map[string]string{
		"image/jpeg":      ".jpg",
		"image/png":       ".png",
		"image/gif":       ".gif",
		"image/webp":      ".webp",
		"text/plain":      ".txt",
		"text/csv":        ".csv",
		"application/pdf": ".pdf",
		"application/zip": ".zip",
	}
	AllowedAttachmentExtensions = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".webp": "image/webp",
		".txt":  "text/plain",
		".log":  "text/plain",
		".csv":  "text/csv",
		".pdf":  "application/pdf",
		".zip":  "application/zip",
	}
)

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	AttachmentsBucket    string
	PresignExpireMinutes int
}

// S3 provides attachment object operations with type validation and
// pre-signed URLs.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using static credentials when configured,
// falling back to the default AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
	} else if logger != nil {
		logger.Warn("S3 client using default credential chain")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
	})
	if logger != nil {
		logger.Info("S3 client ready",
			zap.String("region", cfg.Region),
			zap.String("bucket", cfg.AttachmentsBucket))
	}
	return &S3{
		client:   client,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// ValidateAttachmentType reports whether the content type and/or filename
// extension are allowed for attachments.
func ValidateAttachmentType(contentType, filename string) bool {
	if contentType != "" {
		if _, ok := AllowedAttachmentTypes[strings.ToLower(contentType)]; ok {
			return true
		}
	}
	if ext := strings.ToLower(path.Ext(filename)); ext != "" {
		if _, ok := AllowedAttachmentExtensions[ext]; ok {
			return true
		}
	}
	return false
}

// ContentTypeForFilename returns the MIME type for a filename extension.
func ContentTypeForFilename(filename string) string {
	if ct, ok := AllowedAttachmentExtensions[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// EffectiveContentType returns the stated content type when it is an allowed
// attachment type, otherwise the type derived from the filename extension.
// Multipart uploads often arrive as application/octet-stream even for known
// file types.
func EffectiveContentType(contentType, filename string) string {
	if _, ok := AllowedAttachmentTypes[strings.ToLower(contentType)]; ok {
		return contentType
	}
	return ContentTypeForFilename(filename)
}

// AttachmentKey returns the S3 object key:
// attachments/{org_id}/{issue_id}/{attachment_id}/{filename}.
func AttachmentKey(orgID, issueID, attachmentID, filename string) string {
	return path.Join(FolderAttachments, orgID, issueID, attachmentID, path.Base(filename))
}

// PresignUpload returns a pre-signed PUT URL for direct client upload.
func (s *S3) PresignUpload(ctx context.Context, key, contentType string) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AttachmentsBucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.PresignExpire()
	})
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}
	return req.URL, nil
}

// PresignDownload returns a pre-signed GET URL for an attachment object.
func (s *S3) PresignDownload(ctx context.Context, key string) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.AttachmentsBucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.PresignExpire()
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}

// Upload streams a reader to the attachments bucket.
func (s *S3) Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error {
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.AttachmentsBucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
	})
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}

// DeleteObject removes an attachment object.
func (s *S3) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.AttachmentsBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
