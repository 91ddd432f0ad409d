package attachments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issuedesk/backend/internal/middleware"
	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/apperr"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeIssues struct {
	byID map[uuid.UUID]*models.Issue
}

func (f *fakeIssues) GetByID(_ context.Context, id, orgID uuid.UUID) (*models.Issue, error) {
	issue, ok := f.byID[id]
	if !ok || issue.OrganizationID != orgID {
		return nil, apperr.NotFound("issue not found")
	}
	cp := *issue
	return &cp, nil
}

type fakeStore struct {
	issues *fakeIssues
	byID   map[uuid.UUID]*models.Attachment
}

func (f *fakeStore) Insert(_ context.Context, a *models.Attachment) error {
	a.CreatedAt = time.Now()
	cp := *a
	f.byID[a.ID] = &cp
	return nil
}

func (f *fakeStore) ListByIssue(_ context.Context, issueID uuid.UUID) ([]models.Attachment, error) {
	list := make([]models.Attachment, 0)
	for _, a := range f.byID {
		if a.IssueID == issueID {
			list = append(list, *a)
		}
	}
	return list, nil
}

func (f *fakeStore) GetByID(_ context.Context, id, orgID uuid.UUID) (*models.Attachment, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, ErrAttachmentNotFound
	}
	issue, ok := f.issues.byID[a.IssueID]
	if !ok || issue.OrganizationID != orgID {
		return nil, ErrAttachmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.byID, id)
	return nil
}

type fakeObjects struct {
	uploads map[string][]byte
	deleted []string
}

func (f *fakeObjects) PresignUpload(_ context.Context, key, _ string) (string, error) {
	return "https://s3.example.com/put/" + key, nil
}

func (f *fakeObjects) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://s3.example.com/get/" + key, nil
}

func (f *fakeObjects) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads[key] = b
	return nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.uploads, key)
	return nil
}

func (f *fakeObjects) PresignExpire() time.Duration { return 15 * time.Minute }

type fixture struct {
	issues  *fakeIssues
	store   *fakeStore
	objects *fakeObjects
	router  *gin.Engine
}

func newFixture(withStorage bool) *fixture {
	f := &fixture{
		issues: &fakeIssues{byID: make(map[uuid.UUID]*models.Issue)},
	}
	f.store = &fakeStore{issues: f.issues, byID: make(map[uuid.UUID]*models.Attachment)}

	var objects ObjectStore
	if withStorage {
		f.objects = &fakeObjects{uploads: make(map[string][]byte)}
		objects = f.objects
	}
	h := NewHandler(f.store, f.issues, objects, nil)

	r := gin.New()
	api := r.Group("", middleware.Identity())
	api.POST("/issues/:id/attachments/upload-url", h.UploadURL)
	api.POST("/issues/:id/attachments/upload", h.Upload)
	api.POST("/issues/:id/attachments", h.Register)
	api.GET("/issues/:id/attachments", h.List)
	api.DELETE("/attachments/:id", h.Delete)
	f.router = r
	return f
}

func (f *fixture) addIssue(orgID uuid.UUID) *models.Issue {
	issue := &models.Issue{ID: uuid.New(), OrganizationID: orgID, Title: "Bug"}
	f.issues.byID[issue.ID] = issue
	return issue
}

func setIdentity(req *http.Request, identity models.Identity) {
	req.Header.Set(middleware.HeaderUserID, identity.UserID.String())
	req.Header.Set(middleware.HeaderOrgID, identity.OrganizationID.String())
	req.Header.Set(middleware.HeaderRole, string(identity.Role))
}

func doJSON(r *gin.Engine, method, path string, identity models.Identity, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	setIdentity(req, identity)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doMultipart(r *gin.Engine, path string, identity models.Identity, filename string, contents []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		panic(err)
	}
	_, _ = fw.Write(contents)
	_ = mw.Close()

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	setIdentity(req, identity)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func member(orgID uuid.UUID) models.Identity {
	return models.Identity{UserID: uuid.New(), OrganizationID: orgID, Role: models.RoleMember}
}

func TestAttachments_UnavailableWithoutStorage(t *testing.T) {
	f := newFixture(false)
	issue := f.addIssue(uuid.New())
	caller := member(issue.OrganizationID)

	w := doJSON(f.router, "POST", "/issues/"+issue.ID.String()+"/attachments/upload-url", caller,
		`{"file_name":"shot.png","size_bytes":100}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(f.router, "GET", "/issues/"+issue.ID.String()+"/attachments", caller, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAttachments_PresignedFlow(t *testing.T) {
	f := newFixture(true)
	issue := f.addIssue(uuid.New())
	caller := member(issue.OrganizationID)
	base := "/issues/" + issue.ID.String() + "/attachments"

	w := doJSON(f.router, "POST", base+"/upload-url", caller,
		`{"file_name":"shot.png","content_type":"image/png","size_bytes":2048}`)
	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data UploadURLResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.NotEqual(t, uuid.Nil, env.Data.AttachmentID)
	assert.Contains(t, env.Data.UploadURL, "https://s3.example.com/put/attachments/")
	assert.Contains(t, env.Data.UploadURL, issue.ID.String())
	assert.Equal(t, int64(900), env.Data.ExpiresInSeconds)

	body := fmt.Sprintf(`{"attachment_id":%q,"file_name":"shot.png","content_type":"image/png","size_bytes":2048}`,
		env.Data.AttachmentID)
	w = doJSON(f.router, "POST", base, caller, body)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data models.Attachment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, env.Data.AttachmentID, created.Data.ID)
	assert.Equal(t, caller.UserID, created.Data.UploadedBy)

	w = doJSON(f.router, "GET", base, caller, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []models.Attachment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Contains(t, list.Data[0].DownloadURL, "https://s3.example.com/get/attachments/")
}

func TestAttachments_DirectUpload(t *testing.T) {
	f := newFixture(true)
	issue := f.addIssue(uuid.New())
	caller := member(issue.OrganizationID)

	contents := []byte("fake png bytes")
	w := doMultipart(f.router, "/issues/"+issue.ID.String()+"/attachments/upload", caller, "shot.png", contents)
	require.Equal(t, http.StatusCreated, w.Code)

	var env struct {
		Data models.Attachment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "shot.png", env.Data.FileName)
	assert.Equal(t, "image/png", env.Data.ContentType)
	assert.Equal(t, int64(len(contents)), env.Data.SizeBytes)

	require.Len(t, f.objects.uploads, 1)
	for _, stored := range f.objects.uploads {
		assert.Equal(t, contents, stored)
	}
}

func TestAttachments_RejectsDisallowedTypes(t *testing.T) {
	f := newFixture(true)
	issue := f.addIssue(uuid.New())
	caller := member(issue.OrganizationID)
	base := "/issues/" + issue.ID.String() + "/attachments"

	w := doJSON(f.router, "POST", base+"/upload-url", caller,
		`{"file_name":"payload.exe","size_bytes":100}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doMultipart(f.router, base+"/upload", caller, "script.sh", []byte("#!/bin/sh"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.objects.uploads)
}

func TestAttachments_RejectsOversize(t *testing.T) {
	f := newFixture(true)
	issue := f.addIssue(uuid.New())
	caller := member(issue.OrganizationID)

	w := doJSON(f.router, "POST", "/issues/"+issue.ID.String()+"/attachments/upload-url", caller,
		`{"file_name":"big.zip","content_type":"application/zip","size_bytes":99999999999}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttachments_CrossTenantIssue404(t *testing.T) {
	f := newFixture(true)
	issue := f.addIssue(uuid.New())
	outsider := member(uuid.New())

	w := doJSON(f.router, "POST", "/issues/"+issue.ID.String()+"/attachments/upload-url", outsider,
		`{"file_name":"shot.png","size_bytes":100}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(f.router, "GET", "/issues/"+issue.ID.String()+"/attachments", outsider, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttachments_DeletePolicy(t *testing.T) {
	f := newFixture(true)
	issue := f.addIssue(uuid.New())
	uploader := member(issue.OrganizationID)
	other := member(issue.OrganizationID)
	orgAdmin := models.Identity{UserID: uuid.New(), OrganizationID: issue.OrganizationID, Role: models.RoleAdmin}

	upload := func() models.Attachment {
		w := doMultipart(f.router, "/issues/"+issue.ID.String()+"/attachments/upload", uploader, "shot.png", []byte("x"))
		require.Equal(t, http.StatusCreated, w.Code)
		var env struct {
			Data models.Attachment `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		return env.Data
	}

	a := upload()
	w := doJSON(f.router, "DELETE", "/attachments/"+a.ID.String(), other, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(f.router, "DELETE", "/attachments/"+a.ID.String(), uploader, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, f.objects.deleted, "object must be removed with the row")

	a = upload()
	w = doJSON(f.router, "DELETE", "/attachments/"+a.ID.String(), orgAdmin, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	a = upload()
	w = doJSON(f.router, "DELETE", "/attachments/"+a.ID.String(), member(uuid.New()), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
