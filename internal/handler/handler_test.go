package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/quizpack/internal/config"
	"github.com/xxxsen/quizpack/internal/filestore"
	"github.com/xxxsen/quizpack/internal/middleware"
	"github.com/xxxsen/quizpack/internal/model"
	"github.com/xxxsen/quizpack/internal/pkg/errcode"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
	"github.com/xxxsen/quizpack/internal/service"
)

type fakeImports struct {
	uploaded string
	body     string
	err      error
}

func (f *fakeImports) Upload(ctx context.Context, userID, fileName string, r io.Reader, size int64) (*model.ImportJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(r)
	f.uploaded = userID + ":" + fileName
	f.body = string(data)
	return &model.ImportJob{ID: "job-1", Status: model.JobStatusQueued}, nil
}

func (f *fakeImports) Status(ctx context.Context, userID, jobID string) (*service.JobView, error) {
	if jobID != "job-1" || userID != "u1" {
		return nil, appErr.ErrNotFound
	}
	return &service.JobView{ID: jobID, Status: model.JobStatusFailed, ErrorKind: "corrupted", Hint: "re-save"}, nil
}

func (f *fakeImports) Cancel(ctx context.Context, userID, jobID string) error {
	return fmt.Errorf("job %s already succeeded: %w", jobID, appErr.ErrConflict)
}

type fakeStructure struct {
	service.StructureService
	calls []string
}

func (f *fakeStructure) record(call string) (*model.Package, error) {
	f.calls = append(f.calls, call)
	return &model.Package{ID: "p1", Media: []string{"packages/p1/a.png", "https://cdn.example/b.png"}}, nil
}

func (f *fakeStructure) Get(ctx context.Context, userID, packageID string) (*model.Package, error) {
	return f.record("get " + packageID)
}

func (f *fakeStructure) AddTour(ctx context.Context, userID, packageID string, in service.TourInput, position int) (*model.Package, error) {
	return f.record(fmt.Sprintf("add_tour %s %d", in.Title, position))
}

func (f *fakeStructure) MoveTour(ctx context.Context, userID, packageID, tourID string, position int) (*model.Package, error) {
	return f.record(fmt.Sprintf("move_tour %s %d", tourID, position))
}

func (f *fakeStructure) SetNumberingMode(ctx context.Context, userID, packageID, mode string) (*model.Package, error) {
	if mode != "global" {
		return nil, fmt.Errorf("%w: numbering mode %q", appErr.ErrInvalid, mode)
	}
	return f.record("numbering " + mode)
}

func (f *fakeStructure) MoveQuestion(ctx context.Context, userID, packageID, questionID, toTourID, toBlockID string, position int) (*model.Package, error) {
	return f.record(fmt.Sprintf("move_question %s %s %s %d", questionID, toTourID, toBlockID, position))
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    uint32 `json:"code"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Hint    string `json:"hint"`
	} `json:"error"`
}

func newTestRouter(t *testing.T, imports ImportAPI, packages StructureAPI, store filestore.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	RegisterRoutes(r.Group("/api/v1"), RouterDeps{
		Imports:  NewImportHandler(imports, 1<<20),
		Packages: NewPackageHandler(packages, store),
		Files:    NewFileHandler(store),
	})
	return r
}

func newLocalStore(t *testing.T) filestore.Store {
	store, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	return store
}

func do(t *testing.T, r *gin.Engine, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, "u1")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func multipartUpload(t *testing.T, name, content string) (*bytes.Buffer, string) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestUploadQueuesJob(t *testing.T) {
	imports := &fakeImports{}
	r := newTestRouter(t, imports, &fakeStructure{}, newLocalStore(t))

	body, contentType := multipartUpload(t, "cup.docx", "document")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(middleware.HeaderUserID, "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"job_id":"job-1"`)
	require.Equal(t, "u1:cup.docx", imports.uploaded)
	require.Equal(t, "document", imports.body)
}

func TestUploadErrors(t *testing.T) {
	imports := &fakeImports{err: appErr.NewImportError(appErr.KindUnsupportedFormat, ".pdf is not a supported document type", nil)}
	r := newTestRouter(t, imports, &fakeStructure{}, newLocalStore(t))

	body, contentType := multipartUpload(t, "cup.pdf", "%PDF")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(middleware.HeaderUserID, "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, uint32(errcode.ErrUnsupportedFormat), env.Error.Code)
	require.Equal(t, "unsupported_format", env.Error.Kind)
	require.Equal(t, appErr.KindUnsupportedFormat.Hint(), env.Error.Hint)

	rec, env = do(t, r, http.MethodPost, "/api/v1/imports", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, uint32(errcode.ErrInvalidFile), env.Error.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/imports", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestImportStatusAndCancel(t *testing.T) {
	r := newTestRouter(t, &fakeImports{}, &fakeStructure{}, newLocalStore(t))

	rec, env := do(t, r, http.MethodGet, "/api/v1/imports/job-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view service.JobView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Equal(t, model.JobStatusFailed, view.Status)
	require.Equal(t, "re-save", view.Hint)

	rec, env = do(t, r, http.MethodGet, "/api/v1/imports/other", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, uint32(errcode.ErrNotFound), env.Error.Code)

	rec, env = do(t, r, http.MethodPost, "/api/v1/imports/job-1/cancel", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, uint32(errcode.ErrConflict), env.Error.Code)
}

func TestPackageRoutes(t *testing.T) {
	packages := &fakeStructure{}
	r := newTestRouter(t, &fakeImports{}, packages, newLocalStore(t))

	rec, env := do(t, r, http.MethodGet, "/api/v1/packages/p1", "", map[string]string{"X-Forwarded-Proto": "https"})
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		ID        string            `json:"id"`
		MediaURLs map[string]string `json:"media_urls"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Equal(t, "p1", view.ID)
	require.Equal(t, "https://example.com/api/v1/files/packages/p1/a.png", view.MediaURLs["packages/p1/a.png"])
	require.Equal(t, "https://cdn.example/b.png", view.MediaURLs["https://cdn.example/b.png"])

	rec, _ = do(t, r, http.MethodPost, "/api/v1/packages/p1/tours", `{"title":"Финал"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, r, http.MethodPut, "/api/v1/packages/p1/tours/t2/move", `{"position":0}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, r, http.MethodPut, "/api/v1/packages/p1/questions/q1/move", `{"tour_id":"t2"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{
		"get p1",
		"add_tour Финал -1",
		"move_tour t2 0",
		"move_question q1 t2  -1",
	}, packages.calls)

	rec, env = do(t, r, http.MethodPut, "/api/v1/packages/p1/numbering", `{"mode":"roman"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, uint32(errcode.ErrInvalid), env.Error.Code)

	rec, _ = do(t, r, http.MethodPut, "/api/v1/packages/p1/questions/q1/move", `{}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFileHandlerServesLocalMedia(t *testing.T) {
	dir := t.TempDir()
	store, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)
	png := []byte("\x89PNG\r\n\x1a\n0000")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "packages", "p1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "packages", "p1", "a.png"), png, 0o644))
	r := newTestRouter(t, &fakeImports{}, &fakeStructure{}, store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/files/packages/p1/a.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.Equal(t, png, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/files/packages/p1/missing.png", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
