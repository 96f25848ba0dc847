package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/quizpack/internal/model"
	"github.com/xxxsen/quizpack/internal/pkg/errcode"
	"github.com/xxxsen/quizpack/internal/pkg/response"
	"github.com/xxxsen/quizpack/internal/service"
)

type ImportAPI interface {
	Upload(ctx context.Context, userID, fileName string, r io.Reader, size int64) (*model.ImportJob, error)
	Status(ctx context.Context, userID, jobID string) (*service.JobView, error)
	Cancel(ctx context.Context, userID, jobID string) error
}

type ImportHandler struct {
	imports       ImportAPI
	maxUploadSize int64
}

func NewImportHandler(imports ImportAPI, maxUploadSize int64) *ImportHandler {
	return &ImportHandler{imports: imports, maxUploadSize: maxUploadSize}
}

// Upload accepts a multipart "file" and answers as soon as the job is queued.
func (h *ImportHandler) Upload(c *gin.Context) {
	if h.maxUploadSize > 0 {
		// multipart framing on top of the document itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+1<<20)
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "file is required (max "+formatUploadLimit(h.maxUploadSize)+")")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()

	job, err := h.imports.Upload(c.Request.Context(), getUserID(c), file.Filename, opened, file.Size)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"job_id": job.ID, "status": job.Status}})
}

func (h *ImportHandler) Status(c *gin.Context) {
	view, err := h.imports.Status(c.Request.Context(), getUserID(c), c.Param("job_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *ImportHandler) Cancel(c *gin.Context) {
	if err := h.imports.Cancel(c.Request.Context(), getUserID(c), c.Param("job_id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
