package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/quizpack/internal/extract"
	"github.com/xxxsen/quizpack/internal/model"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
)

type ImportJobRepo interface {
	Create(ctx context.Context, job *model.ImportJob) error
	Get(ctx context.Context, userID, jobID string) (*model.ImportJob, error)
	Update(ctx context.Context, job *model.ImportJob) error
}

type JobScheduler interface {
	Submit(ctx context.Context, job *model.ImportJob) error
	Cancel(ctx context.Context, userID, jobID string) error
}

type ImportService struct {
	jobs      ImportJobRepo
	scheduler JobScheduler
	workRoot  string
	maxSize   int64
}

func NewImportService(jobs ImportJobRepo, scheduler JobScheduler, workRoot string, maxSize int64) *ImportService {
	if maxSize <= 0 {
		maxSize = extract.DefaultMaxSize
	}
	return &ImportService{jobs: jobs, scheduler: scheduler, workRoot: workRoot, maxSize: maxSize}
}

// JobView is what a submitter sees of a job. Internal error detail stays in
// the logs.
type JobView struct {
	ID           string          `json:"id"`
	FileName     string          `json:"file_name"`
	Status       model.JobStatus `json:"status"`
	Step         model.JobStep   `json:"step,omitempty"`
	Attempts     int             `json:"attempts"`
	PackageID    string          `json:"package_id,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Hint         string          `json:"hint,omitempty"`
	Warnings     []model.Warning `json:"warnings"`
	Ctime        int64           `json:"ctime"`
	Mtime        int64           `json:"mtime"`
}

// Upload checks the document, stores it in a fresh job directory and queues
// the job. It returns as soon as the job is queued.
func (s *ImportService) Upload(ctx context.Context, userID, fileName string, r io.Reader, size int64) (*model.ImportJob, error) {
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if !extract.IsSupportedExt(fileName) {
		return nil, appErr.NewImportError(appErr.KindUnsupportedFormat, fmt.Sprintf("%s is not a supported document type", filepath.Ext(fileName)), nil)
	}
	if size > s.maxSize {
		return nil, tooLarge(s.maxSize)
	}
	jobID := newID()
	workDir := filepath.Join(s.workRoot, jobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	sourcePath := filepath.Join(workDir, "source"+strings.ToLower(filepath.Ext(fileName)))
	if err := saveUpload(sourcePath, r, s.maxSize); err != nil {
		_ = os.RemoveAll(workDir)
		if errors.Is(err, errUploadTooLarge) {
			return nil, tooLarge(s.maxSize)
		}
		return nil, err
	}

	now := time.Now().Unix()
	job := &model.ImportJob{
		ID:         jobID,
		UserID:     userID,
		FileName:   fileName,
		SourcePath: sourcePath,
		WorkDir:    workDir,
		Status:     model.JobStatusQueued,
		Warnings:   []model.Warning{},
		Ctime:      now,
		Mtime:      now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		_ = os.RemoveAll(workDir)
		return nil, err
	}
	if err := s.scheduler.Submit(ctx, job); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("import job created",
		zap.String("job_id", job.ID),
		zap.String("user_id", userID),
		zap.String("file", fileName))
	return job, nil
}

func (s *ImportService) Status(ctx context.Context, userID, jobID string) (*JobView, error) {
	job, err := s.jobs.Get(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	view := &JobView{
		ID:       job.ID,
		FileName: job.FileName,
		Status:   job.Status,
		Step:     job.Step,
		Attempts: job.Attempts,
		Warnings: job.Warnings,
		Ctime:    job.Ctime,
		Mtime:    job.Mtime,
	}
	if view.Warnings == nil {
		view.Warnings = []model.Warning{}
	}
	switch job.Status {
	case model.JobStatusSucceeded:
		view.PackageID = job.PackageID
	case model.JobStatusFailed, model.JobStatusCancelled:
		view.ErrorKind = job.ErrorKind
		view.ErrorMessage = job.ErrorMessage
		view.Hint = appErr.Kind(job.ErrorKind).Hint()
	}
	return view, nil
}

func (s *ImportService) Cancel(ctx context.Context, userID, jobID string) error {
	return s.scheduler.Cancel(ctx, userID, jobID)
}

var errUploadTooLarge = errors.New("upload too large")

func saveUpload(path string, r io.Reader, maxSize int64) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()
	n, err := io.Copy(out, io.LimitReader(r, maxSize+1))
	if err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	if n > maxSize {
		return errUploadTooLarge
	}
	return nil
}

func tooLarge(maxSize int64) error {
	return appErr.NewImportError(appErr.KindTooLarge, fmt.Sprintf("document exceeds the %d MB limit", maxSize>>20), nil)
}
