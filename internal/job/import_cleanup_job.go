package job

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/quizpack/internal/model"
)

type FinishedJobStore interface {
	ListFinishedBefore(ctx context.Context, cutoff int64) ([]*model.ImportJob, error)
	DeleteFinishedBefore(ctx context.Context, cutoff int64) (int64, error)
}

// ImportCleanupJob drops finished import jobs older than maxAge together with
// whatever is left of their working directories.
type ImportCleanupJob struct {
	jobs     FinishedJobStore
	workRoot string
	maxAge   time.Duration
	now      func() time.Time
}

func NewImportCleanupJob(jobs FinishedJobStore, workRoot string, maxAge time.Duration) *ImportCleanupJob {
	return &ImportCleanupJob{jobs: jobs, workRoot: workRoot, maxAge: maxAge, now: time.Now}
}

func (j *ImportCleanupJob) Name() string {
	return "import_cleanup"
}

func (j *ImportCleanupJob) Run(ctx context.Context) error {
	if j.jobs == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	cutoff := j.now().Add(-maxAge).Unix()
	finished, err := j.jobs.ListFinishedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	for _, job := range finished {
		if !j.owned(job.WorkDir) {
			continue
		}
		if err := os.RemoveAll(job.WorkDir); err != nil {
			logger.Warn("remove job work dir failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	deleted, err := j.jobs.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	logger.Info("import jobs cleaned", zap.Int64("deleted", deleted), zap.Int("dirs", len(finished)))
	return nil
}

// owned reports whether dir sits strictly inside the work root.
func (j *ImportCleanupJob) owned(dir string) bool {
	if dir == "" || j.workRoot == "" {
		return false
	}
	rel, err := filepath.Rel(j.workRoot, dir)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
