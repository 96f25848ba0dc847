package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/xxxsen/quizpack/internal/model"
	"github.com/xxxsen/quizpack/internal/pkg/dbutil"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
)

var importJobFields = []string{
	"id", "seq", "user_id", "file_name", "source_path", "work_dir", "status", "step", "attempts",
	"error_kind", "error_message", "package_id", "warnings_json", "ctime", "mtime",
}

var terminalStatuses = []interface{}{
	string(model.JobStatusSucceeded),
	string(model.JobStatusFailed),
	string(model.JobStatusCancelled),
}

type ImportJobRepo struct {
	db *sql.DB
}

func NewImportJobRepo(db *sql.DB) *ImportJobRepo {
	return &ImportJobRepo{db: db}
}

// Create inserts a job and fills in its creation sequence.
func (r *ImportJobRepo) Create(ctx context.Context, job *model.ImportJob) error {
	warningsJSON, err := encodeWarnings(job.Warnings)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO import_jobs (id, user_id, file_name, source_path, work_dir, status, step, attempts,
			error_kind, error_message, package_id, warnings_json, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING seq
	`
	err = r.db.QueryRowContext(ctx, query,
		job.ID,
		job.UserID,
		job.FileName,
		job.SourcePath,
		job.WorkDir,
		string(job.Status),
		string(job.Step),
		job.Attempts,
		job.ErrorKind,
		job.ErrorMessage,
		job.PackageID,
		warningsJSON,
		job.Ctime,
		job.Mtime,
	).Scan(&job.Seq)
	if dbutil.IsConflict(err) {
		return appErr.ErrConflict
	}
	return err
}

func (r *ImportJobRepo) Get(ctx context.Context, userID, jobID string) (*model.ImportJob, error) {
	return r.getOne(ctx, map[string]interface{}{"id": jobID, "user_id": userID})
}

func (r *ImportJobRepo) GetByID(ctx context.Context, jobID string) (*model.ImportJob, error) {
	return r.getOne(ctx, map[string]interface{}{"id": jobID})
}

func (r *ImportJobRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.ImportJob, error) {
	jobs, err := r.list(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return jobs[0], nil
}

// Update writes the mutable state of a job.
func (r *ImportJobRepo) Update(ctx context.Context, job *model.ImportJob) error {
	warningsJSON, err := encodeWarnings(job.Warnings)
	if err != nil {
		return err
	}
	where := map[string]interface{}{"id": job.ID}
	update := map[string]interface{}{
		"status":        string(job.Status),
		"step":          string(job.Step),
		"attempts":      job.Attempts,
		"error_kind":    job.ErrorKind,
		"error_message": job.ErrorMessage,
		"package_id":    job.PackageID,
		"warnings_json": warningsJSON,
		"mtime":         job.Mtime,
	}
	affected, err := dbutil.Update(ctx, r.db, "import_jobs", where, update)
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// ListByStatus returns jobs in creation order.
func (r *ImportJobRepo) ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.ImportJob, error) {
	return r.list(ctx, map[string]interface{}{"status": string(status), "_orderby": "seq asc"})
}

func (r *ImportJobRepo) ListFinishedBefore(ctx context.Context, cutoff int64) ([]*model.ImportJob, error) {
	return r.list(ctx, map[string]interface{}{
		"status in": terminalStatuses,
		"mtime <":   cutoff,
		"_orderby":  "seq asc",
	})
}

// FailRunning fails every job a previous process left running.
func (r *ImportJobRepo) FailRunning(ctx context.Context, kind, message string, mtime int64) (int64, error) {
	where := map[string]interface{}{"status": string(model.JobStatusRunning)}
	update := map[string]interface{}{
		"status":        string(model.JobStatusFailed),
		"step":          string(model.JobStepNone),
		"error_kind":    kind,
		"error_message": message,
		"mtime":         mtime,
	}
	return dbutil.Update(ctx, r.db, "import_jobs", where, update)
}

// DeleteFinishedBefore removes terminal jobs last touched before cutoff.
func (r *ImportJobRepo) DeleteFinishedBefore(ctx context.Context, cutoff int64) (int64, error) {
	where := map[string]interface{}{
		"status in": terminalStatuses,
		"mtime <":   cutoff,
	}
	return dbutil.Delete(ctx, r.db, "import_jobs", where)
}

func (r *ImportJobRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.ImportJob, error) {
	rows, err := dbutil.Select(ctx, r.db, "import_jobs", where, importJobFields)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []*model.ImportJob
	for rows.Next() {
		var job model.ImportJob
		var status, step, warningsJSON string
		if err := rows.Scan(
			&job.ID,
			&job.Seq,
			&job.UserID,
			&job.FileName,
			&job.SourcePath,
			&job.WorkDir,
			&status,
			&step,
			&job.Attempts,
			&job.ErrorKind,
			&job.ErrorMessage,
			&job.PackageID,
			&warningsJSON,
			&job.Ctime,
			&job.Mtime,
		); err != nil {
			return nil, err
		}
		job.Status = model.JobStatus(status)
		job.Step = model.JobStep(step)
		if warningsJSON != "" {
			_ = json.Unmarshal([]byte(warningsJSON), &job.Warnings)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func encodeWarnings(ws []model.Warning) (string, error) {
	if ws == nil {
		ws = []model.Warning{}
	}
	data, err := json.Marshal(ws)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
