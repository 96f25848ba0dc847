package importer

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/quizpack/internal/metrics"
	"github.com/xxxsen/quizpack/internal/model"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
)

const (
	DefaultConcurrency = 2
	DefaultJobTimeout  = 10 * time.Minute
)

// DefaultRetryDelays is the wait before each retry; its length is the retry
// count on top of the initial attempt.
var DefaultRetryDelays = []time.Duration{0, 30 * time.Second, 2 * time.Minute}

var (
	errCancelled  = appErr.NewImportError(appErr.KindCancelled, "import cancelled by user", nil)
	errJobTimeout = appErr.NewImportError(appErr.KindTimeout, "import did not finish in time", nil)
)

// JobStore persists job state. Only the worker running a job writes to it
// while the job is running.
type JobStore interface {
	GetByID(ctx context.Context, jobID string) (*model.ImportJob, error)
	Update(ctx context.Context, job *model.ImportJob) error
	ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.ImportJob, error)
	FailRunning(ctx context.Context, kind, message string, mtime int64) (int64, error)
}

// EnterFunc is called by a Runner at every step boundary. It persists the
// step and returns an error when the job was cancelled or ran out of time.
type EnterFunc func(step model.JobStep) error

type Outcome struct {
	PackageID string
	Warnings  []model.Warning
}

// Runner executes one attempt of a job's pipeline.
type Runner interface {
	Run(ctx context.Context, job *model.ImportJob, enter EnterFunc) (*Outcome, error)
}

type Config struct {
	Concurrency int
	RetryDelays []time.Duration
	JobTimeout  time.Duration
}

type Option func(s *Scheduler)

// WithTimer replaces the timer used for retry backoff.
func WithTimer(t retry.Timer) Option {
	return func(s *Scheduler) {
		s.timer = t
	}
}

// WithMetrics reports queue and job counters to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

type handle struct {
	job       *model.ImportJob
	elem      *list.Element
	cancelled atomic.Bool
	mu        sync.Mutex
	wake      context.CancelFunc
}

// interrupt stops a pending backoff wait. It never touches a running step.
func (h *handle) interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.wake != nil {
		h.wake()
	}
}

type Scheduler struct {
	store   JobStore
	runner  Runner
	cfg     Config
	timer   retry.Timer
	metrics *metrics.Metrics

	mu      sync.Mutex
	queue   *list.List
	active  map[string]*handle
	notify  chan struct{}
	sem     chan struct{}
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(store JobStore, runner Runner, cfg Config, opts ...Option) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.RetryDelays == nil {
		cfg.RetryDelays = DefaultRetryDelays
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	s := &Scheduler{
		store:  store,
		runner: runner,
		cfg:    cfg,
		queue:  list.New(),
		active: make(map[string]*handle),
		notify: make(chan struct{}, 1),
		sem:    make(chan struct{}, cfg.Concurrency),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start recovers persisted state and launches the dispatcher. Jobs left
// running by a previous process are failed, queued ones are picked up again
// in creation order.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	logger := logutil.GetLogger(ctx)
	hint := appErr.KindInterrupted.Hint()
	failed, err := s.store.FailRunning(ctx, string(appErr.KindInterrupted), hint, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("fail interrupted jobs: %w", err)
	}
	if failed > 0 {
		logger.Warn("interrupted import jobs marked failed", zap.Int64("count", failed))
	}
	queued, err := s.store.ListByStatus(ctx, model.JobStatusQueued)
	if err != nil {
		return fmt.Errorf("load queued jobs: %w", err)
	}
	for _, job := range queued {
		s.enqueue(job)
	}
	logger.Info("import scheduler started",
		zap.Int("concurrency", s.cfg.Concurrency),
		zap.Int("recovered", len(queued)))

	s.wg.Add(1)
	go s.dispatch()
	return nil
}

// Stop ends dispatching and waits for workers. Jobs still running stay
// running in the store and are failed on the next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

// Submit queues a persisted job behind every job submitted before it. The
// scheduler works on a copy, so job is never written after Submit returns.
func (s *Scheduler) Submit(ctx context.Context, job *model.ImportJob) error {
	if job == nil || job.ID == "" {
		return appErr.ErrInvalid
	}
	if job.Status != model.JobStatusQueued {
		return fmt.Errorf("submit job %s in status %s: %w", job.ID, job.Status, appErr.ErrConflict)
	}
	s.enqueue(job)
	s.metrics.JobSubmitted()
	logutil.GetLogger(ctx).Info("import job queued", zap.String("job_id", job.ID))
	return nil
}

func (s *Scheduler) enqueue(job *model.ImportJob) {
	s.mu.Lock()
	if _, ok := s.active[job.ID]; ok {
		s.mu.Unlock()
		return
	}
	// the worker owns its copy; callers keep reading theirs
	owned := *job
	h := &handle{job: &owned}
	h.elem = s.queue.PushBack(h)
	s.active[job.ID] = h
	s.metrics.QueueDepth(s.queue.Len())
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Cancel asks for a job to stop. A queued job is cancelled at once, a
// running one at its next step boundary.
func (s *Scheduler) Cancel(ctx context.Context, userID, jobID string) error {
	s.mu.Lock()
	h, ok := s.active[jobID]
	if ok && h.job.UserID != userID {
		s.mu.Unlock()
		return appErr.ErrNotFound
	}
	if ok && h.elem != nil {
		s.queue.Remove(h.elem)
		h.elem = nil
		delete(s.active, jobID)
		s.metrics.QueueDepth(s.queue.Len())
		s.mu.Unlock()
		return s.markCancelled(ctx, h.job)
	}
	if ok {
		h.cancelled.Store(true)
		s.mu.Unlock()
		h.interrupt()
		logutil.GetLogger(ctx).Info("import job cancel requested", zap.String("job_id", jobID))
		return nil
	}
	s.mu.Unlock()

	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.UserID != userID {
		return appErr.ErrNotFound
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s already %s: %w", jobID, job.Status, appErr.ErrConflict)
	}
	return s.markCancelled(ctx, job)
}

func (s *Scheduler) markCancelled(ctx context.Context, job *model.ImportJob) error {
	job.Status = model.JobStatusCancelled
	job.Step = model.JobStepNone
	job.ErrorKind = string(appErr.KindCancelled)
	job.ErrorMessage = appErr.UserMessage(errCancelled)
	job.Mtime = time.Now().Unix()
	if err := s.store.Update(ctx, job); err != nil {
		return err
	}
	removeWorkDir(ctx, job)
	logutil.GetLogger(ctx).Info("import job cancelled", zap.String("job_id", job.ID))
	return nil
}

func (s *Scheduler) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case s.sem <- struct{}{}:
		case <-s.ctx.Done():
			return
		}
		h, ok := s.next()
		if !ok {
			return
		}
		started := make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.work(h, started)
		}()
		select {
		case <-started:
		case <-s.ctx.Done():
			return
		}
	}
}

// next blocks until a job is queued and pops the oldest one.
func (s *Scheduler) next() (*handle, bool) {
	for {
		s.mu.Lock()
		if front := s.queue.Front(); front != nil {
			h := s.queue.Remove(front).(*handle)
			h.elem = nil
			s.metrics.QueueDepth(s.queue.Len())
			s.mu.Unlock()
			return h, true
		}
		s.mu.Unlock()
		select {
		case <-s.notify:
		case <-s.ctx.Done():
			return nil, false
		}
	}
}

func (s *Scheduler) release(jobID string) {
	s.mu.Lock()
	delete(s.active, jobID)
	s.mu.Unlock()
}

func (s *Scheduler) work(h *handle, started chan<- struct{}) {
	job := h.job
	defer s.release(job.ID)
	logger := logutil.GetLogger(s.ctx).With(zap.String("job_id", job.ID))

	if h.cancelled.Load() {
		close(started)
		_ = s.markCancelled(s.ctx, job)
		return
	}
	job.Status = model.JobStatusRunning
	job.Mtime = time.Now().Unix()
	err := s.store.Update(s.ctx, job)
	close(started)
	if err != nil {
		logger.Error("mark import job running failed", zap.Error(err))
		return
	}
	logger.Info("import job started")
	s.metrics.JobStarted()
	began := time.Now()

	jobCtx, cancel := context.WithTimeout(s.ctx, s.cfg.JobTimeout)
	defer cancel()
	outcome, err := s.attempt(jobCtx, h)
	if s.ctx.Err() != nil {
		logger.Warn("scheduler stopped while job was running", zap.Int("attempts", job.Attempts))
		return
	}
	s.finish(s.ctx, job, outcome, classify(jobCtx, h, err))
	s.metrics.JobFinished(string(job.Status), job.ErrorKind, time.Since(began))
}

// attempt runs the pipeline with the retry policy. The job timeout spans all
// attempts and the backoff between them.
func (s *Scheduler) attempt(jobCtx context.Context, h *handle) (*Outcome, error) {
	job := h.job
	logger := logutil.GetLogger(jobCtx).With(zap.String("job_id", job.ID))

	waitCtx, wake := context.WithCancel(jobCtx)
	defer wake()
	h.mu.Lock()
	h.wake = wake
	h.mu.Unlock()
	if h.cancelled.Load() {
		wake()
	}

	var outcome *Outcome
	enter := func(step model.JobStep) error {
		if h.cancelled.Load() {
			return errCancelled
		}
		if err := jobCtx.Err(); err != nil {
			return err
		}
		job.Step = step
		job.Mtime = time.Now().Unix()
		if err := s.store.Update(jobCtx, job); err != nil {
			return appErr.NewImportError(appErr.KindTransientIO, "failed to save job progress", err)
		}
		logger.Debug("import step", zap.String("step", string(step)), zap.Int("attempt", job.Attempts))
		return nil
	}
	opts := []retry.Option{
		retry.Context(waitCtx),
		retry.Attempts(uint(len(s.cfg.RetryDelays) + 1)),
		retry.LastErrorOnly(true),
		retry.RetryIf(appErr.IsRetriable),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			return s.delayAfter(job.Attempts)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.metrics.JobRetried(string(appErr.KindOf(err)))
			logger.Warn("import attempt failed",
				zap.Int("attempt", job.Attempts),
				zap.String("kind", string(appErr.KindOf(err))),
				zap.Error(err))
		}),
	}
	if s.timer != nil {
		opts = append(opts, retry.WithTimer(s.timer))
	}
	err := retry.Do(func() error {
		job.Attempts++
		var err error
		outcome, err = s.runner.Run(jobCtx, job, enter)
		return err
	}, opts...)
	return outcome, err
}

func (s *Scheduler) delayAfter(attempt int) time.Duration {
	if attempt < 1 || attempt > len(s.cfg.RetryDelays) {
		return 0
	}
	return s.cfg.RetryDelays[attempt-1]
}

// classify maps the final attempt error onto the job's terminal kind.
func classify(jobCtx context.Context, h *handle, err error) error {
	if err == nil {
		return nil
	}
	if h.cancelled.Load() {
		return errCancelled
	}
	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		return appErr.NewImportError(appErr.KindTimeout, errJobTimeout.Msg, err)
	}
	return err
}

func (s *Scheduler) finish(ctx context.Context, job *model.ImportJob, outcome *Outcome, err error) {
	logger := logutil.GetLogger(ctx).With(zap.String("job_id", job.ID), zap.Int("attempts", job.Attempts))
	job.Step = model.JobStepNone
	job.Mtime = time.Now().Unix()
	switch kind := appErr.KindOf(err); {
	case err == nil:
		job.Status = model.JobStatusSucceeded
		job.PackageID = outcome.PackageID
		job.Warnings = outcome.Warnings
		job.ErrorKind, job.ErrorMessage = "", ""
		logger.Info("import job succeeded",
			zap.String("package_id", job.PackageID),
			zap.Int("warnings", len(job.Warnings)))
	case kind == appErr.KindCancelled:
		job.Status = model.JobStatusCancelled
		job.ErrorKind = string(kind)
		job.ErrorMessage = appErr.UserMessage(err)
		logger.Info("import job cancelled")
	default:
		job.Status = model.JobStatusFailed
		job.ErrorKind = string(kind)
		job.ErrorMessage = appErr.UserMessage(err)
		logger.Error("import job failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	// Cancel must see either the live handle or the terminal row.
	s.mu.Lock()
	err = s.store.Update(ctx, job)
	delete(s.active, job.ID)
	s.mu.Unlock()
	if err != nil {
		logger.Error("save finished import job failed", zap.Error(err))
	}
	removeWorkDir(ctx, job)
}

func removeWorkDir(ctx context.Context, job *model.ImportJob) {
	if job.WorkDir == "" {
		return
	}
	if err := os.RemoveAll(job.WorkDir); err != nil {
		logutil.GetLogger(ctx).Warn("remove job work dir failed",
			zap.String("job_id", job.ID), zap.String("dir", job.WorkDir), zap.Error(err))
	}
}
