package service

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/quizpack/internal/model"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
)

type memPackages struct {
	mu    sync.Mutex
	pkgs  map[string]*model.Package
	saves int
}

func (m *memPackages) LoadTree(ctx context.Context, userID, packageID string) (*model.Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pkg, ok := m.pkgs[packageID]
	if !ok || pkg.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	return pkg.Clone(), nil
}

func (m *memPackages) SaveStructure(ctx context.Context, pkg *model.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pkgs[pkg.ID] = pkg.Clone()
	m.saves++
	return nil
}

func globalPackage(questions int) *model.Package {
	tour := model.Tour{ID: "t1", PackageID: "p1", Number: "1", Title: "Тур 1"}
	for i := 0; i < questions; i++ {
		tour.Questions = append(tour.Questions, model.Question{
			ID: "q" + strconv.Itoa(i+1), TourID: "t1", Number: strconv.Itoa(i + 1), OrderIndex: i, Text: "text",
		})
	}
	return &model.Package{ID: "p1", UserID: "u1", NumberingMode: model.NumberingGlobal, Tours: []model.Tour{tour}}
}

func numbers(t *model.Tour) []string {
	var out []string
	t.EachQuestion(func(q *model.Question) { out = append(out, q.Number) })
	return out
}

func TestStructureEditScenario(t *testing.T) {
	repo := &memPackages{pkgs: map[string]*model.Package{"p1": globalPackage(12)}}
	svc := NewStructureService(repo)
	ctx := context.Background()

	pkg, err := svc.AddTour(ctx, "u1", "p1", TourInput{Title: "Новый тур"}, -1)
	require.NoError(t, err)
	newTour := pkg.Tours[1]
	require.Equal(t, "2", newTour.Number)
	require.Equal(t, "p1", newTour.PackageID)

	for i := 0; i < 3; i++ {
		_, err = svc.AddQuestion(ctx, "u1", "p1", newTour.ID, "", QuestionInput{Text: "new " + strconv.Itoa(i), Answer: "a"}, -1)
		require.NoError(t, err)
	}
	pkg, err = svc.MoveTour(ctx, "u1", "p1", newTour.ID, 0)
	require.NoError(t, err)

	require.Equal(t, newTour.ID, pkg.Tours[0].ID)
	require.Equal(t, []string{"1", "2", "3"}, numbers(&pkg.Tours[0]))
	want := make([]string, 0, 12)
	for i := 4; i <= 15; i++ {
		want = append(want, strconv.Itoa(i))
	}
	require.Equal(t, want, numbers(&pkg.Tours[1]))
	require.Equal(t, "1", pkg.Tours[0].Number)
	require.Equal(t, "2", pkg.Tours[1].Number)

	stored, err := svc.Get(ctx, "u1", "p1")
	require.NoError(t, err)
	require.Equal(t, pkg, stored)
}

func TestStructureWarmupAndMode(t *testing.T) {
	repo := &memPackages{pkgs: map[string]*model.Package{"p1": globalPackage(3)}}
	svc := NewStructureService(repo)
	ctx := context.Background()

	pkg, err := svc.AddTour(ctx, "u1", "p1", TourInput{Title: "Разминка", IsWarmup: true}, -1)
	require.NoError(t, err)
	require.True(t, pkg.Tours[0].IsWarmup)
	require.Equal(t, "0", pkg.Tours[0].Number)

	_, err = svc.AddTour(ctx, "u1", "p1", TourInput{IsWarmup: true}, -1)
	require.ErrorIs(t, err, appErr.ErrConflict)

	_, err = svc.SetNumberingMode(ctx, "u1", "p1", "alphabetical")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	pkg, err = svc.SetNumberingMode(ctx, "u1", "p1", "per_tour")
	require.NoError(t, err)
	require.Equal(t, model.NumberingPerTour, pkg.NumberingMode)

	pkg, err = svc.SetWarmup(ctx, "u1", "p1", pkg.Tours[0].ID, false)
	require.NoError(t, err)
	require.False(t, pkg.Tours[0].IsWarmup)
	require.Equal(t, "1", pkg.Tours[0].Number)

	_, err = svc.RemoveQuestion(ctx, "u1", "p1", "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = svc.AddQuestion(ctx, "u1", "p1", "t1", "", QuestionInput{Text: "  "}, 0)
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = svc.Get(ctx, "u2", "p1")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestStructureManualModeNeedsNumber(t *testing.T) {
	repo := &memPackages{pkgs: map[string]*model.Package{"p1": globalPackage(2)}}
	svc := NewStructureService(repo)
	ctx := context.Background()

	_, err := svc.SetNumberingMode(ctx, "u1", "p1", "manual")
	require.NoError(t, err)
	_, err = svc.AddQuestion(ctx, "u1", "p1", "t1", "", QuestionInput{Text: "без номера"}, -1)
	require.ErrorIs(t, err, appErr.ErrInvalid)

	pkg, err := svc.AddQuestion(ctx, "u1", "p1", "t1", "", QuestionInput{Number: "2а", Text: "с номером"}, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "2а"}, numbers(&pkg.Tours[0]))
}

func TestStructureConcurrentEditsSamePackage(t *testing.T) {
	repo := &memPackages{pkgs: map[string]*model.Package{"p1": globalPackage(0)}}
	svc := NewStructureService(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AddQuestion(ctx, "u1", "p1", "t1", "", QuestionInput{Text: "q" + strconv.Itoa(i)}, 0)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	pkg, err := svc.Get(ctx, "u1", "p1")
	require.NoError(t, err)
	got := numbers(&pkg.Tours[0])
	require.Len(t, got, 20)
	for i, n := range got {
		require.Equal(t, strconv.Itoa(i+1), n)
		require.Equal(t, i, pkg.Tours[0].Questions[i].OrderIndex)
	}
	require.Equal(t, 20, repo.saves)
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*model.ImportJob
}

func (m *memJobs) Create(ctx context.Context, job *model.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobs) Get(ctx context.Context, userID, jobID string) (*model.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memJobs) Update(ctx context.Context, job *model.ImportJob) error {
	return m.Create(ctx, job)
}

type recordScheduler struct {
	submitted []string
	cancelled []string
}

func (r *recordScheduler) Submit(ctx context.Context, job *model.ImportJob) error {
	r.submitted = append(r.submitted, job.ID)
	return nil
}

func (r *recordScheduler) Cancel(ctx context.Context, userID, jobID string) error {
	r.cancelled = append(r.cancelled, jobID)
	return nil
}

func TestImportUpload(t *testing.T) {
	root := t.TempDir()
	jobs := &memJobs{jobs: map[string]*model.ImportJob{}}
	sched := &recordScheduler{}
	svc := NewImportService(jobs, sched, root, 1<<20)
	ctx := context.Background()

	job, err := svc.Upload(ctx, "u1", "../Кубок.DOCX", strings.NewReader("content"), 7)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusQueued, job.Status)
	require.Equal(t, "Кубок.DOCX", job.FileName)
	require.Equal(t, []string{job.ID}, sched.submitted)
	data, err := os.ReadFile(job.SourcePath)
	require.NoError(t, err)
	require.Equal(t, "content", string(data))

	view, err := svc.Status(ctx, "u1", job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusQueued, view.Status)
	require.Empty(t, view.PackageID)
	require.NotNil(t, view.Warnings)

	require.NoError(t, svc.Cancel(ctx, "u1", job.ID))
	require.Equal(t, []string{job.ID}, sched.cancelled)
}

func TestImportUploadRejects(t *testing.T) {
	root := t.TempDir()
	jobs := &memJobs{jobs: map[string]*model.ImportJob{}}
	sched := &recordScheduler{}
	svc := NewImportService(jobs, sched, root, 16)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "u1", "cup.pdf", strings.NewReader("x"), 1)
	require.Equal(t, appErr.KindUnsupportedFormat, appErr.KindOf(err))

	_, err = svc.Upload(ctx, "u1", "cup.docx", strings.NewReader("x"), 17)
	require.Equal(t, appErr.KindTooLarge, appErr.KindOf(err))

	// the declared size can lie, the stream is capped as well
	_, err = svc.Upload(ctx, "u1", "cup.txt", bytes.NewReader(make([]byte, 64)), -1)
	require.Equal(t, appErr.KindTooLarge, appErr.KindOf(err))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Empty(t, sched.submitted)
	require.Empty(t, jobs.jobs)
}

func TestImportStatusOfFinishedJobs(t *testing.T) {
	jobs := &memJobs{jobs: map[string]*model.ImportJob{
		"ok":  {ID: "ok", UserID: "u1", Status: model.JobStatusSucceeded, PackageID: "p1"},
		"bad": {ID: "bad", UserID: "u1", Status: model.JobStatusFailed, ErrorKind: string(appErr.KindPasswordProtected), ErrorMessage: "document is password protected"},
	}}
	svc := NewImportService(jobs, &recordScheduler{}, t.TempDir(), 0)
	ctx := context.Background()

	view, err := svc.Status(ctx, "u1", "ok")
	require.NoError(t, err)
	require.Equal(t, "p1", view.PackageID)
	require.Empty(t, view.ErrorKind)

	view, err = svc.Status(ctx, "u1", "bad")
	require.NoError(t, err)
	require.Equal(t, "password_protected", view.ErrorKind)
	require.Equal(t, appErr.KindPasswordProtected.Hint(), view.Hint)
	require.Empty(t, view.PackageID)

	_, err = svc.Status(ctx, "u2", "ok")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}
