package importer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/quizpack/internal/extract"
	"github.com/xxxsen/quizpack/internal/filestore"
	"github.com/xxxsen/quizpack/internal/model"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
	"github.com/xxxsen/quizpack/internal/parser"
	"github.com/xxxsen/quizpack/internal/renumber"
)

type Extractor interface {
	Extract(ctx context.Context, src extract.Source, workDir string) (*extract.Result, error)
}

type Parser interface {
	Parse(fragments []model.Fragment) *parser.Result
}

type Normalizer interface {
	Normalize(ctx context.Context, jobID string, res *parser.Result) (*parser.Result, error)
}

// TreeStore commits an imported package. CreateTree replaces any package an
// earlier attempt of the same job left behind.
type TreeStore interface {
	CreateTree(ctx context.Context, jobID string, pkg *model.Package) error
	SaveStructure(ctx context.Context, pkg *model.Package) error
}

type MediaStore interface {
	Save(ctx context.Context, key string, r filestore.ReadSeekCloser, size int64) error
}

// Pipeline is the Runner used in production: validate, extract, parse with
// the normalizer gate, commit the tree, then renumber it.
type Pipeline struct {
	extractor  Extractor
	parser     Parser
	normalizer Normalizer
	trees      TreeStore
	media      MediaStore
}

func NewPipeline(ex Extractor, p Parser, n Normalizer, trees TreeStore, media MediaStore) *Pipeline {
	return &Pipeline{extractor: ex, parser: p, normalizer: n, trees: trees, media: media}
}

func (p *Pipeline) Run(ctx context.Context, job *model.ImportJob, enter EnterFunc) (*Outcome, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("job_id", job.ID), zap.Int("attempt", job.Attempts))

	if err := enter(model.JobStepValidating); err != nil {
		return nil, err
	}
	if err := validateSource(job); err != nil {
		return nil, err
	}

	if err := enter(model.JobStepExtracting); err != nil {
		return nil, err
	}
	mediaDir := filepath.Join(job.WorkDir, "media")
	// a failed attempt may have left files behind
	if err := os.RemoveAll(mediaDir); err != nil {
		return nil, appErr.NewImportError(appErr.KindTransientIO, "failed to prepare working directory", err)
	}
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, appErr.NewImportError(appErr.KindTransientIO, "failed to prepare working directory", err)
	}
	extracted, err := p.extractor.Extract(ctx, extract.Source{Path: job.SourcePath, Name: job.FileName}, mediaDir)
	if err != nil {
		return nil, err
	}

	if err := enter(model.JobStepParsing); err != nil {
		return nil, err
	}
	parsed := p.parser.Parse(extracted.Fragments)
	logger.Info("document parsed",
		zap.Float64("confidence", parsed.Confidence),
		zap.Int("questions", parsed.Package.QuestionCount()))
	if p.normalizer != nil {
		parsed, err = p.normalizer.Normalize(ctx, job.ID, parsed)
		if err != nil {
			return nil, err
		}
	}
	draft := parsed.Package
	if draft == nil || draft.QuestionCount() == 0 {
		return nil, appErr.NewImportError(appErr.KindSchemaValidationFailed, "no questions were recognised in the document", nil)
	}
	warnings := append(append([]model.Warning(nil), extracted.Warnings...), parsed.Warnings...)

	if err := enter(model.JobStepImporting); err != nil {
		return nil, err
	}
	pkg := draft.Clone()
	pkg.UserID = job.UserID
	assignIDs(pkg)
	if err := p.storeMedia(ctx, pkg, extracted.Fragments); err != nil {
		return nil, err
	}
	if err := p.trees.CreateTree(ctx, job.ID, pkg); err != nil {
		return nil, appErr.NewImportError(appErr.KindTransientIO, "failed to save the package", err)
	}

	if err := enter(model.JobStepFinalizing); err != nil {
		return nil, err
	}
	numbered := renumber.Renumber(pkg)
	if err := renumber.Validate(numbered); err != nil {
		return nil, fmt.Errorf("renumber imported package: %w", err)
	}
	if err := p.trees.SaveStructure(ctx, numbered); err != nil {
		return nil, appErr.NewImportError(appErr.KindTransientIO, "failed to save the package numbering", err)
	}
	logger.Info("package imported",
		zap.String("package_id", numbered.ID),
		zap.Int("tours", len(numbered.Tours)),
		zap.String("numbering_mode", string(numbered.NumberingMode)))
	return &Outcome{PackageID: numbered.ID, Warnings: warnings}, nil
}

func validateSource(job *model.ImportJob) error {
	if !extract.IsSupportedExt(job.FileName) {
		return appErr.NewImportError(appErr.KindUnsupportedFormat, "unsupported file type", nil)
	}
	if _, err := os.Stat(job.SourcePath); err != nil {
		return appErr.NewImportError(appErr.KindTransientIO, "uploaded file is not readable", err)
	}
	return nil
}

// assignIDs gives every entity a fresh identity and links children to their
// parents.
func assignIDs(pkg *model.Package) {
	pkg.ID = uuid.NewString()
	for i := range pkg.Tours {
		t := &pkg.Tours[i]
		t.ID = uuid.NewString()
		t.PackageID = pkg.ID
		for j := range t.Questions {
			t.Questions[j].ID = uuid.NewString()
			t.Questions[j].TourID = t.ID
		}
		for j := range t.Blocks {
			b := &t.Blocks[j]
			b.ID = uuid.NewString()
			b.TourID = t.ID
			for k := range b.Questions {
				b.Questions[k].ID = uuid.NewString()
				b.Questions[k].TourID = t.ID
				b.Questions[k].BlockID = b.ID
			}
		}
	}
}

// storeMedia moves extracted files to permanent storage and rewrites media
// references from file names to store keys. Remote references stay as they
// are.
func (p *Pipeline) storeMedia(ctx context.Context, pkg *model.Package, fragments []model.Fragment) error {
	local := make(map[string]model.Image)
	for _, f := range fragments {
		for _, img := range f.Images {
			if img.Path != "" {
				local[img.Name] = img
			}
		}
	}
	if len(local) == 0 {
		return nil
	}
	keys := make(map[string]string, len(local))
	rewrite := func(names []string) error {
		for i, name := range names {
			img, ok := local[name]
			if !ok {
				continue
			}
			key, done := keys[name]
			if !done {
				key = path.Join("packages", pkg.ID, filepath.Base(img.Path))
				if err := p.saveFile(ctx, key, img.Path); err != nil {
					return appErr.NewImportError(appErr.KindTransientIO, "failed to store media", err)
				}
				keys[name] = key
			}
			names[i] = key
		}
		return nil
	}
	if err := rewrite(pkg.Media); err != nil {
		return err
	}
	for i := range pkg.Tours {
		var err error
		pkg.Tours[i].EachQuestion(func(q *model.Question) {
			if err == nil {
				err = rewrite(q.Media)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) saveFile(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return p.media.Save(ctx, key, f, info.Size())
}
