package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/quizpack/internal/model"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
	"github.com/xxxsen/quizpack/internal/pkg/keylock"
	"github.com/xxxsen/quizpack/internal/renumber"
)

type PackageRepo interface {
	LoadTree(ctx context.Context, userID, packageID string) (*model.Package, error)
	SaveStructure(ctx context.Context, pkg *model.Package) error
}

type TourInput struct {
	Title    string   `json:"title"`
	IsWarmup bool     `json:"is_warmup"`
	Editors  []string `json:"editors"`
	Preamble string   `json:"preamble"`
	// Blocks lists block titles when the new tour is divided into blocks.
	Blocks []string `json:"blocks"`
}

type QuestionInput struct {
	Number           string   `json:"number"`
	Text             string   `json:"text"`
	Answer           string   `json:"answer"`
	Accepted         string   `json:"accepted"`
	Rejected         string   `json:"rejected"`
	Comment          string   `json:"comment"`
	Source           string   `json:"source"`
	Authors          []string `json:"authors"`
	HostInstructions string   `json:"host_instructions"`
	Handout          string   `json:"handout"`
}

// StructureService applies manual edits to an imported package. Edits of the
// same package are serialized; every edit is renumbered and validated before
// it is saved.
type StructureService struct {
	packages PackageRepo
	locks    *keylock.KeyLock
}

func NewStructureService(packages PackageRepo) *StructureService {
	return &StructureService{packages: packages, locks: keylock.New()}
}

func (s *StructureService) Get(ctx context.Context, userID, packageID string) (*model.Package, error) {
	return s.packages.LoadTree(ctx, userID, packageID)
}

func (s *StructureService) AddTour(ctx context.Context, userID, packageID string, in TourInput, position int) (*model.Package, error) {
	tour := model.Tour{
		ID:       newID(),
		Title:    strings.TrimSpace(in.Title),
		IsWarmup: in.IsWarmup,
		Editors:  in.Editors,
		Preamble: in.Preamble,
	}
	for i, title := range in.Blocks {
		tour.Blocks = append(tour.Blocks, model.Block{ID: newID(), Title: strings.TrimSpace(title), OrderIndex: i})
	}
	return s.edit(ctx, userID, packageID, "add_tour", func(pkg *model.Package) (*model.Package, error) {
		return renumber.AddTour(pkg, tour, position)
	})
}

func (s *StructureService) RemoveTour(ctx context.Context, userID, packageID, tourID string) (*model.Package, error) {
	return s.edit(ctx, userID, packageID, "remove_tour", func(pkg *model.Package) (*model.Package, error) {
		return renumber.RemoveTour(pkg, tourID)
	})
}

func (s *StructureService) MoveTour(ctx context.Context, userID, packageID, tourID string, position int) (*model.Package, error) {
	return s.edit(ctx, userID, packageID, "move_tour", func(pkg *model.Package) (*model.Package, error) {
		return renumber.MoveTour(pkg, tourID, position)
	})
}

func (s *StructureService) SetWarmup(ctx context.Context, userID, packageID, tourID string, on bool) (*model.Package, error) {
	return s.edit(ctx, userID, packageID, "set_warmup", func(pkg *model.Package) (*model.Package, error) {
		return renumber.SetWarmup(pkg, tourID, on)
	})
}

func (s *StructureService) SetNumberingMode(ctx context.Context, userID, packageID, mode string) (*model.Package, error) {
	parsed, ok := model.ParseNumberingMode(mode)
	if !ok {
		return nil, fmt.Errorf("%w: numbering mode %q", appErr.ErrInvalid, mode)
	}
	return s.edit(ctx, userID, packageID, "set_numbering_mode", func(pkg *model.Package) (*model.Package, error) {
		return renumber.SetNumberingMode(pkg, parsed)
	})
}

func (s *StructureService) AddQuestion(ctx context.Context, userID, packageID, tourID, blockID string, in QuestionInput, position int) (*model.Package, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, fmt.Errorf("%w: question text is required", appErr.ErrInvalid)
	}
	q := model.Question{
		ID:               newID(),
		Number:           strings.TrimSpace(in.Number),
		Text:             strings.TrimSpace(in.Text),
		Answer:           strings.TrimSpace(in.Answer),
		Accepted:         in.Accepted,
		Rejected:         in.Rejected,
		Comment:          in.Comment,
		Source:           in.Source,
		Authors:          in.Authors,
		HostInstructions: in.HostInstructions,
		Handout:          in.Handout,
	}
	return s.edit(ctx, userID, packageID, "add_question", func(pkg *model.Package) (*model.Package, error) {
		if pkg.NumberingMode == model.NumberingManual && q.Number == "" {
			return nil, fmt.Errorf("%w: manual numbering needs a question number", appErr.ErrInvalid)
		}
		return renumber.AddQuestion(pkg, tourID, blockID, q, position)
	})
}

func (s *StructureService) RemoveQuestion(ctx context.Context, userID, packageID, questionID string) (*model.Package, error) {
	return s.edit(ctx, userID, packageID, "remove_question", func(pkg *model.Package) (*model.Package, error) {
		return renumber.RemoveQuestion(pkg, questionID)
	})
}

func (s *StructureService) MoveQuestion(ctx context.Context, userID, packageID, questionID, toTourID, toBlockID string, position int) (*model.Package, error) {
	return s.edit(ctx, userID, packageID, "move_question", func(pkg *model.Package) (*model.Package, error) {
		return renumber.MoveQuestion(pkg, questionID, toTourID, toBlockID, position)
	})
}

func (s *StructureService) edit(ctx context.Context, userID, packageID, op string, fn func(pkg *model.Package) (*model.Package, error)) (*model.Package, error) {
	unlock := s.locks.Lock(packageID)
	defer unlock()

	pkg, err := s.packages.LoadTree(ctx, userID, packageID)
	if err != nil {
		return nil, err
	}
	edited, err := fn(pkg)
	if err != nil {
		return nil, err
	}
	numbered := renumber.Renumber(edited)
	if err := renumber.Validate(numbered); err != nil {
		logutil.GetLogger(ctx).Error("renumbered package is invalid",
			zap.String("package_id", packageID), zap.String("op", op), zap.Error(err))
		return nil, err
	}
	if err := s.packages.SaveStructure(ctx, numbered); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("package structure updated",
		zap.String("package_id", packageID),
		zap.String("op", op),
		zap.Int("tours", len(numbered.Tours)))
	return numbered, nil
}
