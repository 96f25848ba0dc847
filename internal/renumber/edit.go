package renumber

import (
	"fmt"
	"slices"

	"github.com/xxxsen/quizpack/internal/model"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
)

// The edit operations below never touch their input. They return an edited
// copy whose sibling order follows slice order; callers run Renumber on the
// result before persisting it.

func prepare(pkg *model.Package) *model.Package {
	out := pkg.Clone()
	sortTours(out)
	return out
}

func clampPosition(position, length int) int {
	if position < 0 || position > length {
		return length
	}
	return position
}

func reindexTours(pkg *model.Package) {
	for i := range pkg.Tours {
		pkg.Tours[i].OrderIndex = i
	}
}

func reindexQuestions(qs []model.Question) {
	for i := range qs {
		qs[i].OrderIndex = i
	}
}

// AddTour inserts tour at position; a negative position appends.
func AddTour(pkg *model.Package, tour model.Tour, position int) (*model.Package, error) {
	out := prepare(pkg)
	if tour.IsWarmup && out.WarmupIndex() >= 0 {
		return nil, fmt.Errorf("%w: package already has a warm-up tour", appErr.ErrConflict)
	}
	tour.PackageID = out.ID
	out.Tours = slices.Insert(out.Tours, clampPosition(position, len(out.Tours)), tour)
	reindexTours(out)
	return out, nil
}

func RemoveTour(pkg *model.Package, tourID string) (*model.Package, error) {
	out := prepare(pkg)
	idx := out.FindTour(tourID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: tour %s", appErr.ErrNotFound, tourID)
	}
	out.Tours = slices.Delete(out.Tours, idx, idx+1)
	reindexTours(out)
	return out, nil
}

// MoveTour places the tour at position among its siblings. A warm-up tour
// stays first after renumbering regardless of the requested position.
func MoveTour(pkg *model.Package, tourID string, position int) (*model.Package, error) {
	out := prepare(pkg)
	idx := out.FindTour(tourID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: tour %s", appErr.ErrNotFound, tourID)
	}
	tour := out.Tours[idx]
	out.Tours = slices.Delete(out.Tours, idx, idx+1)
	out.Tours = slices.Insert(out.Tours, clampPosition(position, len(out.Tours)), tour)
	reindexTours(out)
	return out, nil
}

// SetWarmup flags the tour as the warm-up, clearing the flag on any other
// tour, or clears it when on is false.
func SetWarmup(pkg *model.Package, tourID string, on bool) (*model.Package, error) {
	out := prepare(pkg)
	idx := out.FindTour(tourID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: tour %s", appErr.ErrNotFound, tourID)
	}
	for i := range out.Tours {
		if on {
			out.Tours[i].IsWarmup = i == idx
		}
	}
	if !on {
		out.Tours[idx].IsWarmup = false
	}
	return out, nil
}

func SetNumberingMode(pkg *model.Package, mode model.NumberingMode) (*model.Package, error) {
	if _, ok := model.ParseNumberingMode(string(mode)); !ok {
		return nil, fmt.Errorf("%w: numbering mode %q", appErr.ErrInvalid, mode)
	}
	out := prepare(pkg)
	out.NumberingMode = mode
	return out, nil
}

// questionSlot returns the slice that holds questions of the given tour and
// optional block.
func questionSlot(pkg *model.Package, tourID, blockID string) (*[]model.Question, error) {
	idx := pkg.FindTour(tourID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: tour %s", appErr.ErrNotFound, tourID)
	}
	t := &pkg.Tours[idx]
	if blockID == "" {
		if t.HasBlocks() {
			return nil, fmt.Errorf("%w: tour %s is divided into blocks", appErr.ErrInvalid, tourID)
		}
		return &t.Questions, nil
	}
	for i := range t.Blocks {
		if t.Blocks[i].ID == blockID {
			return &t.Blocks[i].Questions, nil
		}
	}
	return nil, fmt.Errorf("%w: block %s", appErr.ErrNotFound, blockID)
}

// AddQuestion inserts q into the tour (or block) at position; a negative
// position appends. In manual mode the caller supplies the number.
func AddQuestion(pkg *model.Package, tourID, blockID string, q model.Question, position int) (*model.Package, error) {
	out := prepare(pkg)
	slot, err := questionSlot(out, tourID, blockID)
	if err != nil {
		return nil, err
	}
	q.TourID = tourID
	q.BlockID = blockID
	*slot = slices.Insert(*slot, clampPosition(position, len(*slot)), q)
	reindexQuestions(*slot)
	return out, nil
}

func RemoveQuestion(pkg *model.Package, questionID string) (*model.Package, error) {
	out := prepare(pkg)
	if _, err := takeQuestion(out, questionID); err != nil {
		return nil, err
	}
	return out, nil
}

// MoveQuestion moves a question within its tour or into another tour or
// block, inserting it at position.
func MoveQuestion(pkg *model.Package, questionID, toTourID, toBlockID string, position int) (*model.Package, error) {
	out := prepare(pkg)
	if _, err := questionSlot(out, toTourID, toBlockID); err != nil {
		return nil, err
	}
	q, err := takeQuestion(out, questionID)
	if err != nil {
		return nil, err
	}
	slot, err := questionSlot(out, toTourID, toBlockID)
	if err != nil {
		return nil, err
	}
	q.TourID = toTourID
	q.BlockID = toBlockID
	*slot = slices.Insert(*slot, clampPosition(position, len(*slot)), q)
	reindexQuestions(*slot)
	return out, nil
}

func takeQuestion(pkg *model.Package, questionID string) (model.Question, error) {
	take := func(qs *[]model.Question) (model.Question, bool) {
		for i := range *qs {
			if (*qs)[i].ID == questionID {
				q := (*qs)[i]
				*qs = slices.Delete(*qs, i, i+1)
				reindexQuestions(*qs)
				return q, true
			}
		}
		return model.Question{}, false
	}
	for i := range pkg.Tours {
		t := &pkg.Tours[i]
		if q, ok := take(&t.Questions); ok {
			return q, nil
		}
		for j := range t.Blocks {
			if q, ok := take(&t.Blocks[j].Questions); ok {
				return q, nil
			}
		}
	}
	return model.Question{}, fmt.Errorf("%w: question %s", appErr.ErrNotFound, questionID)
}
