package renumber

import (
	"fmt"
	"strconv"

	"github.com/xxxsen/quizpack/internal/model"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
)

// Validate checks the ordering and numbering invariants a renumbered
// package must satisfy.
func Validate(pkg *model.Package) error {
	if pkg == nil {
		return fmt.Errorf("%w: nil package", appErr.ErrInvalid)
	}
	warmups := 0
	next := 1
	counter := 1
	for i := range pkg.Tours {
		t := &pkg.Tours[i]
		if t.OrderIndex != i {
			return fmt.Errorf("%w: tour %d has order index %d", appErr.ErrInvalid, i, t.OrderIndex)
		}
		if t.HasBlocks() && len(t.Questions) > 0 {
			return fmt.Errorf("%w: tour %d mixes blocks and direct questions", appErr.ErrInvalid, i)
		}
		if t.IsWarmup {
			warmups++
			if warmups > 1 {
				return fmt.Errorf("%w: more than one warm-up tour", appErr.ErrInvalid)
			}
			if i != 0 || t.Number != WarmupNumber {
				return fmt.Errorf("%w: warm-up tour must be first and numbered %s", appErr.ErrInvalid, WarmupNumber)
			}
		} else {
			if t.Number != strconv.Itoa(next) {
				return fmt.Errorf("%w: tour %d numbered %q, want %d", appErr.ErrInvalid, i, t.Number, next)
			}
			next++
		}
		if err := validateOrder(t.Questions); err != nil {
			return fmt.Errorf("tour %d: %w", i, err)
		}
		for j := range t.Blocks {
			if t.Blocks[j].OrderIndex != j {
				return fmt.Errorf("%w: tour %d block %d has order index %d", appErr.ErrInvalid, i, j, t.Blocks[j].OrderIndex)
			}
			if err := validateOrder(t.Blocks[j].Questions); err != nil {
				return fmt.Errorf("tour %d block %d: %w", i, j, err)
			}
		}
		if pkg.NumberingMode == model.NumberingManual {
			continue
		}
		var bad error
		local := 1
		t.EachQuestion(func(q *model.Question) {
			want := local
			if !t.IsWarmup && pkg.NumberingMode != model.NumberingPerTour {
				want = counter
				counter++
			}
			local++
			if bad == nil && q.Number != strconv.Itoa(want) {
				bad = fmt.Errorf("%w: tour %d question numbered %q, want %d", appErr.ErrInvalid, i, q.Number, want)
			}
		})
		if bad != nil {
			return bad
		}
	}
	return nil
}

func validateOrder(qs []model.Question) error {
	for i := range qs {
		if qs[i].OrderIndex != i {
			return fmt.Errorf("%w: question %d has order index %d", appErr.ErrInvalid, i, qs[i].OrderIndex)
		}
	}
	return nil
}
