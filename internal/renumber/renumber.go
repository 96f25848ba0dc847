package renumber

import (
	"sort"
	"strconv"

	"github.com/xxxsen/quizpack/internal/model"
)

const WarmupNumber = "0"

// Renumber returns a copy of pkg with gapless OrderIndex values and display
// numbers assigned under the package numbering mode. The input is not
// modified and the operation is idempotent.
func Renumber(pkg *model.Package) *model.Package {
	out := pkg.Clone()
	if out == nil {
		return nil
	}
	sortTours(out)
	keepFirstWarmup(out)
	moveWarmupFirst(out)

	next := 1
	for i := range out.Tours {
		t := &out.Tours[i]
		t.OrderIndex = i
		t.PackageID = out.ID
		if t.IsWarmup {
			t.Number = WarmupNumber
			continue
		}
		t.Number = strconv.Itoa(next)
		next++
	}

	counter := 1
	for i := range out.Tours {
		t := &out.Tours[i]
		normalizeTour(t)
		if out.NumberingMode == model.NumberingManual {
			continue
		}
		local := 1
		t.EachQuestion(func(q *model.Question) {
			switch {
			case t.IsWarmup, out.NumberingMode == model.NumberingPerTour:
				q.Number = strconv.Itoa(local)
			default:
				q.Number = strconv.Itoa(counter)
				counter++
			}
			local++
		})
	}
	return out
}

// sortTours orders tours by their current OrderIndex, keeping slice order
// for ties.
func sortTours(pkg *model.Package) {
	sort.SliceStable(pkg.Tours, func(i, j int) bool {
		return pkg.Tours[i].OrderIndex < pkg.Tours[j].OrderIndex
	})
	for i := range pkg.Tours {
		t := &pkg.Tours[i]
		sort.SliceStable(t.Blocks, func(a, b int) bool {
			return t.Blocks[a].OrderIndex < t.Blocks[b].OrderIndex
		})
		sortQuestions(t.Questions)
		for j := range t.Blocks {
			sortQuestions(t.Blocks[j].Questions)
		}
	}
}

func sortQuestions(qs []model.Question) {
	sort.SliceStable(qs, func(i, j int) bool {
		return qs[i].OrderIndex < qs[j].OrderIndex
	})
}

func keepFirstWarmup(pkg *model.Package) {
	seen := false
	for i := range pkg.Tours {
		if !pkg.Tours[i].IsWarmup {
			continue
		}
		if seen {
			pkg.Tours[i].IsWarmup = false
			continue
		}
		seen = true
	}
}

func moveWarmupFirst(pkg *model.Package) {
	idx := pkg.WarmupIndex()
	if idx <= 0 {
		return
	}
	warmup := pkg.Tours[idx]
	copy(pkg.Tours[1:idx+1], pkg.Tours[:idx])
	pkg.Tours[0] = warmup
}

func normalizeTour(t *model.Tour) {
	if t.HasBlocks() && len(t.Questions) > 0 {
		// a tour holds either blocks or direct questions; stray direct
		// questions go in front of the first block
		lead := t.Questions
		t.Questions = nil
		t.Blocks[0].Questions = append(lead, t.Blocks[0].Questions...)
	}
	for i := range t.Questions {
		q := &t.Questions[i]
		q.OrderIndex = i
		q.TourID = t.ID
		q.BlockID = ""
	}
	for j := range t.Blocks {
		b := &t.Blocks[j]
		b.OrderIndex = j
		b.TourID = t.ID
		for k := range b.Questions {
			q := &b.Questions[k]
			q.OrderIndex = k
			q.TourID = t.ID
			q.BlockID = b.ID
		}
	}
}
