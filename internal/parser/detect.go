package parser

import (
	"strconv"
	"strings"

	"github.com/xxxsen/quizpack/internal/model"
)

// DetectMode infers the numbering policy from the raw question numbers of
// all non-warm-up tours. The second return value is true when the numbers
// fit no known shape and Manual was chosen as the safe fallback.
func DetectMode(pkg *model.Package) (model.NumberingMode, bool) {
	var perTour [][]int
	total := 0
	for i := range pkg.Tours {
		t := &pkg.Tours[i]
		if t.IsWarmup {
			continue
		}
		var nums []int
		numeric := true
		t.EachQuestion(func(q *model.Question) {
			n, err := strconv.Atoi(strings.TrimSpace(q.Number))
			if err != nil {
				numeric = false
				return
			}
			nums = append(nums, n)
		})
		if !numeric {
			return model.NumberingManual, false
		}
		if len(nums) == 0 {
			continue
		}
		total += len(nums)
		perTour = append(perTour, nums)
	}
	if total == 0 {
		return model.NumberingGlobal, false
	}
	if isContinuous(perTour) {
		return model.NumberingGlobal, false
	}
	if restartsPerTour(perTour) {
		return model.NumberingPerTour, false
	}
	return model.NumberingManual, true
}

func isContinuous(tours [][]int) bool {
	prev, started := 0, false
	for _, nums := range tours {
		for _, n := range nums {
			if started && n != prev+1 {
				return false
			}
			prev, started = n, true
		}
	}
	return true
}

func restartsPerTour(tours [][]int) bool {
	for _, nums := range tours {
		for i, n := range nums {
			if n != i+1 {
				return false
			}
		}
	}
	return true
}
