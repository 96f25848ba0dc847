package parser

import (
	"fmt"
	"strings"

	"github.com/xxxsen/quizpack/internal/model"
)

type Weights struct {
	MissingAnswer float64
	NoText        float64
	Suspicious    float64
}

func DefaultWeights() Weights {
	return Weights{
		MissingAnswer: 1.0,
		NoText:        1.0,
		Suspicious:    0.5,
	}
}

func (p *Parser) score(st *state) float64 {
	total, missing, noText := 0, 0, 0
	for i := range st.pkg.Tours {
		st.pkg.Tours[i].EachQuestion(func(q *model.Question) {
			pos := -1
			if total < len(st.questionPos) {
				pos = st.questionPos[total]
			}
			total++
			label := q.Number
			if label == "" {
				label = "?"
			}
			if strings.TrimSpace(q.Text) == "" {
				noText++
				st.warnAt(model.WarnMissingText, fmt.Sprintf("question %s has no text", label), pos)
			}
			if strings.TrimSpace(q.Answer) == "" {
				missing++
				st.warnAt(model.WarnMissingAnswer, fmt.Sprintf("question %s has no answer", label), pos)
			}
		})
	}
	if total == 0 {
		return 0
	}
	penalty := p.weights.MissingAnswer*float64(missing) +
		p.weights.NoText*float64(noText) +
		p.weights.Suspicious*float64(st.suspicious)
	score := 1 - penalty/float64(total)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
