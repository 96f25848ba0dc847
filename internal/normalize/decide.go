package normalize

import (
	"time"
	"unicode/utf8"

	"github.com/xxxsen/quizpack/internal/parser"
)

type Action int

const (
	Accept Action = iota
	Escalate
	SkipBudget
)

func (a Action) String() string {
	switch a {
	case Accept:
		return "accept"
	case Escalate:
		return "escalate"
	case SkipBudget:
		return "skip_budget"
	}
	return "unknown"
}

// Guardrail bounds one normalizer call. MaxCost is in the same currency
// unit as PricePer1KChars.
type Guardrail struct {
	Threshold       float64
	MaxCost         float64
	PricePer1KChars float64
	Timeout         time.Duration
}

func DefaultGuardrail() Guardrail {
	return Guardrail{
		Threshold:       0.8,
		MaxCost:         0.05,
		PricePer1KChars: 0.0005,
		Timeout:         60 * time.Second,
	}
}

// Remaining returns a copy of g whose budget is reduced by what the job
// already spent on earlier attempts.
func (g Guardrail) Remaining(spent float64) Guardrail {
	g.MaxCost -= spent
	if g.MaxCost < 0 {
		g.MaxCost = 0
	}
	return g
}

type Decision struct {
	Action        Action
	RawText       string
	EstimatedCost float64
}

// EstimateCost prices a request for rawText. The response is expected to be
// about as long as the input, so both directions are counted.
func EstimateCost(rawText string, price float64) float64 {
	chars := utf8.RuneCountInString(promptTemplate) + len(schemaJSON) + 2*utf8.RuneCountInString(rawText)
	return float64(chars) / 1000 * price
}

// Decide is the confidence gate: accept the rule-based tree, escalate the
// raw text to the language model, or skip the call because it would exceed
// the budget.
func Decide(res *parser.Result, g Guardrail) Decision {
	if res.Confidence >= g.Threshold {
		return Decision{Action: Accept}
	}
	cost := EstimateCost(res.RawText, g.PricePer1KChars)
	if cost > g.MaxCost {
		return Decision{Action: SkipBudget, EstimatedCost: cost}
	}
	return Decision{Action: Escalate, RawText: res.RawText, EstimatedCost: cost}
}
