package normalize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/quizpack/internal/model"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
	"github.com/xxxsen/quizpack/internal/parser"
)

type fakeGenerator struct {
	out    string
	err    error
	calls  int
	prompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.out, f.err
}

const goodTree = "```json\n" + `{
  "title": "",
  "tours": [
    {"title": "Разминка", "warmup": true, "questions": [
      {"number": 1, "text": "Warm-up question", "answer": "Yes"}
    ]},
    {"title": "Тур 1", "questions": [
      {"number": "1", "text": "First", "answer": "A", "authors": ["Иван Петров, Анна Смирнова"]},
      {"number": "2", "text": "Second", "answer": "B"}
    ]}
  ]
}` + "\n```"

func lowResult(questions int) *parser.Result {
	pkg := &model.Package{Title: "Кубок", Preamble: "Редакция благодарит"}
	if questions > 0 {
		tour := model.Tour{Title: "Тур 1", Number: "1"}
		for i := 0; i < questions; i++ {
			tour.Questions = append(tour.Questions, model.Question{Number: "1", Text: "q", OrderIndex: i})
		}
		tour.Questions[0].Media = []string{"a.png"}
		pkg.Tours = []model.Tour{tour}
	}
	return &parser.Result{
		Package:    pkg,
		Confidence: 0.3,
		RawText:    "Тур 1\n\nВопрос 1. First\n\nОтвет: A",
		Warnings:   []model.Warning{{Code: model.WarnMissingAnswer, Position: 2}},
	}
}

func testConfig() Config {
	g := DefaultGuardrail()
	g.Timeout = time.Second
	return Config{Guardrail: g, CacheSize: 16, CacheTTL: time.Minute}
}

func codes(ws []model.Warning) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

func TestDecide(t *testing.T) {
	g := DefaultGuardrail()
	res := &parser.Result{Confidence: 0.9, RawText: "text"}
	require.Equal(t, Accept, Decide(res, g).Action)

	res.Confidence = 0.5
	d := Decide(res, g)
	require.Equal(t, Escalate, d.Action)
	require.Equal(t, "text", d.RawText)
	require.Greater(t, d.EstimatedCost, 0.0)

	g.MaxCost = d.EstimatedCost / 2
	d = Decide(res, g)
	require.Equal(t, SkipBudget, d.Action)
	require.Empty(t, d.RawText)

	require.Equal(t, 0.0, g.Remaining(1).MaxCost)
	require.Equal(t, "skip_budget", SkipBudget.String())
}

func TestEstimateCostGrowsWithText(t *testing.T) {
	short := EstimateCost("a", 0.001)
	long := EstimateCost(strings.Repeat("a", 10000), 0.001)
	require.InDelta(t, 0.02, long-short, 0.0001)
}

func TestNormalizeAcceptLeavesResult(t *testing.T) {
	gen := &fakeGenerator{out: goodTree}
	n := New(gen, testConfig())
	res := lowResult(2)
	res.Confidence = 0.95
	out, err := n.Normalize(context.Background(), "job", res)
	require.NoError(t, err)
	require.Equal(t, 0, gen.calls)
	require.Same(t, res.Package, out.Package)
	require.Equal(t, res.Warnings, out.Warnings)
}

func TestNormalizeSkipsOverBudget(t *testing.T) {
	gen := &fakeGenerator{out: goodTree}
	cfg := testConfig()
	cfg.Guardrail.MaxCost = 0
	n := New(gen, cfg)
	out, err := n.Normalize(context.Background(), "job", lowResult(2))
	require.NoError(t, err)
	require.Equal(t, 0, gen.calls)
	require.Equal(t, []string{model.WarnMissingAnswer, model.WarnNormalizerBudget, model.WarnLowConfidence}, codes(out.Warnings))
}

func TestNormalizeAppliesModelTree(t *testing.T) {
	gen := &fakeGenerator{out: goodTree}
	n := New(gen, testConfig())
	res := lowResult(1)
	out, err := n.Normalize(context.Background(), "job", res)
	require.NoError(t, err)
	require.Equal(t, 1, gen.calls)
	require.Contains(t, gen.prompt, res.RawText)
	require.Contains(t, gen.prompt, `"$defs"`)

	pkg := out.Package
	require.Equal(t, "Кубок", pkg.Title)
	require.Equal(t, "Редакция благодарит", pkg.Preamble)
	require.Len(t, pkg.Tours, 2)
	require.True(t, pkg.Tours[0].IsWarmup)
	require.Equal(t, "1", pkg.Tours[0].Questions[0].Number)
	require.Equal(t, []string{"a.png"}, pkg.Tours[0].Questions[0].Media)
	require.Equal(t, []string{"Иван Петров", "Анна Смирнова"}, pkg.Tours[1].Questions[0].Authors)
	require.Equal(t, model.NumberingGlobal, pkg.NumberingMode)
	require.Contains(t, codes(out.Warnings), model.WarnNormalizerApplied)
	require.Greater(t, n.Spent("job"), 0.0)

	// the input result is left untouched
	require.Len(t, res.Package.Tours, 1)
	require.Len(t, res.Warnings, 1)
}

func TestNormalizeCachesByRawText(t *testing.T) {
	gen := &fakeGenerator{out: goodTree}
	n := New(gen, testConfig())
	_, err := n.Normalize(context.Background(), "job-1", lowResult(1))
	require.NoError(t, err)
	out, err := n.Normalize(context.Background(), "job-2", lowResult(1))
	require.NoError(t, err)
	require.Equal(t, 1, gen.calls)
	require.Len(t, out.Package.Tours, 2)
	require.Equal(t, 0.0, n.Spent("job-2"))
}

func TestNormalizeBudgetSpansRetries(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("rate limited")}
	cfg := testConfig()
	cost := EstimateCost(lowResult(1).RawText, cfg.Guardrail.PricePer1KChars)
	cfg.Guardrail.MaxCost = cost * 1.5
	n := New(gen, cfg)

	out, err := n.Normalize(context.Background(), "job", lowResult(1))
	require.NoError(t, err)
	require.Contains(t, codes(out.Warnings), model.WarnNormalizerFailed)

	out, err = n.Normalize(context.Background(), "job", lowResult(1))
	require.NoError(t, err)
	require.Equal(t, 1, gen.calls)
	require.Contains(t, codes(out.Warnings), model.WarnNormalizerBudget)
}

func TestNormalizeModelFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection reset")}
	n := New(gen, testConfig())

	res := lowResult(2)
	out, err := n.Normalize(context.Background(), "job", res)
	require.NoError(t, err)
	require.Same(t, res.Package, out.Package)
	require.Equal(t, []string{model.WarnMissingAnswer, model.WarnNormalizerFailed, model.WarnLowConfidence}, codes(out.Warnings))

	_, err = n.Normalize(context.Background(), "job-empty", lowResult(0))
	require.Error(t, err)
	require.Equal(t, appErr.KindNormalizerUnavailable, appErr.KindOf(err))
	require.True(t, appErr.IsRetriable(err))
}

func TestNormalizeWithoutGenerator(t *testing.T) {
	n := New(nil, testConfig())
	out, err := n.Normalize(context.Background(), "job", lowResult(1))
	require.NoError(t, err)
	require.Contains(t, codes(out.Warnings), model.WarnNormalizerFailed)

	_, err = n.Normalize(context.Background(), "job", lowResult(0))
	require.Equal(t, appErr.KindNormalizerUnavailable, appErr.KindOf(err))
}

func TestNormalizeRejectsInvalidOutput(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{name: "not json", out: "I could not read the document"},
		{name: "no tours", out: `{"tours": []}`},
		{name: "missing answer", out: `{"tours": [{"questions": [{"number": 1, "text": "q"}]}]}`},
		{name: "blank answer", out: `{"tours": [{"questions": [{"number": 1, "text": "q", "answer": "   "}]}]}`},
		{name: "mixed tour", out: `{"tours": [{"blocks": [{"questions": [{"number": 1, "text": "q", "answer": "a"}]}], "questions": [{"number": 2, "text": "q", "answer": "a"}]}]}`},
		{name: "two warmups", out: `{"tours": [{"warmup": true, "questions": [{"number": 1, "text": "q", "answer": "a"}]}, {"warmup": true, "questions": [{"number": 1, "text": "q", "answer": "a"}]}]}`},
		{name: "empty tour", out: `{"tours": [{"title": "Тур 1"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New(&fakeGenerator{out: tt.out}, testConfig())
			out, err := n.Normalize(context.Background(), "job", lowResult(1))
			require.NoError(t, err)
			require.Contains(t, codes(out.Warnings), model.WarnNormalizerRejected)
			require.Len(t, out.Package.Tours, 1)

			_, err = n.Normalize(context.Background(), "job-empty", lowResult(0))
			require.Equal(t, appErr.KindSchemaValidationFailed, appErr.KindOf(err))
			require.False(t, appErr.IsRetriable(err))
		})
	}
}

func TestParseStructuredJSON(t *testing.T) {
	raw, err := parseStructuredJSON("Here you go:\n{\"tours\": []}\nHope it helps")
	require.NoError(t, err)
	require.JSONEq(t, `{"tours": []}`, string(raw))

	raw, err = parseStructuredJSON("```\n{\"a\": 1}\n```")
	require.NoError(t, err)
	require.JSONEq(t, `{"a": 1}`, string(raw))

	_, err = parseStructuredJSON("   ")
	require.Error(t, err)
}

func TestMergeMovesSurplusMediaToPackage(t *testing.T) {
	base := &model.Package{Tours: []model.Tour{{Questions: []model.Question{
		{Media: []string{"a.png"}}, {Media: []string{"b.png"}},
	}}}}
	tree := &model.Package{Title: "Model", Tours: []model.Tour{{Questions: []model.Question{{Text: "q", Answer: "a"}}}}}
	out := merge(base, tree)
	require.Equal(t, "Model", out.Title)
	require.Equal(t, []string{"a.png"}, out.Tours[0].Questions[0].Media)
	require.Equal(t, []string{"b.png"}, out.Media)
	require.Empty(t, tree.Tours[0].Questions[0].Media)
}
