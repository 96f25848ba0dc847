package normalize

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/quizpack/internal/ai"
	"github.com/xxxsen/quizpack/internal/metrics"
	"github.com/xxxsen/quizpack/internal/model"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
	"github.com/xxxsen/quizpack/internal/parser"
)

type Config struct {
	Guardrail Guardrail
	CacheSize int
	CacheTTL  time.Duration
	Metrics   *metrics.Metrics
}

type Normalizer struct {
	gen     ai.IGenerator
	guard   Guardrail
	cache   *treeCache
	ledger  *spendLedger
	metrics *metrics.Metrics
}

// New builds a normalizer. gen may be nil, in which case every escalation is
// treated as a model failure.
func New(gen ai.IGenerator, cfg Config) *Normalizer {
	return &Normalizer{
		gen:     gen,
		guard:   cfg.Guardrail,
		cache:   newTreeCache(cfg.CacheSize, cfg.CacheTTL),
		ledger:  newSpendLedger(cfg.CacheSize, cfg.CacheTTL),
		metrics: cfg.Metrics,
	}
}

// Spent reports the model spend recorded for jobID.
func (n *Normalizer) Spent(jobID string) float64 {
	return n.ledger.Spent(jobID)
}

// Normalize gates res on its confidence and, when needed, replaces its tree
// with one produced by the language model. The returned result is a new
// value; res is not modified.
func (n *Normalizer) Normalize(ctx context.Context, jobID string, res *parser.Result) (*parser.Result, error) {
	out := *res
	out.Warnings = append([]model.Warning(nil), res.Warnings...)
	logger := logutil.GetLogger(ctx).With(zap.String("job_id", jobID), zap.Float64("confidence", res.Confidence))

	decision := Decide(res, n.guard.Remaining(n.ledger.Spent(jobID)))
	n.metrics.NormalizerDecision(decision.Action.String())
	switch decision.Action {
	case Accept:
		return &out, nil
	case SkipBudget:
		logger.Info("normalizer skipped, over budget", zap.Float64("estimated_cost", decision.EstimatedCost))
		out.Warnings = append(out.Warnings,
			warning(model.WarnNormalizerBudget, fmt.Sprintf("estimated cost %.4f exceeds remaining budget", decision.EstimatedCost)),
			lowConfidence(res.Confidence))
		return &out, nil
	}

	empty := res.Package == nil || res.Package.QuestionCount() == 0
	tree, cached := n.cache.Get(decision.RawText)
	if !cached {
		var err error
		tree, err = n.escalate(ctx, jobID, decision)
		if err != nil {
			kind := appErr.KindOf(err)
			logger.Warn("normalizer failed", zap.String("kind", string(kind)), zap.Error(err))
			if empty {
				return nil, err
			}
			code := model.WarnNormalizerFailed
			if kind == appErr.KindSchemaValidationFailed {
				code = model.WarnNormalizerRejected
			}
			out.Warnings = append(out.Warnings, warning(code, appErr.UserMessage(err)), lowConfidence(res.Confidence))
			return &out, nil
		}
		n.cache.Add(decision.RawText, tree)
	} else {
		logger.Debug("normalizer cache hit")
	}

	merged := merge(res.Package, tree)
	mode, ambiguous := parser.DetectMode(merged)
	merged.NumberingMode = mode
	out.Package = merged
	if ambiguous {
		out.Warnings = append(out.Warnings, warning(model.WarnAmbiguousNumbering, "question numbers fit no numbering mode, manual numbering kept"))
	}
	out.Warnings = append(out.Warnings, warning(model.WarnNormalizerApplied,
		fmt.Sprintf("structure rebuilt by language model, rule-based confidence %.2f", res.Confidence)))
	logger.Info("normalizer applied", zap.Bool("cached", cached), zap.Int("questions", merged.QuestionCount()))
	return &out, nil
}

func (n *Normalizer) escalate(ctx context.Context, jobID string, d Decision) (*model.Package, error) {
	if n.gen == nil {
		return nil, appErr.NewImportError(appErr.KindNormalizerUnavailable, "language model is not configured", ai.ErrUnavailable)
	}
	total := n.ledger.Charge(jobID, d.EstimatedCost)
	n.metrics.NormalizerSpend(d.EstimatedCost)
	logutil.GetLogger(ctx).Info("normalizer escalating",
		zap.String("job_id", jobID),
		zap.Float64("estimated_cost", d.EstimatedCost),
		zap.Float64("job_spend", total))

	callCtx := ctx
	if n.guard.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, n.guard.Timeout)
		defer cancel()
	}
	content, err := n.gen.Generate(callCtx, buildPrompt(d.RawText))
	if err != nil {
		return nil, appErr.NewImportError(appErr.KindNormalizerUnavailable, "language model request failed", err)
	}
	raw, err := parseStructuredJSON(content)
	if err != nil {
		return nil, appErr.NewImportError(appErr.KindSchemaValidationFailed, "language model output is not a valid structure", err)
	}
	tree, err := validateTree(raw)
	if err != nil {
		return nil, appErr.NewImportError(appErr.KindSchemaValidationFailed, "language model output is not a valid structure", err)
	}
	return tree, nil
}

// merge keeps package level fields the model left out and carries media
// over from the rule-based tree by question position.
func merge(base, tree *model.Package) *model.Package {
	out := tree.Clone()
	if base == nil {
		return out
	}
	if out.Title == "" {
		out.Title = base.Title
	}
	if out.Preamble == "" {
		out.Preamble = base.Preamble
	}
	if len(out.Editors) == 0 {
		out.Editors = append([]string(nil), base.Editors...)
	}
	out.Media = append([]string(nil), base.Media...)

	var media [][]string
	for i := range base.Tours {
		base.Tours[i].EachQuestion(func(q *model.Question) {
			media = append(media, q.Media)
		})
	}
	idx := 0
	for i := range out.Tours {
		out.Tours[i].EachQuestion(func(q *model.Question) {
			if idx < len(media) {
				q.Media = append([]string(nil), media[idx]...)
			}
			idx++
		})
	}
	for ; idx < len(media); idx++ {
		out.Media = append(out.Media, media[idx]...)
	}
	return out
}

func warning(code, msg string) model.Warning {
	return model.Warning{Code: code, Message: msg, Position: -1}
}

func lowConfidence(c float64) model.Warning {
	return warning(model.WarnLowConfidence, fmt.Sprintf("structure recognised with low confidence %.2f, review before use", c))
}
