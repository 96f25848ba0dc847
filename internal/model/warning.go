package model

const (
	WarnLowConfidence      = "low_confidence"
	WarnMissingAnswer      = "missing_answer"
	WarnMissingText        = "missing_text"
	WarnSuspiciousText     = "suspicious_text"
	WarnAmbiguousNumbering = "ambiguous_numbering"
	WarnDuplicateWarmup    = "duplicate_warmup"
	WarnImplicitTour       = "implicit_tour"
	WarnOrphanMedia        = "orphan_media"
	WarnUnclassifiedMedia  = "unclassified_media"
	WarnUnclosedHandout    = "unclosed_handout"
	WarnNormalizerBudget   = "normalizer_budget"
	WarnNormalizerFailed   = "normalizer_failed"
	WarnNormalizerRejected = "normalizer_rejected"
	WarnNormalizerApplied  = "normalizer_applied"
)

// Warning is kept on a finished job for operator review. It never fails a job.
type Warning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Position int    `json:"position"`
}
