package classify

type Kind int

const (
	NoMatch Kind = iota
	TourStart
	WarmupStart
	BlockStart
	QuestionStart
	FieldLabel
	HandoutOpen
)

func (k Kind) String() string {
	switch k {
	case TourStart:
		return "tour_start"
	case WarmupStart:
		return "warmup_start"
	case BlockStart:
		return "block_start"
	case QuestionStart:
		return "question_start"
	case FieldLabel:
		return "field_label"
	case HandoutOpen:
		return "handout_open"
	}
	return "no_match"
}

type FieldKind string

const (
	FieldAnswer           FieldKind = "answer"
	FieldAccepted         FieldKind = "accepted"
	FieldRejected         FieldKind = "rejected"
	FieldComment          FieldKind = "comment"
	FieldSource           FieldKind = "source"
	FieldAuthors          FieldKind = "authors"
	FieldEditors          FieldKind = "editors"
	FieldHostInstructions FieldKind = "host_instructions"
	FieldHandout          FieldKind = "handout"
)

// FieldOrder is the fixed priority in which field label categories are tried.
var FieldOrder = []FieldKind{
	FieldAnswer,
	FieldAccepted,
	FieldRejected,
	FieldComment,
	FieldSource,
	FieldAuthors,
	FieldEditors,
	FieldHostInstructions,
	FieldHandout,
}

// Marker is the structural meaning of one line.
// Number and Name carry tour/block/question captures, Value the inline text after a label.
type Marker struct {
	Kind   Kind
	Rule   string
	Number string
	Name   string
	Field  FieldKind
	Value  string
}
