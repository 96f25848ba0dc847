package parser

import (
	"fmt"
	"strings"

	"github.com/xxxsen/quizpack/internal/classify"
	"github.com/xxxsen/quizpack/internal/model"
)

// preambleSuspiciousLines is how many unmatched lines a tour or block may
// collect before its first question without being flagged.
const preambleSuspiciousLines = 3

type Result struct {
	Package    *model.Package
	Confidence float64
	Warnings   []model.Warning
	RawText    string
}

type Parser struct {
	classifier *classify.Classifier
	weights    Weights
}

type Option func(p *Parser)

func WithWeights(w Weights) Option {
	return func(p *Parser) {
		p.weights = w
	}
}

func New(c *classify.Classifier, opts ...Option) *Parser {
	if c == nil {
		c = classify.New(nil)
	}
	p := &Parser{classifier: c, weights: DefaultWeights()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type sinkKind int

const (
	sinkPackage sinkKind = iota
	sinkTour
	sinkQuestionText
	sinkField
	sinkAuthors
)

type state struct {
	c   *classify.Classifier
	pkg *model.Package

	tourIdx  int
	blockIdx int
	qIdx     int

	sink      sinkKind
	field     classify.FieldKind
	inHandout bool
	pos       int

	titleSet        bool
	preambleLines   int
	preambleFlagged bool

	// fragment position of every question, in creation order
	questionPos []int
	suspicious  int
	warnings    []model.Warning
}

// Parse builds a draft tree from fragments. It never fails; problems are
// reported as warnings and reflected in the confidence score.
func (p *Parser) Parse(fragments []model.Fragment) *Result {
	st := &state{
		c:        p.classifier.Snapshot(),
		pkg:      &model.Package{},
		tourIdx:  -1,
		blockIdx: -1,
		qIdx:     -1,
	}
	raw := make([]string, 0, len(fragments))
	for _, frag := range fragments {
		st.pos = frag.Position
		raw = append(raw, frag.Text)
		for _, line := range strings.Split(frag.Text, "\n") {
			st.consume(line)
		}
		st.attachImages(frag.Images)
	}
	if st.inHandout {
		st.suspicious++
		st.warn(model.WarnUnclosedHandout, "handout was not closed before end of document")
	}
	mode, ambiguous := DetectMode(st.pkg)
	st.pkg.NumberingMode = mode
	if ambiguous {
		st.warnAt(model.WarnAmbiguousNumbering, "question numbers are neither continuous nor restarting per tour, manual numbering kept", -1)
	}
	confidence := p.score(st)
	return &Result{
		Package:    st.pkg,
		Confidence: confidence,
		Warnings:   st.warnings,
		RawText:    strings.Join(raw, "\n\n"),
	}
}

func (st *state) warn(code, msg string) {
	st.warnAt(code, msg, st.pos)
}

func (st *state) warnAt(code, msg string, pos int) {
	st.warnings = append(st.warnings, model.Warning{Code: code, Message: msg, Position: pos})
}

func (st *state) tour() *model.Tour {
	if st.tourIdx < 0 {
		return nil
	}
	return &st.pkg.Tours[st.tourIdx]
}

func (st *state) block() *model.Block {
	t := st.tour()
	if t == nil || st.blockIdx < 0 {
		return nil
	}
	return &t.Blocks[st.blockIdx]
}

func (st *state) question() *model.Question {
	if st.qIdx < 0 {
		return nil
	}
	if b := st.block(); b != nil {
		return &b.Questions[st.qIdx]
	}
	return &st.tour().Questions[st.qIdx]
}

func (st *state) consume(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	if st.inHandout {
		if value, ok := st.c.HandoutEnd(trimmed); ok {
			st.appendHandout(value)
			st.inHandout = false
			st.sink = sinkQuestionText
			return
		}
		m := st.c.Classify(trimmed)
		if !closesHandout(m) {
			st.appendHandout(trimmed)
			return
		}
		// a missing bracket must not swallow the rest of the document
		st.inHandout = false
		st.suspicious++
		st.warn(model.WarnUnclosedHandout, fmt.Sprintf("handout closed implicitly before %q", trimmed))
		st.dispatch(m, trimmed)
		return
	}
	st.dispatch(st.c.Classify(trimmed), trimmed)
}

// closesHandout reports whether a line inside an open handout starts new
// structure rather than continuing the handout.
func closesHandout(m classify.Marker) bool {
	switch m.Kind {
	case classify.TourStart, classify.WarmupStart, classify.BlockStart, classify.QuestionStart:
		return true
	case classify.FieldLabel:
		return m.Field != classify.FieldHandout
	}
	return false
}

func (st *state) dispatch(m classify.Marker, trimmed string) {
	switch m.Kind {
	case classify.WarmupStart:
		if st.pkg.WarmupIndex() >= 0 {
			st.warn(model.WarnDuplicateWarmup, fmt.Sprintf("second warm-up %q treated as a regular tour", trimmed))
			st.openTour(trimmed, "", false)
			return
		}
		st.openTour(trimmed, "0", true)
	case classify.TourStart:
		title := trimmed
		if m.Name != "" {
			title = m.Name
		}
		st.openTour(title, m.Number, false)
	case classify.BlockStart:
		st.openBlock(m.Name)
	case classify.QuestionStart:
		st.openQuestion(m.Number, m.Value)
	case classify.FieldLabel:
		st.setField(m, trimmed)
	case classify.HandoutOpen:
		st.openHandout(m.Value, trimmed)
	default:
		st.appendText(trimmed)
	}
}

func (st *state) openTour(title, number string, warmup bool) {
	st.pkg.Tours = append(st.pkg.Tours, model.Tour{
		Title:      title,
		Number:     number,
		OrderIndex: len(st.pkg.Tours),
		IsWarmup:   warmup,
	})
	st.tourIdx = len(st.pkg.Tours) - 1
	st.blockIdx = -1
	st.qIdx = -1
	st.sink = sinkTour
	st.preambleLines = 0
	st.preambleFlagged = false
}

func (st *state) ensureTour() {
	if st.tour() != nil {
		return
	}
	st.warn(model.WarnImplicitTour, "content found before the first tour heading, implicit tour opened")
	st.openTour("", "1", false)
}

func (st *state) openBlock(title string) {
	st.ensureTour()
	t := st.tour()
	if !t.HasBlocks() && len(t.Questions) > 0 {
		// questions that preceded the first block heading keep their order
		// inside a leading untitled block
		lead := model.Block{Questions: t.Questions}
		t.Questions = nil
		t.Blocks = append(t.Blocks, lead)
	}
	t.Blocks = append(t.Blocks, model.Block{
		Title:      title,
		OrderIndex: len(t.Blocks),
	})
	st.blockIdx = len(t.Blocks) - 1
	st.qIdx = -1
	st.sink = sinkTour
	st.preambleLines = 0
	st.preambleFlagged = false
}

func (st *state) openQuestion(number, text string) {
	st.ensureTour()
	q := model.Question{Number: number, Text: text}
	if b := st.block(); b != nil {
		q.OrderIndex = len(b.Questions)
		b.Questions = append(b.Questions, q)
		st.qIdx = len(b.Questions) - 1
	} else {
		t := st.tour()
		q.OrderIndex = len(t.Questions)
		t.Questions = append(t.Questions, q)
		st.qIdx = len(t.Questions) - 1
	}
	st.questionPos = append(st.questionPos, st.pos)
	st.sink = sinkQuestionText
}

func (st *state) setField(m classify.Marker, line string) {
	switch m.Field {
	case classify.FieldEditors:
		// editors belong to the innermost container; the text sink is left alone
		st.addEditors(m.Value)
		return
	case classify.FieldAuthors:
		if q := st.question(); q != nil {
			q.Authors = append(q.Authors, SplitNames(m.Value)...)
			st.sink = sinkAuthors
			return
		}
	default:
		if q := st.question(); q != nil {
			setQuestionField(q, m.Field, m.Value)
			st.sink = sinkField
			st.field = m.Field
			return
		}
	}
	st.suspicious++
	st.warn(model.WarnSuspiciousText, fmt.Sprintf("%s label outside of a question", m.Field))
	st.appendText(line)
}

func (st *state) addEditors(value string) {
	names := SplitNames(value)
	switch {
	case st.block() != nil:
		b := st.block()
		b.Editors = append(b.Editors, names...)
	case st.tour() != nil:
		t := st.tour()
		t.Editors = append(t.Editors, names...)
	default:
		st.pkg.Editors = append(st.pkg.Editors, names...)
	}
}

func (st *state) openHandout(value, line string) {
	q := st.question()
	if q == nil {
		st.suspicious++
		st.warn(model.WarnSuspiciousText, "handout outside of a question")
		st.appendText(line)
		return
	}
	if closed, ok := st.c.HandoutEnd(value); ok {
		q.Handout = joinText(q.Handout, closed)
		return
	}
	q.Handout = joinText(q.Handout, value)
	st.inHandout = true
}

func (st *state) appendHandout(text string) {
	if q := st.question(); q != nil {
		q.Handout = joinText(q.Handout, text)
	}
}

func (st *state) appendText(text string) {
	switch st.sink {
	case sinkPackage:
		if !st.titleSet {
			st.pkg.Title = text
			st.titleSet = true
			return
		}
		st.pkg.Preamble = joinText(st.pkg.Preamble, text)
	case sinkTour:
		t := st.tour()
		if t == nil {
			st.pkg.Preamble = joinText(st.pkg.Preamble, text)
			return
		}
		if b := st.block(); b != nil {
			b.Preamble = joinText(b.Preamble, text)
		} else {
			t.Preamble = joinText(t.Preamble, text)
		}
		st.preambleLines++
		if st.preambleLines > preambleSuspiciousLines && !st.preambleFlagged {
			st.preambleFlagged = true
			st.suspicious++
			st.warn(model.WarnSuspiciousText, "long unlabelled text after a heading, a question marker may have been missed")
		}
	case sinkQuestionText:
		q := st.question()
		q.Text = joinText(q.Text, text)
	case sinkField:
		q := st.question()
		setQuestionField(q, st.field, joinText(questionField(q, st.field), text))
	case sinkAuthors:
		q := st.question()
		q.Authors = append(q.Authors, SplitNames(text)...)
	}
}

func (st *state) attachImages(images []model.Image) {
	if len(images) == 0 {
		return
	}
	q := st.question()
	for _, img := range images {
		if q != nil {
			q.Media = append(q.Media, img.Name)
			continue
		}
		st.pkg.Media = append(st.pkg.Media, img.Name)
		st.warn(model.WarnOrphanMedia, fmt.Sprintf("media %s is not inside a question", img.Name))
	}
}

func joinText(current, next string) string {
	if current == "" {
		return next
	}
	if next == "" {
		return current
	}
	return current + "\n" + next
}

func questionField(q *model.Question, field classify.FieldKind) string {
	switch field {
	case classify.FieldAnswer:
		return q.Answer
	case classify.FieldAccepted:
		return q.Accepted
	case classify.FieldRejected:
		return q.Rejected
	case classify.FieldComment:
		return q.Comment
	case classify.FieldSource:
		return q.Source
	case classify.FieldHostInstructions:
		return q.HostInstructions
	case classify.FieldHandout:
		return q.Handout
	}
	return ""
}

func setQuestionField(q *model.Question, field classify.FieldKind, value string) {
	switch field {
	case classify.FieldAnswer:
		q.Answer = value
	case classify.FieldAccepted:
		q.Accepted = value
	case classify.FieldRejected:
		q.Rejected = value
	case classify.FieldComment:
		q.Comment = value
	case classify.FieldSource:
		q.Source = value
	case classify.FieldHostInstructions:
		q.HostInstructions = value
	case classify.FieldHandout:
		q.Handout = value
	}
}
