package model

import "strings"

type NumberingMode string

const (
	NumberingGlobal  NumberingMode = "global"
	NumberingPerTour NumberingMode = "per_tour"
	NumberingManual  NumberingMode = "manual"
)

func ParseNumberingMode(value string) (NumberingMode, bool) {
	switch NumberingMode(strings.ToLower(strings.TrimSpace(value))) {
	case NumberingGlobal:
		return NumberingGlobal, true
	case NumberingPerTour:
		return NumberingPerTour, true
	case NumberingManual:
		return NumberingManual, true
	}
	return "", false
}

type Package struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Preamble      string        `json:"preamble"`
	NumberingMode NumberingMode `json:"numbering_mode"`
	Tags          []string      `json:"tags"`
	Editors       []string      `json:"editors"`
	Media         []string      `json:"media,omitempty"`
	Tours         []Tour        `json:"tours"`
	Ctime         int64         `json:"ctime"`
	Mtime         int64         `json:"mtime"`
}

type Tour struct {
	ID         string     `json:"id"`
	PackageID  string     `json:"package_id"`
	Title      string     `json:"title"`
	Number     string     `json:"number"`
	OrderIndex int        `json:"order_index"`
	IsWarmup   bool       `json:"is_warmup"`
	Editors    []string   `json:"editors"`
	Preamble   string     `json:"preamble"`
	Blocks     []Block    `json:"blocks,omitempty"`
	Questions  []Question `json:"questions,omitempty"`
}

type Block struct {
	ID         string     `json:"id"`
	TourID     string     `json:"tour_id"`
	Title      string     `json:"title"`
	OrderIndex int        `json:"order_index"`
	Editors    []string   `json:"editors"`
	Preamble   string     `json:"preamble,omitempty"`
	Questions  []Question `json:"questions"`
}

type Question struct {
	ID               string   `json:"id"`
	TourID           string   `json:"tour_id"`
	BlockID          string   `json:"block_id,omitempty"`
	Number           string   `json:"number"`
	OrderIndex       int      `json:"order_index"`
	Text             string   `json:"text"`
	Answer           string   `json:"answer"`
	Accepted         string   `json:"accepted,omitempty"`
	Rejected         string   `json:"rejected,omitempty"`
	Comment          string   `json:"comment,omitempty"`
	Source           string   `json:"source,omitempty"`
	Authors          []string `json:"authors,omitempty"`
	HostInstructions string   `json:"host_instructions,omitempty"`
	Handout          string   `json:"handout,omitempty"`
	Media            []string `json:"media,omitempty"`
}

// HasBlocks reports whether questions live in blocks rather than directly on the tour.
func (t *Tour) HasBlocks() bool {
	return len(t.Blocks) > 0
}

// QuestionCount counts questions whether they sit on the tour or in its blocks.
func (t *Tour) QuestionCount() int {
	if !t.HasBlocks() {
		return len(t.Questions)
	}
	total := 0
	for _, b := range t.Blocks {
		total += len(b.Questions)
	}
	return total
}

// EachQuestion walks questions in display order.
func (t *Tour) EachQuestion(fn func(q *Question)) {
	if !t.HasBlocks() {
		for i := range t.Questions {
			fn(&t.Questions[i])
		}
		return
	}
	for i := range t.Blocks {
		for j := range t.Blocks[i].Questions {
			fn(&t.Blocks[i].Questions[j])
		}
	}
}

func (p *Package) QuestionCount() int {
	total := 0
	for i := range p.Tours {
		total += p.Tours[i].QuestionCount()
	}
	return total
}

// WarmupIndex returns the slice index of the warm-up tour or -1.
func (p *Package) WarmupIndex() int {
	for i := range p.Tours {
		if p.Tours[i].IsWarmup {
			return i
		}
	}
	return -1
}

func (p *Package) FindTour(tourID string) int {
	for i := range p.Tours {
		if p.Tours[i].ID == tourID {
			return i
		}
	}
	return -1
}

// AllEditors collects package, tour and block editors without duplicates.
func (p *Package) AllEditors() []string {
	seen := make(map[string]bool)
	result := make([]string, 0)
	add := func(names []string) {
		for _, name := range names {
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			result = append(result, strings.TrimSpace(name))
		}
	}
	add(p.Editors)
	for _, t := range p.Tours {
		add(t.Editors)
		for _, b := range t.Blocks {
			add(b.Editors)
		}
	}
	return result
}

func (p *Package) Clone() *Package {
	if p == nil {
		return nil
	}
	out := *p
	out.Tags = cloneStrings(p.Tags)
	out.Editors = cloneStrings(p.Editors)
	out.Media = cloneStrings(p.Media)
	out.Tours = make([]Tour, len(p.Tours))
	for i := range p.Tours {
		out.Tours[i] = p.Tours[i].Clone()
	}
	return &out
}

func (t Tour) Clone() Tour {
	out := t
	out.Editors = cloneStrings(t.Editors)
	out.Questions = cloneQuestions(t.Questions)
	if t.Blocks != nil {
		out.Blocks = make([]Block, len(t.Blocks))
		for i, b := range t.Blocks {
			nb := b
			nb.Editors = cloneStrings(b.Editors)
			nb.Questions = cloneQuestions(b.Questions)
			out.Blocks[i] = nb
		}
	}
	return out
}

func (q Question) Clone() Question {
	out := q
	out.Authors = cloneStrings(q.Authors)
	out.Media = cloneStrings(q.Media)
	return out
}

func cloneQuestions(src []Question) []Question {
	if src == nil {
		return nil
	}
	out := make([]Question, len(src))
	for i := range src {
		out[i] = src[i].Clone()
	}
	return out
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
