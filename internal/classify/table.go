package classify

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule is one vocabulary entry. Patterns may capture the named groups
// "number", "name" and "value"; everything else is ignored.
type Rule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// TableSpec is the on-disk shape of a vocabulary table.
type TableSpec struct {
	Warmup       []Rule               `yaml:"warmup"`
	Tour         []Rule               `yaml:"tour"`
	Block        []Rule               `yaml:"block"`
	Question     []Rule               `yaml:"question"`
	HandoutOpen  []Rule               `yaml:"handout_open"`
	HandoutClose []Rule               `yaml:"handout_close"`
	Fields       map[FieldKind][]Rule `yaml:"fields"`
}

// Capture holds the named groups of a successful match.
type Capture map[string]string

// Matcher tests one line and returns its captures on success.
type Matcher struct {
	Name  string
	Match func(line string) (Capture, bool)
}

type category struct {
	kind     Kind
	field    FieldKind
	matchers []Matcher
}

// Table is a compiled vocabulary. Categories are kept in priority order.
type Table struct {
	categories   []category
	handoutClose []Matcher
}

func regexpMatcher(rule Rule) (Matcher, error) {
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return Matcher{}, fmt.Errorf("compile rule %q: %w", rule.Name, err)
	}
	names := re.SubexpNames()
	return Matcher{
		Name: rule.Name,
		Match: func(line string) (Capture, bool) {
			sub := re.FindStringSubmatch(line)
			if sub == nil {
				return nil, false
			}
			capture := Capture{}
			for i, name := range names {
				if name == "" || i >= len(sub) {
					continue
				}
				capture[name] = strings.TrimSpace(sub[i])
			}
			return capture, true
		},
	}, nil
}

func compileRules(rules []Rule) ([]Matcher, error) {
	out := make([]Matcher, 0, len(rules))
	for _, rule := range rules {
		m, err := regexpMatcher(rule)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Compile builds a Table. Category priority is fixed regardless of spec order:
// warm-up, tour, block, question, handout open, then field labels in FieldOrder.
func Compile(spec TableSpec) (*Table, error) {
	t := &Table{}
	plain := []struct {
		kind  Kind
		rules []Rule
	}{
		{WarmupStart, spec.Warmup},
		{TourStart, spec.Tour},
		{BlockStart, spec.Block},
		{QuestionStart, spec.Question},
		{HandoutOpen, spec.HandoutOpen},
	}
	for _, item := range plain {
		matchers, err := compileRules(item.rules)
		if err != nil {
			return nil, err
		}
		t.categories = append(t.categories, category{kind: item.kind, matchers: matchers})
	}
	for _, field := range FieldOrder {
		matchers, err := compileRules(spec.Fields[field])
		if err != nil {
			return nil, err
		}
		t.categories = append(t.categories, category{kind: FieldLabel, field: field, matchers: matchers})
	}
	closers, err := compileRules(spec.HandoutClose)
	if err != nil {
		return nil, err
	}
	t.handoutClose = closers
	return t, nil
}

// Merge overlays the categories named in override onto base.
func Merge(base, override TableSpec) TableSpec {
	out := base
	if len(override.Warmup) > 0 {
		out.Warmup = override.Warmup
	}
	if len(override.Tour) > 0 {
		out.Tour = override.Tour
	}
	if len(override.Block) > 0 {
		out.Block = override.Block
	}
	if len(override.Question) > 0 {
		out.Question = override.Question
	}
	if len(override.HandoutOpen) > 0 {
		out.HandoutOpen = override.HandoutOpen
	}
	if len(override.HandoutClose) > 0 {
		out.HandoutClose = override.HandoutClose
	}
	out.Fields = make(map[FieldKind][]Rule, len(base.Fields))
	for k, v := range base.Fields {
		out.Fields[k] = v
	}
	for k, v := range override.Fields {
		if len(v) > 0 {
			out.Fields[k] = v
		}
	}
	return out
}

// LoadTable reads a YAML vocabulary and overlays it on the default one.
// An empty path returns the default table.
func LoadTable(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern table: %w", err)
	}
	var spec TableSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("decode pattern table: %w", err)
	}
	return Compile(Merge(DefaultSpec(), spec))
}
