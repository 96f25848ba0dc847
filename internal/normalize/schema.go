package normalize

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/xxxsen/quizpack/internal/model"
	"github.com/xxxsen/quizpack/internal/parser"
)

//go:embed schema.json
var schemaJSON string

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func treeSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("tree.json", strings.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("load tree schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("tree.json")
	})
	return compiledSchema, compileErr
}

type treeDoc struct {
	Title    string    `json:"title"`
	Preamble string    `json:"preamble"`
	Editors  []string  `json:"editors"`
	Tours    []tourDoc `json:"tours"`
}

type tourDoc struct {
	Title     string        `json:"title"`
	Warmup    bool          `json:"warmup"`
	Editors   []string      `json:"editors"`
	Preamble  string        `json:"preamble"`
	Blocks    []blockDoc    `json:"blocks"`
	Questions []questionDoc `json:"questions"`
}

type blockDoc struct {
	Title     string        `json:"title"`
	Editors   []string      `json:"editors"`
	Questions []questionDoc `json:"questions"`
}

type questionDoc struct {
	Number           json.RawMessage `json:"number"`
	Text             string          `json:"text"`
	Answer           string          `json:"answer"`
	Accepted         string          `json:"accepted"`
	Rejected         string          `json:"rejected"`
	Comment          string          `json:"comment"`
	Source           string          `json:"source"`
	Authors          []string        `json:"authors"`
	HostInstructions string          `json:"host_instructions"`
	Handout          string          `json:"handout"`
}

// validateTree checks parsed model output against the tree schema and the
// rules the schema cannot express, then converts it.
func validateTree(raw json.RawMessage) (*model.Package, error) {
	schema, err := treeSchema()
	if err != nil {
		return nil, err
	}
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("model output does not match schema: %w", err)
	}
	var tree treeDoc
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return convertTree(&tree)
}

func convertTree(tree *treeDoc) (*model.Package, error) {
	pkg := &model.Package{
		Title:    strings.TrimSpace(tree.Title),
		Preamble: strings.TrimSpace(tree.Preamble),
		Editors:  trimNames(tree.Editors),
	}
	warmups := 0
	for i, td := range tree.Tours {
		if len(td.Blocks) > 0 && len(td.Questions) > 0 {
			return nil, fmt.Errorf("tour %d mixes blocks and questions", i)
		}
		tour := model.Tour{
			Title:      strings.TrimSpace(td.Title),
			OrderIndex: i,
			IsWarmup:   td.Warmup,
			Editors:    trimNames(td.Editors),
			Preamble:   strings.TrimSpace(td.Preamble),
		}
		if td.Warmup {
			warmups++
			if warmups > 1 {
				return nil, fmt.Errorf("more than one warm-up tour")
			}
		}
		qs, err := convertQuestions(td.Questions)
		if err != nil {
			return nil, fmt.Errorf("tour %d: %w", i, err)
		}
		tour.Questions = qs
		for j, bd := range td.Blocks {
			bqs, err := convertQuestions(bd.Questions)
			if err != nil {
				return nil, fmt.Errorf("tour %d block %d: %w", i, j, err)
			}
			tour.Blocks = append(tour.Blocks, model.Block{
				Title:      strings.TrimSpace(bd.Title),
				OrderIndex: j,
				Editors:    trimNames(bd.Editors),
				Questions:  bqs,
			})
		}
		if tour.QuestionCount() == 0 {
			return nil, fmt.Errorf("tour %d has no questions", i)
		}
		pkg.Tours = append(pkg.Tours, tour)
	}
	return pkg, nil
}

func convertQuestions(docs []questionDoc) ([]model.Question, error) {
	var out []model.Question
	for i, qd := range docs {
		number, err := questionNumber(qd.Number)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		q := model.Question{
			Number:           number,
			OrderIndex:       i,
			Text:             strings.TrimSpace(qd.Text),
			Answer:           strings.TrimSpace(qd.Answer),
			Accepted:         strings.TrimSpace(qd.Accepted),
			Rejected:         strings.TrimSpace(qd.Rejected),
			Comment:          strings.TrimSpace(qd.Comment),
			Source:           strings.TrimSpace(qd.Source),
			Authors:          trimNames(qd.Authors),
			HostInstructions: strings.TrimSpace(qd.HostInstructions),
			Handout:          strings.TrimSpace(qd.Handout),
		}
		if q.Text == "" || q.Answer == "" {
			return nil, fmt.Errorf("question %s lacks text or answer", number)
		}
		out = append(out, q)
	}
	return out, nil
}

func questionNumber(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", fmt.Errorf("empty number")
		}
		return s, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("number is neither string nor integer")
	}
	return strconv.FormatInt(n, 10), nil
}

func trimNames(names []string) []string {
	var out []string
	for _, name := range names {
		out = append(out, parser.SplitNames(name)...)
	}
	return out
}

// parseStructuredJSON parses JSON from model output, recovering from code
// fences and chatter around the object.
func parseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty model output")
	}
	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractObject(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}
	for _, candidate := range candidates {
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, fmt.Errorf("model output is not JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}
