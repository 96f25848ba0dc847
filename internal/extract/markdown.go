package extract

import (
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/xxxsen/quizpack/internal/model"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
)

func extractMarkdown(filePath string) (*Result, error) {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, appErr.NewImportError(appErr.KindTransientIO, "failed to read uploaded file", err)
	}
	source = decodeText(source)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	res := &Result{}
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindParagraph, ast.KindHeading, ast.KindTextBlock, ast.KindFencedCodeBlock, ast.KindCodeBlock:
		default:
			return ast.WalkContinue, nil
		}
		images := markdownImages(n, res)
		body := ""
		if !imageOnly(n) {
			body = strings.TrimSpace(blockText(n, source))
		}
		if body == "" && len(images) == 0 {
			return ast.WalkSkipChildren, nil
		}
		if body == "" {
			if len(res.Fragments) > 0 {
				last := &res.Fragments[len(res.Fragments)-1]
				last.Images = append(last.Images, images...)
			}
			return ast.WalkSkipChildren, nil
		}
		res.Fragments = append(res.Fragments, model.Fragment{Text: body, Images: images})
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, appErr.NewImportError(appErr.KindCorrupted, "markdown document is malformed", err)
	}
	return res, nil
}

func blockText(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return sb.String()
}

func imageOnly(n ast.Node) bool {
	seen := false
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Kind() == ast.KindImage {
			seen = true
			continue
		}
		return false
	}
	return seen
}

// markdownImages keeps remote images as references. Relative paths point
// outside the upload and cannot be resolved, so they only produce a warning.
func markdownImages(n ast.Node, res *Result) []model.Image {
	var out []model.Image
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || child.Kind() != ast.KindImage {
			return ast.WalkContinue, nil
		}
		dest := string(child.(*ast.Image).Destination)
		if !strings.HasPrefix(dest, "http://") && !strings.HasPrefix(dest, "https://") {
			res.Warnings = append(res.Warnings, model.Warning{
				Code:     model.WarnUnclassifiedMedia,
				Message:  fmt.Sprintf("local image %s is not part of the upload", dest),
				Position: len(res.Fragments),
			})
			return ast.WalkContinue, nil
		}
		if _, ok := ClassifyMedia(dest); !ok {
			res.Warnings = append(res.Warnings, model.Warning{
				Code:     model.WarnUnclassifiedMedia,
				Message:  fmt.Sprintf("image %s has an unsupported extension", dest),
				Position: len(res.Fragments),
			})
			return ast.WalkContinue, nil
		}
		out = append(out, model.Image{Name: dest})
		return ast.WalkContinue, nil
	})
	return out
}
