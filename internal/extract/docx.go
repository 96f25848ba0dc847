package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xxxsen/quizpack/internal/model"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
)

const (
	docxDocumentPart = "word/document.xml"
	docxRelsPart     = "word/_rels/document.xml.rels"

	// docxExpandRatio bounds how far the container may inflate relative to
	// the upload size limit.
	docxExpandRatio = 8
)

var errDocxExpanded = appErr.NewImportError(appErr.KindTooLarge, "document expands beyond the size limit", nil)

// budgetReader fails once the decompression budget shared by all parts is
// spent.
type budgetReader struct {
	r      io.Reader
	budget *int64
}

func (b *budgetReader) Read(p []byte) (int, error) {
	if *b.budget <= 0 {
		var one [1]byte
		n, err := b.r.Read(one[:])
		if n > 0 {
			return 0, errDocxExpanded
		}
		return 0, err
	}
	if int64(len(p)) > *b.budget {
		p = p[:*b.budget]
	}
	n, err := b.r.Read(p)
	*b.budget -= int64(n)
	return n, err
}

type relationship struct {
	ID         string `xml:"Id,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr"`
}

type relationships struct {
	Items []relationship `xml:"Relationship"`
}

type docxReader struct {
	ctx      context.Context
	zr       *zip.ReadCloser
	files    map[string]*zip.File
	rels     map[string]string
	workDir  string
	written  map[string]model.Image
	res      *Result
	pending  []model.Image
	paraText strings.Builder
	paraImgs []model.Image
	budget   int64
}

func extractDocx(ctx context.Context, filePath, workDir string, limit int64) (*Result, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, appErr.NewImportError(appErr.KindCorrupted, "docx container is broken", err)
	}
	defer zr.Close()
	r := &docxReader{
		ctx:     ctx,
		zr:      zr,
		files:   make(map[string]*zip.File, len(zr.File)),
		rels:    map[string]string{},
		workDir: workDir,
		written: map[string]model.Image{},
		res:     &Result{},
		budget:  limit,
	}
	for _, f := range zr.File {
		r.files[f.Name] = f
	}
	if err := r.loadRels(); err != nil {
		return nil, err
	}
	if err := r.walkDocument(); err != nil {
		return nil, err
	}
	return r.res, nil
}

func (r *docxReader) readPart(name string) ([]byte, error) {
	f, ok := r.files[name]
	if !ok {
		return nil, appErr.NewImportError(appErr.KindCorrupted, fmt.Sprintf("docx part %s is missing", name), nil)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, appErr.NewImportError(appErr.KindCorrupted, fmt.Sprintf("open docx part %s", name), err)
	}
	defer rc.Close()
	data, err := io.ReadAll(r.limit(rc))
	if errors.Is(err, errDocxExpanded) {
		return nil, err
	}
	if err != nil {
		return nil, appErr.NewImportError(appErr.KindCorrupted, fmt.Sprintf("read docx part %s", name), err)
	}
	return data, nil
}

func (r *docxReader) limit(rc io.Reader) io.Reader {
	return &budgetReader{r: rc, budget: &r.budget}
}

func (r *docxReader) loadRels() error {
	if _, ok := r.files[docxRelsPart]; !ok {
		return nil
	}
	data, err := r.readPart(docxRelsPart)
	if err != nil {
		return err
	}
	var rels relationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return appErr.NewImportError(appErr.KindCorrupted, "docx relationships are malformed", err)
	}
	for _, rel := range rels.Items {
		if strings.EqualFold(rel.TargetMode, "External") {
			continue
		}
		r.rels[rel.ID] = path.Clean(path.Join("word", rel.Target))
	}
	return nil
}

func (r *docxReader) walkDocument() error {
	f, ok := r.files[docxDocumentPart]
	if !ok {
		return appErr.NewImportError(appErr.KindCorrupted, "docx main document is missing", nil)
	}
	rc, err := f.Open()
	if err != nil {
		return appErr.NewImportError(appErr.KindCorrupted, "open docx main document", err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(r.limit(rc))
	inText := false
	// text boxes nest paragraphs inside paragraphs; only the outermost one
	// produces a fragment
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, errDocxExpanded) {
			return err
		}
		if err != nil {
			return appErr.NewImportError(appErr.KindCorrupted, "docx main document is malformed", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "pPr", "instrText", "delText":
				if err := dec.Skip(); err != nil {
					return appErr.NewImportError(appErr.KindCorrupted, "docx main document is malformed", err)
				}
			case "p":
				if depth > 0 {
					r.paraText.WriteByte('\n')
				}
				depth++
			case "t":
				inText = true
			case "tab":
				r.paraText.WriteByte('\t')
			case "br", "cr":
				r.paraText.WriteByte('\n')
			case "blip":
				if err := r.addMedia(attrValue(t, "embed")); err != nil {
					return err
				}
			case "imagedata":
				if err := r.addMedia(attrValue(t, "id")); err != nil {
					return err
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				depth--
				if depth == 0 {
					r.flushParagraph()
				}
			}
		case xml.CharData:
			if inText {
				r.paraText.Write(t)
			}
		}
	}
	if len(r.pending) > 0 && len(r.res.Fragments) > 0 {
		last := &r.res.Fragments[len(r.res.Fragments)-1]
		last.Images = append(last.Images, r.pending...)
		r.pending = nil
	}
	return nil
}

func (r *docxReader) flushParagraph() {
	text := strings.TrimSpace(r.paraText.String())
	imgs := r.paraImgs
	r.paraText.Reset()
	r.paraImgs = nil
	if text == "" {
		r.pending = append(r.pending, imgs...)
		return
	}
	frag := model.Fragment{Text: text}
	frag.Images = append(frag.Images, r.pending...)
	frag.Images = append(frag.Images, imgs...)
	r.pending = nil
	r.res.Fragments = append(r.res.Fragments, frag)
}

func (r *docxReader) addMedia(relID string) error {
	if relID == "" {
		return nil
	}
	if err := r.ctx.Err(); err != nil {
		return err
	}
	target, ok := r.rels[relID]
	if !ok {
		return nil
	}
	if img, ok := r.written[target]; ok {
		if img.Name != "" {
			r.paraImgs = append(r.paraImgs, img)
		}
		return nil
	}
	if _, ok := ClassifyMedia(target); !ok {
		r.res.Warnings = append(r.res.Warnings, model.Warning{
			Code:     model.WarnUnclassifiedMedia,
			Message:  fmt.Sprintf("embedded file %s skipped", path.Base(target)),
			Position: len(r.res.Fragments),
		})
		r.written[target] = model.Image{}
		return nil
	}
	data, err := r.readPart(target)
	if err != nil {
		return err
	}
	img, err := writeMedia(r.workDir, target, data)
	if err != nil {
		return appErr.NewImportError(appErr.KindTransientIO, "failed to store embedded media", err)
	}
	r.written[target] = img
	r.paraImgs = append(r.paraImgs, img)
	return nil
}

func attrValue(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
