package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/quizpack/internal/model"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
)

const DefaultMaxSize = 50 * 1024 * 1024

var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// supportedExts is checked at the upload boundary before any job is created.
var supportedExts = map[string]bool{
	".docx": true,
	".txt":  true,
	".md":   true,
}

func IsSupportedExt(name string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(name))]
}

type Source struct {
	Path string
	Name string
}

type Result struct {
	Fragments []model.Fragment
	Warnings  []model.Warning
}

type Extractor struct {
	maxSize int64
}

func New(maxSize int64) *Extractor {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Extractor{maxSize: maxSize}
}

// Extract converts the source document into fragments in document order.
// Embedded media is written into workDir.
func (e *Extractor) Extract(ctx context.Context, src Source, workDir string) (*Result, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("file", src.Name))
	ext := strings.ToLower(filepath.Ext(src.Name))
	if !supportedExts[ext] {
		if ext == ".doc" || ext == ".rtf" || ext == ".odt" || ext == ".pdf" {
			return nil, appErr.NewImportError(appErr.KindUnsupportedFormat, fmt.Sprintf("%s documents are not supported", ext), nil)
		}
		return nil, appErr.NewImportError(appErr.KindUnsupportedFormat, "unsupported file extension", nil)
	}
	info, err := os.Stat(src.Path)
	if err != nil {
		return nil, appErr.NewImportError(appErr.KindTransientIO, "failed to read uploaded file", err)
	}
	if info.Size() > e.maxSize {
		return nil, appErr.NewImportError(appErr.KindTooLarge, fmt.Sprintf("document exceeds %d bytes", e.maxSize), nil)
	}
	if info.Size() == 0 {
		return nil, appErr.NewImportError(appErr.KindCorrupted, "document is empty", nil)
	}
	header, err := readHeader(src.Path, 3072)
	if err != nil {
		return nil, appErr.NewImportError(appErr.KindTransientIO, "failed to read uploaded file", err)
	}
	mtype := mimetype.Detect(header)
	logger.Debug("document format detected", zap.String("mime", mtype.String()), zap.Int64("size", info.Size()))

	var res *Result
	switch ext {
	case ".docx":
		if bytes.HasPrefix(header, oleMagic) {
			return nil, appErr.NewImportError(appErr.KindPasswordProtected, "document is password protected", nil)
		}
		if !isZip(mtype) {
			return nil, appErr.NewImportError(appErr.KindCorrupted, "document is not a valid docx container", nil)
		}
		res, err = extractDocx(ctx, src.Path, workDir, e.maxSize*docxExpandRatio)
	case ".md":
		if !isText(mtype) {
			return nil, appErr.NewImportError(appErr.KindCorrupted, "markdown file is not text", nil)
		}
		res, err = extractMarkdown(src.Path)
	case ".txt":
		if !isText(mtype) {
			return nil, appErr.NewImportError(appErr.KindCorrupted, "text file is not text", nil)
		}
		res, err = extractText(src.Path)
	}
	if err != nil {
		return nil, err
	}
	if len(res.Fragments) == 0 {
		return nil, appErr.NewImportError(appErr.KindCorrupted, "document has no text", nil)
	}
	for i := range res.Fragments {
		res.Fragments[i].Position = i
	}
	logger.Info("document extracted", zap.Int("fragments", len(res.Fragments)), zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

func readHeader(path string, limit int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, limit)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func isZip(m *mimetype.MIME) bool {
	for cur := m; cur != nil; cur = cur.Parent() {
		if cur.Is("application/zip") {
			return true
		}
	}
	return false
}

func isText(m *mimetype.MIME) bool {
	for cur := m; cur != nil; cur = cur.Parent() {
		if cur.Is("text/plain") {
			return true
		}
	}
	return false
}
