package extract

import (
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/xxxsen/quizpack/internal/model"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
)

func extractText(filePath string) (*Result, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, appErr.NewImportError(appErr.KindTransientIO, "failed to read uploaded file", err)
	}
	content := strings.ReplaceAll(string(decodeText(data)), "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	res := &Result{}
	var para []string
	flush := func() {
		if len(para) == 0 {
			return
		}
		res.Fragments = append(res.Fragments, model.Fragment{Text: strings.Join(para, "\n")})
		para = nil
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		para = append(para, trimmed)
	}
	flush()
	return res, nil
}

// decodeText strips a UTF-8 BOM and falls back to Windows-1251, the usual
// encoding of older Russian exports, when the bytes are not valid UTF-8.
func decodeText(data []byte) []byte {
	data = []byte(strings.TrimPrefix(string(data), "\ufeff"))
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.Windows1251.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}
