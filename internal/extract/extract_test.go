package extract

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

const testDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
 xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"
 xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
<w:body>
<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr><w:r><w:t>Тур 1</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Вопрос 1. </w:t></w:r><w:r><w:t>Кто это?</w:t></w:r><w:r><w:br/><w:t>Вторая строка</w:t></w:r></w:p>
<w:p><w:r><w:drawing><a:graphic><a:graphicData><a:blip r:embed="rId5"/></a:graphicData></a:graphic></w:drawing></w:r></w:p>
<w:p><w:r><w:t>Ответ: Наполеон.</w:t></w:r></w:p>
<w:p><w:r><w:drawing><a:blip r:embed="rId6"/></w:drawing></w:r><w:r><w:t>Комментарий: с картинкой.</w:t></w:r></w:p>
<w:p></w:p>
</w:body>
</w:document>`

const testRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId5" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>
<Relationship Id="rId6" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image2.emf"/>
<Relationship Id="rId7" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink" Target="https://example.org" TargetMode="External"/>
</Relationships>`

func writeZip(t *testing.T, path string, parts map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	// mimetype recognises OOXML by the order of the first entries
	order := []string{"[Content_Types].xml", "word/document.xml", "word/_rels/document.xml.rels", "word/media/image1.png", "word/media/image2.emf"}
	for _, name := range order {
		data, ok := parts[name]
		if !ok {
			continue
		}
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func docxParts() map[string][]byte {
	return map[string][]byte{
		"[Content_Types].xml":          []byte(`<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`),
		"word/document.xml":            []byte(testDocument),
		"word/_rels/document.xml.rels": []byte(testRels),
		"word/media/image1.png":        pngBytes,
		"word/media/image2.emf":        []byte("emf-bytes"),
	}
}

func TestExtractDocx(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pack.docx")
	writeZip(t, src, docxParts())
	work := filepath.Join(dir, "work")

	res, err := New(0).Extract(context.Background(), Source{Path: src, Name: "pack.docx"}, work)
	require.NoError(t, err)
	require.Len(t, res.Fragments, 4)
	require.Equal(t, "Тур 1", res.Fragments[0].Text)
	require.Equal(t, "Вопрос 1. Кто это?\nВторая строка", res.Fragments[1].Text)
	require.Equal(t, "Ответ: Наполеон.", res.Fragments[2].Text)
	for i, frag := range res.Fragments {
		require.Equal(t, i, frag.Position)
	}

	// the standalone drawing attaches to the next text paragraph
	require.Len(t, res.Fragments[2].Images, 1)
	img := res.Fragments[2].Images[0]
	require.Equal(t, "image/png", img.ContentType)
	require.Equal(t, ".png", filepath.Ext(img.Name))
	require.Equal(t, work, filepath.Dir(img.Path))
	data, err := os.ReadFile(img.Path)
	require.NoError(t, err)
	require.Equal(t, pngBytes, data)

	require.Empty(t, res.Fragments[3].Images)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, "unclassified_media", res.Warnings[0].Code)
}

func TestExtractTrailingImageAttachesToLastFragment(t *testing.T) {
	dir := t.TempDir()
	parts := docxParts()
	parts["word/document.xml"] = []byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><w:body>
<w:p><w:r><w:t>Вопрос 1. Текст</w:t></w:r></w:p>
<w:p><w:r><w:drawing><a:blip r:embed="rId5"/></w:drawing></w:r></w:p>
</w:body></w:document>`)
	src := filepath.Join(dir, "pack.docx")
	writeZip(t, src, parts)

	res, err := New(0).Extract(context.Background(), Source{Path: src, Name: "pack.docx"}, filepath.Join(dir, "work"))
	require.NoError(t, err)
	require.Len(t, res.Fragments, 1)
	require.Len(t, res.Fragments[0].Images, 1)
}

func TestExtractFailures(t *testing.T) {
	dir := t.TempDir()

	ole := filepath.Join(dir, "locked.docx")
	require.NoError(t, os.WriteFile(ole, append(append([]byte{}, oleMagic...), make([]byte, 512)...), 0o644))

	legacy := filepath.Join(dir, "old.doc")
	require.NoError(t, os.WriteFile(legacy, append(append([]byte{}, oleMagic...), make([]byte, 512)...), 0o644))

	notZip := filepath.Join(dir, "fake.docx")
	require.NoError(t, os.WriteFile(notZip, []byte("just some text pretending to be a docx"), 0o644))

	noDocument := filepath.Join(dir, "empty.docx")
	parts := docxParts()
	delete(parts, "word/document.xml")
	writeZip(t, noDocument, parts)

	badXML := filepath.Join(dir, "bad.docx")
	parts = docxParts()
	parts["word/document.xml"] = []byte(`<w:document><w:body><w:p>`)
	writeZip(t, badXML, parts)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n  \n"), 0o644))

	binary := filepath.Join(dir, "binary.txt")
	require.NoError(t, os.WriteFile(binary, []byte{0x00, 0x01, 0x02, 0x03, 0x00, 0x05}, 0o644))

	tests := []struct {
		name string
		path string
		file string
		kind appErr.Kind
	}{
		{name: "password protected", path: ole, file: "locked.docx", kind: appErr.KindPasswordProtected},
		{name: "legacy doc", path: legacy, file: "old.doc", kind: appErr.KindUnsupportedFormat},
		{name: "unknown extension", path: legacy, file: "scan.pdf", kind: appErr.KindUnsupportedFormat},
		{name: "not a zip", path: notZip, file: "fake.docx", kind: appErr.KindCorrupted},
		{name: "missing document part", path: noDocument, file: "empty.docx", kind: appErr.KindCorrupted},
		{name: "malformed xml", path: badXML, file: "bad.docx", kind: appErr.KindCorrupted},
		{name: "no text", path: empty, file: "empty.txt", kind: appErr.KindCorrupted},
		{name: "binary text", path: binary, file: "binary.txt", kind: appErr.KindCorrupted},
		{name: "missing file", path: filepath.Join(dir, "gone.txt"), file: "gone.txt", kind: appErr.KindTransientIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(0).Extract(context.Background(), Source{Path: tt.path, Name: tt.file}, filepath.Join(dir, "work"))
			require.Error(t, err)
			require.Equal(t, tt.kind, appErr.KindOf(err))
		})
	}
}

func TestExtractTooLarge(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pack.txt")
	require.NoError(t, os.WriteFile(src, []byte("Вопрос 1. Очень длинный текст"), 0o644))

	_, err := New(8).Extract(context.Background(), Source{Path: src, Name: "pack.txt"}, dir)
	require.Equal(t, appErr.KindTooLarge, appErr.KindOf(err))
	require.False(t, appErr.IsRetriable(err))
}

func TestExtractDocxExpansionLimit(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bomb.docx")
	parts := docxParts()
	parts["word/document.xml"] = []byte(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` +
		strings.Repeat("а", 1<<20) + `</w:t></w:r></w:p></w:body></w:document>`)
	writeZip(t, src, parts)
	st, err := os.Stat(src)
	require.NoError(t, err)
	require.Less(t, st.Size(), int64(64<<10))

	_, err = New(64<<10).Extract(context.Background(), Source{Path: src, Name: "bomb.docx"}, filepath.Join(dir, "work"))
	require.Equal(t, appErr.KindTooLarge, appErr.KindOf(err))
}

func TestExtractText(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pack.txt")
	content := "Тур 1\r\n\r\nВопрос 1. Текст\r\nОтвет: да\r\n\r\n\r\nВопрос 2. Ещё\n"
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))

	res, err := New(0).Extract(context.Background(), Source{Path: src, Name: "pack.txt"}, dir)
	require.NoError(t, err)
	require.Len(t, res.Fragments, 3)
	require.Equal(t, "Вопрос 1. Текст\nОтвет: да", res.Fragments[1].Text)
	require.Equal(t, 2, res.Fragments[2].Position)
}

func TestExtractTextWindows1251(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pack.txt")
	encoded, err := charmap.Windows1251.NewEncoder().String("Вопрос 1. Кто?\nОтвет: Пушкин")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(src, []byte(encoded), 0o644))

	res, err := New(0).Extract(context.Background(), Source{Path: src, Name: "pack.txt"}, dir)
	require.NoError(t, err)
	require.Len(t, res.Fragments, 1)
	require.Equal(t, "Вопрос 1. Кто?\nОтвет: Пушкин", res.Fragments[0].Text)
}

func TestExtractMarkdown(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pack.md")
	content := "# Тур 1\n\nВопрос 1. Текст вопроса\nпродолжение\n\n![схема](https://example.org/map.png)\n\n- Ответ: да\n- Зачёт: ага\n\n![local](img/local.png)\n"
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))

	res, err := New(0).Extract(context.Background(), Source{Path: src, Name: "pack.md"}, dir)
	require.NoError(t, err)
	require.Len(t, res.Fragments, 4)
	require.Equal(t, "Тур 1", res.Fragments[0].Text)
	require.Equal(t, "Вопрос 1. Текст вопроса\nпродолжение", res.Fragments[1].Text)
	require.Len(t, res.Fragments[1].Images, 1)
	require.Equal(t, "https://example.org/map.png", res.Fragments[1].Images[0].Name)
	require.Equal(t, "Ответ: да", res.Fragments[2].Text)
	require.Equal(t, "Зачёт: ага", res.Fragments[3].Text)
	require.Len(t, res.Warnings, 1)
}

func TestClassifyMedia(t *testing.T) {
	class, ok := ClassifyMedia("a/b/Clip.MP4")
	require.True(t, ok)
	require.Equal(t, MediaVideo, class)
	_, ok = ClassifyMedia("drawing.emf")
	require.False(t, ok)
	require.True(t, IsSupportedExt("Pack.DOCX"))
	require.False(t, IsSupportedExt("pack.doc"))
}
