package loader

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/corpusrag/internal/document"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDispatcher_UnsupportedExtensionYieldsNothing(t *testing.T) {
	dir := t.TempDir()
	d := NewDispatcher()

	for _, name := range []string{"image.png", "noext", "upper.TXT", "archive.tar.gz"} {
		path := writeFile(t, dir, name, "ignored")

		docs, err := d.Load(context.Background(), path)

		require.NoError(t, err, name)
		assert.Empty(t, docs, name)
		assert.False(t, d.Supports(path), name)
	}
}

func TestDispatcher_TextFileIsOneDocument(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "A\nB\nC")

	docs, err := NewDispatcher().Load(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "A\nB\nC", docs[0].Content)
	assert.Equal(t, path, docs[0].Source())
}

func TestDispatcher_MarkdownUsesTextLoader(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.md", "# Title\n\nbody")

	docs, err := NewDispatcher().Load(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "# Title\n\nbody", docs[0].Content)
}

func TestDispatcher_CSVMergedIntoOneDocument(t *testing.T) {
	// Given: a CSV with a header and 3 data rows
	path := writeFile(t, t.TempDir(), "people.csv", "name,age\nalice,30\nbob,41\ncarol,27\n")

	// When: dispatching it
	docs, err := NewDispatcher().Load(context.Background(), path)

	// Then: exactly one document holds all rows joined by newline
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "name: alice\nage: 30\nname: bob\nage: 41\nname: carol\nage: 27", docs[0].Content)
	assert.Equal(t, map[string]any{document.KeySource: path}, docs[0].Metadata)
}

func TestDispatcher_EmptyCSVStillOneDocument(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.csv", "")

	docs, err := NewDispatcher().Load(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Empty(t, docs[0].Content)
	assert.Equal(t, map[string]any{document.KeySource: path}, docs[0].Metadata)
}

func TestDispatcher_MergeExtensionsConfigurable(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rows.csv", "k\n1\n2\n")

	docs, err := NewDispatcher(WithMergeExtensions()).Load(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "k: 1", docs[0].Content)
	assert.Equal(t, 1, docs[1].Metadata[document.KeyRow])
}

func TestDispatcher_WithExtensionsRestricts(t *testing.T) {
	dir := t.TempDir()
	d := NewDispatcher(WithExtensions(".txt", ".unknown"))

	assert.Equal(t, []string{".txt"}, d.Extensions())

	docs, err := d.Load(context.Background(), writeFile(t, dir, "a.md", "skipped"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDispatcher_LoaderErrorIsWrappedWithPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.pdf", "this is not a pdf")

	_, err := NewDispatcher().Load(context.Background(), path)

	require.Error(t, err)
	assert.True(t, errors.Is(err, crerrors.Sentinel(crerrors.ErrCodeLoadFailed)))
	assert.Contains(t, err.Error(), path)
}

type stubLoader struct{ docs []document.Document }

func (s stubLoader) Load(context.Context, string) ([]document.Document, error) {
	return s.docs, nil
}

func TestDispatcher_NonMergedOutputPassesThrough(t *testing.T) {
	pages := []document.Document{document.New("p1", "x.pdf"), document.New("p2", "x.pdf")}
	d := NewDispatcher(WithLoader(".pdf", stubLoader{docs: pages}))

	docs, err := d.Load(context.Background(), "x.pdf")

	require.NoError(t, err)
	assert.Equal(t, pages, docs)
}

func TestTextLoader_StripsBOMAndRepairsInvalidUTF8(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bom.txt", "\xef\xbb\xbfhello\xffworld")

	docs, err := (&TextLoader{}).Load(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "hello�world", docs[0].Content)
}

func TestTextLoader_MissingFile(t *testing.T) {
	_, err := (&TextLoader{}).Load(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestCSVLoader_RowsAndRaggedRecords(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ragged.csv", " a , b \n1,2\n3\n4,5,6\n")

	docs, err := (&CSVLoader{}).Load(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a: 1\nb: 2", docs[0].Content)
	assert.Equal(t, "a: 3\nb: ", docs[1].Content)
	assert.Equal(t, "a: 4\nb: 5", docs[2].Content)
	assert.Equal(t, 2, docs[2].Metadata[document.KeyRow])
	assert.Equal(t, path, docs[2].Source())
}

func TestCSVLoader_RepairsInvalidUTF8(t *testing.T) {
	path := writeFile(t, t.TempDir(), "latin1.csv", "item,price\nlamp,\xa320\n")

	docs, err := (&CSVLoader{}).Load(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "item: lamp\nprice: \uFFFD20", docs[0].Content)
}

func TestCSVLoader_CustomDelimiter(t *testing.T) {
	path := writeFile(t, t.TempDir(), "semi.csv", "x;y\n1;2\n")

	docs, err := (&CSVLoader{Comma: ';'}).Load(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "x: 1\ny: 2", docs[0].Content)
}

func TestHTMLLoader_ExtractsTextAndHeadMetadata(t *testing.T) {
	page := `<!DOCTYPE html>
<html lang="ja">
<head>
  <title> Guide </title>
  <meta name="description" content="How to index">
  <style>body { color: red }</style>
</head>
<body>
  <h1>Intro</h1>
  <p>First   paragraph
     continues.</p>
  <script>var hidden = 1;</script>
  <ul><li>one</li><li>two</li></ul>
</body>
</html>`
	path := writeFile(t, t.TempDir(), "guide.html", page)

	docs, err := NewDispatcher().Load(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Intro\nFirst paragraph continues.\none\ntwo", docs[0].Content)
	assert.Equal(t, "Guide", docs[0].Metadata[document.KeyTitle])
	assert.Equal(t, "How to index", docs[0].Metadata[document.KeyDescription])
	assert.Equal(t, "ja", docs[0].Metadata[document.KeyLanguage])
}

func TestHTMLPage_DocumentOmitsEmptyFields(t *testing.T) {
	doc := HTMLPage{Text: "body"}.Document("https://example.com")

	assert.Equal(t, map[string]any{document.KeySource: "https://example.com"}, doc.Metadata)
}

func writeDocx(t *testing.T, path, body, title string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)

	if title != "" {
		w, err = zw.Create("docProps/core.xml")
		require.NoError(t, err)
		_, err = w.Write([]byte(`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>` + title + `</dc:title></cp:coreProperties>`))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestDocxLoader_ParagraphsBreaksAndTitle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memo.docx")
	writeDocx(t, path, `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`+
		`<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p>`+
		`</w:body></w:document>`, "Memo")

	docs, err := NewDispatcher().Load(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Hello world\na\tb\nc", docs[0].Content)
	assert.Equal(t, "Memo", docs[0].Metadata[document.KeyTitle])
	assert.Equal(t, path, docs[0].Source())
}

func TestDocxLoader_MissingBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, zip.NewWriter(f).Close())
	require.NoError(t, f.Close())

	_, err = (&DocxLoader{}).Load(context.Background(), path)
	assert.Error(t, err)
}

func TestPDFLoader_RejectsGarbage(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fake.pdf", "%PDF-1.4 truncated")

	_, err := (&PDFLoader{}).Load(context.Background(), path)
	assert.Error(t, err)
}
