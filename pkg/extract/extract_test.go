package extract

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupported(t *testing.T) {
	assert.True(t, Supported("paper.pdf"))
	assert.True(t, Supported("notes.DOCX"))
	assert.True(t, Supported("readme.md"))
	assert.True(t, Supported("log.txt"))
	assert.False(t, Supported("archive.zip"))
	assert.False(t, Supported("binary"))
}

func TestExtract_UnsupportedExtension(t *testing.T) {
	_, err := Extract(context.Background(), "data.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestExtract_PlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("  First line.\nSecond line.\n"), 0644))

	pages, err := Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "First line.\nSecond line.", pages[0].Text)
}

func TestExtract_EmptyPlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.md")
	require.NoError(t, os.WriteFile(path, []byte("   \n  "), 0644))

	pages, err := Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestExtract_DOCX(t *testing.T) {
	documentXML := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph of the report.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second paragraph, </w:t></w:r><w:r><w:t>split across runs.</w:t></w:r></w:p>
  </w:body>
</w:document>`

	path := writeDOCX(t, documentXML)

	pages, err := Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	assert.Equal(t, 1, pages[0].Number)
	assert.Contains(t, pages[0].Text, "First paragraph of the report.")
	assert.Contains(t, pages[0].Text, "Second paragraph, split across runs.")
}

func TestExtract_DOCXMissingDocumentXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<styles/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Extract(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "word/document.xml")
}

func TestExtract_DOCXCancelledContext(t *testing.T) {
	path := writeDOCX(t, `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>text</w:t></w:r></w:p></w:body></w:document>`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Extract(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func writeDOCX(t *testing.T, documentXML string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	return path
}
