package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFile_Text(t *testing.T) {
	path := writeTemp(t, "notes.txt", "Plain text document.\nSecond line.")
	pages, err := File(path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, 1, pages[0].Number)
	require.Contains(t, pages[0].Text, "Second line.")
}

func TestFile_Markdown(t *testing.T) {
	md := "# Title\n\nFirst paragraph with **bold** text.\n\n- item one\n- item two\n"
	path := writeTemp(t, "readme.md", md)
	pages, err := File(path)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	text := pages[0].Text
	require.Contains(t, text, "Title")
	require.Contains(t, text, "bold")
	require.Contains(t, text, "item two")
	require.NotContains(t, text, "#", "markup must not leak into extracted text")
	require.NotContains(t, text, "**")
}

func TestFile_EmptyInput(t *testing.T) {
	path := writeTemp(t, "empty.txt", "  \n\t\n")
	_, err := File(path)
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestFile_UnsupportedFormat(t *testing.T) {
	path := writeTemp(t, "image.png", "not a document")
	_, err := File(path)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSupported(t *testing.T) {
	for _, name := range []string{"a.pdf", "b.DOCX", "c.md", "d.txt", "e.xlsx", "f.pptx", "g.ods"} {
		require.True(t, Supported(name), name)
	}
	for _, name := range []string{"a.png", "b.exe", "noext"} {
		require.False(t, Supported(name), name)
	}
}

func writeDocx(t *testing.T, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, content := range map[string]string{
		"word/document.xml":            documentXML,
		"word/_rels/document.xml.rels": `<?xml version="1.0"?><Relationships/>`,
	} {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func TestFile_DOCX(t *testing.T) {
	path := writeDocx(t, `<w:document><w:body><w:p><w:t>Quarterly figures</w:t><w:t xml:space="preserve"> improved.</w:t></w:p></w:body></w:document>`)
	pages, err := File(path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Contains(t, pages[0].Text, "Quarterly figures")
	require.Contains(t, pages[0].Text, "improved.")
}

func TestFile_DOCXWithoutRunsIsEmpty(t *testing.T) {
	path := writeDocx(t, `<w:document><w:body><w:p><w:pPr/></w:p></w:body></w:document>`)
	_, err := File(path)
	require.ErrorIs(t, err, ErrEmptyInput)
	require.NotContains(t, err.Error(), "<w:document", "document markup must never surface as text")
}

func TestCollectTagText(t *testing.T) {
	xml := `<p><w:t>Hello</w:t><w:tbl>skip</w:tbl><w:t xml:space="preserve">world</w:t></p>`
	got := collectTagText(xml, "<w:t", "</w:t>")
	require.Equal(t, "Hello world", got)
	require.False(t, strings.Contains(got, "skip"))
}
