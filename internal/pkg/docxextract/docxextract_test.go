package docxextract

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDocx(t *testing.T, documentXML string) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return bytes.NewReader(buf.Bytes())
}

func TestExtractText(t *testing.T) {
	doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>BIM Execution Plan</w:t></w:r></w:p>
    <w:p><w:r><w:t>Section 1 </w:t></w:r><w:r><w:t>- Scope</w:t></w:r></w:p>
    <w:p></w:p>
    <w:p><w:r><w:t>   </w:t></w:r></w:p>
    <w:p><w:r><w:t>Final paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`

	text, err := ExtractText(buildDocx(t, doc))
	require.NoError(t, err)

	lines := strings.Split(text, "\n")
	require.Len(t, lines, 3, "empty and whitespace-only paragraphs are dropped")
	assert.Equal(t, "BIM Execution Plan", lines[0])
	assert.Equal(t, "Section 1 - Scope", lines[1], "runs within a paragraph are concatenated")
	assert.Equal(t, "Final paragraph.", lines[2])
}

func TestExtractTextNotAZip(t *testing.T) {
	_, err := ExtractText(strings.NewReader("plain text, not an archive"))
	require.Error(t, err)
}

func TestExtractTextMissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<styles/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ExtractText(bytes.NewReader(buf.Bytes()))
	require.ErrorContains(t, err, "word/document.xml")
}
