package ai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVocab(t *testing.T, tokens []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	var content string
	for _, tok := range tokens {
		content += tok + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testVocab(t *testing.T) *wordPieceTokenizer {
	t.Helper()
	// ids follow line order: [PAD]=0, [UNK]=1, [CLS]=2, [SEP]=3, ...
	path := writeVocab(t, []string{
		"[PAD]", "[UNK]", "[CLS]", "[SEP]",
		"bim", "plan", "##ning", "iso", ",",
	})
	tok, err := newWordPieceTokenizer(path)
	require.NoError(t, err)
	return tok
}

func TestNewWordPieceTokenizerMissingSpecials(t *testing.T) {
	path := writeVocab(t, []string{"[PAD]", "[CLS]", "[SEP]", "word"})
	_, err := newWordPieceTokenizer(path)
	require.ErrorContains(t, err, "[UNK]")
}

func TestBasicTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"bim", "planning", ",", "iso"},
		basicTokenize("BIM Planning, ISO"))
	assert.Empty(t, basicTokenize("   "))
}

func TestWordPieceGreedyLongestMatch(t *testing.T) {
	tok := testVocab(t)

	// "planning" = "plan" + "##ning"
	assert.Equal(t, []int64{5, 6}, tok.wordPiece("planning"))
	assert.Equal(t, []int64{4}, tok.wordPiece("bim"))
	// No piece covers it: the whole word collapses to [UNK].
	assert.Equal(t, []int64{1}, tok.wordPiece("unmappable"))
}

func TestEncodeShape(t *testing.T) {
	tok := testVocab(t)
	seqLen := 8

	ids, mask := tok.Encode("BIM planning", seqLen)
	require.Len(t, ids, seqLen)
	require.Len(t, mask, seqLen)

	// [CLS] bim plan ##ning [SEP] [PAD] [PAD] [PAD]
	assert.Equal(t, []int64{2, 4, 5, 6, 3, 0, 0, 0}, ids)
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 0, 0, 0}, mask)
}

func TestEncodeTruncates(t *testing.T) {
	tok := testVocab(t)
	seqLen := 4

	ids, mask := tok.Encode("bim plan bim plan bim plan", seqLen)
	require.Len(t, ids, seqLen)
	assert.Equal(t, int64(2), ids[0])
	assert.Equal(t, int64(3), ids[seqLen-1], "SEP survives truncation")
	for _, m := range mask {
		assert.Equal(t, int64(1), m)
	}
}
