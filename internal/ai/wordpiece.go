package ai

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

const (
	tokenUnknown = "[UNK]"
	tokenCLS     = "[CLS]"
	tokenSEP     = "[SEP]"
	tokenPad     = "[PAD]"

	maxWordPieceChars = 100
)

// wordPieceTokenizer is a lowercasing BERT-style tokenizer backed by a
// vocab.txt file (one token per line, line number = id).
type wordPieceTokenizer struct {
	vocab map[string]int64
	unkID int64
	clsID int64
	sepID int64
	padID int64
}

func newWordPieceTokenizer(vocabPath string) (*wordPieceTokenizer, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("open vocab file: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	sc := bufio.NewScanner(f)
	var id int64
	for sc.Scan() {
		token := strings.TrimSpace(sc.Text())
		if token != "" {
			vocab[token] = id
		}
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocab file: %w", err)
	}

	t := &wordPieceTokenizer{vocab: vocab}
	var ok bool
	if t.unkID, ok = vocab[tokenUnknown]; !ok {
		return nil, fmt.Errorf("vocab missing %s", tokenUnknown)
	}
	if t.clsID, ok = vocab[tokenCLS]; !ok {
		return nil, fmt.Errorf("vocab missing %s", tokenCLS)
	}
	if t.sepID, ok = vocab[tokenSEP]; !ok {
		return nil, fmt.Errorf("vocab missing %s", tokenSEP)
	}
	if t.padID, ok = vocab[tokenPad]; !ok {
		return nil, fmt.Errorf("vocab missing %s", tokenPad)
	}
	return t, nil
}

// Encode produces fixed-length input ids and an attention mask:
// [CLS] pieces... [SEP] padded to seqLen, truncating the pieces if needed.
func (t *wordPieceTokenizer) Encode(text string, seqLen int) (ids []int64, mask []int64) {
	pieces := t.tokenize(text)
	if len(pieces) > seqLen-2 {
		pieces = pieces[:seqLen-2]
	}

	ids = make([]int64, seqLen)
	mask = make([]int64, seqLen)

	ids[0] = t.clsID
	mask[0] = 1
	for i, p := range pieces {
		ids[i+1] = p
		mask[i+1] = 1
	}
	ids[len(pieces)+1] = t.sepID
	mask[len(pieces)+1] = 1
	for i := len(pieces) + 2; i < seqLen; i++ {
		ids[i] = t.padID
	}
	return ids, mask
}

func (t *wordPieceTokenizer) tokenize(text string) []int64 {
	var out []int64
	for _, word := range basicTokenize(text) {
		out = append(out, t.wordPiece(word)...)
	}
	return out
}

// wordPiece applies greedy longest-match-first splitting with the "##"
// continuation convention.
func (t *wordPieceTokenizer) wordPiece(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordPieceChars {
		return []int64{t.unkID}
	}

	var pieces []int64
	start := 0
	for start < len(runes) {
		end := len(runes)
		var curID int64 = -1
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				curID = id
				break
			}
			end--
		}
		if curID < 0 {
			return []int64{t.unkID}
		}
		pieces = append(pieces, curID)
		start = end
	}
	return pieces
}

// basicTokenize lowercases and splits on whitespace and punctuation,
// keeping each punctuation rune as its own token.
func basicTokenize(text string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}
