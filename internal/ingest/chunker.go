package ingest

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 150
)

// Chunk splits text into overlapping fragments by rune count. Every rune
// of the input appears in at least one chunk; consecutive chunks share
// `overlap` runes so sentences cut at a boundary survive in one piece.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	for start := 0; start < len(runes); start += size - overlap {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
