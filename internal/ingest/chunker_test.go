package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk(t *testing.T) {
	t.Run("short text is a single chunk", func(t *testing.T) {
		chunks := Chunk("hello world", 800, 150)
		require.Len(t, chunks, 1)
		assert.Equal(t, "hello world", chunks[0])
	})

	t.Run("empty text yields nothing", func(t *testing.T) {
		assert.Nil(t, Chunk("", 800, 150))
	})

	t.Run("consecutive chunks overlap", func(t *testing.T) {
		text := strings.Repeat("abcdefghij", 30) // 300 runes
		chunks := Chunk(text, 100, 20)
		require.Greater(t, len(chunks), 1)

		for i := 1; i < len(chunks); i++ {
			prev := []rune(chunks[i-1])
			tail := string(prev[len(prev)-20:])
			assert.True(t, strings.HasPrefix(chunks[i], tail),
				"chunk %d must start with the last 20 runes of chunk %d", i, i-1)
		}
	})

	t.Run("every rune is covered", func(t *testing.T) {
		text := strings.Repeat("x", 199) + "END"
		chunks := Chunk(text, 100, 30)
		last := chunks[len(chunks)-1]
		assert.True(t, strings.HasSuffix(last, "END"))

		total := 0
		for _, c := range chunks {
			total += len([]rune(c))
		}
		assert.GreaterOrEqual(t, total, len([]rune(text)))
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		text := strings.Repeat("ăîșțâ", 50) // 250 runes, 500 bytes
		chunks := Chunk(text, 250, 0)
		require.Len(t, chunks, 1)
	})

	t.Run("overlap at least chunk size is clamped", func(t *testing.T) {
		// Would loop forever without clamping.
		chunks := Chunk(strings.Repeat("y", 50), 10, 10)
		assert.NotEmpty(t, chunks)
	})
}

func TestChunkID(t *testing.T) {
	id := ChunkID("BIM/standards/iso19650-1.pdf", 12, 3, "some chunk text")

	assert.Len(t, id, 32)
	assert.Equal(t, id, ChunkID("BIM/standards/iso19650-1.pdf", 12, 3, "some chunk text"),
		"same inputs must hash to the same id")
	assert.NotEqual(t, id, ChunkID("BIM/standards/iso19650-1.pdf", 12, 4, "some chunk text"))
	assert.NotEqual(t, id, ChunkID("BIM/standards/iso19650-2.pdf", 12, 3, "some chunk text"))
}

func TestChunkIDUsesTextPrefixOnly(t *testing.T) {
	prefix := strings.Repeat("a", 80)
	a := ChunkID("f.pdf", 1, 0, prefix+"tail one")
	b := ChunkID("f.pdf", 1, 0, prefix+"completely different tail")
	assert.Equal(t, a, b, "only the first 80 runes participate in the hash")

	c := ChunkID("f.pdf", 1, 0, strings.Repeat("a", 79)+"X")
	assert.NotEqual(t, a, c)
}
