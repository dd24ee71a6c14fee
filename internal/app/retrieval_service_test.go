package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bimagent/internal/index"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vector, f.err
}

type fakeQuerier struct {
	status  index.Status
	results []index.Result
	err     error
	gotK    int
}

func (f *fakeQuerier) Query(_ context.Context, _ []float32, k int) ([]index.Result, error) {
	f.gotK = k
	return f.results, f.err
}

func (f *fakeQuerier) Status() index.Status {
	return f.status
}

func readyQuerier(results ...index.Result) *fakeQuerier {
	return &fakeQuerier{
		status:  index.Status{State: index.StateReady, Ready: true},
		results: results,
	}
}

func TestRetrieveAssemblesContextAndSources(t *testing.T) {
	q := readyQuerier(
		index.Result{Text: "first chunk", Source: "standards/ISO_19650-1_en.pdf", Category: "ISO 19650", Page: 4, Distance: 0.1},
		index.Result{Text: "second chunk", Source: "standards/ISO_19650-1_en.pdf", Category: "ISO 19650", Page: 4, Distance: 0.2},
		index.Result{Text: "third chunk", Source: "projects/bep-template.docx", Category: "BEP", Page: 1, Distance: 0.4},
	)
	svc := NewRetrievalService(&fakeEmbedder{vector: []float32{1, 0}}, q, 5)

	result := svc.Retrieve(context.Background(), "what is a CDE?", 0)
	require.True(t, result.RAGUsed)
	assert.Equal(t, 5, q.gotK, "zero k falls back to the configured top_k")

	// Every hit becomes a citation block, joined by the separator.
	parts := strings.Split(result.Context, "\n\n---\n\n")
	require.Len(t, parts, 3)
	assert.Equal(t, "[Source: ISO 19650 1 en, Page: 4]\nfirst chunk", parts[0])
	assert.Equal(t, "[Source: bep template, Page: 1]\nthird chunk", parts[2])

	// Sources dedupe per (source, page), first seen wins.
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "ISO 19650 1 en", result.Sources[0].Title)
	assert.InDelta(t, 0.9, result.Sources[0].Relevance, 1e-9)
	assert.Equal(t, "bep template", result.Sources[1].Title)
	assert.InDelta(t, 0.6, result.Sources[1].Relevance, 1e-9)
}

func TestRetrieveFailsOpen(t *testing.T) {
	ctx := context.Background()

	assertEmpty := func(t *testing.T, r RetrievalResult) {
		t.Helper()
		assert.False(t, r.RAGUsed)
		assert.Empty(t, r.Context)
		require.NotNil(t, r.Sources)
		assert.Empty(t, r.Sources)
	}

	t.Run("blank question", func(t *testing.T) {
		svc := NewRetrievalService(&fakeEmbedder{vector: []float32{1}}, readyQuerier(), 5)
		assertEmpty(t, svc.Retrieve(ctx, "   ", 3))
	})

	t.Run("index not ready", func(t *testing.T) {
		q := &fakeQuerier{status: index.Status{State: index.StateUnavailable}}
		svc := NewRetrievalService(&fakeEmbedder{vector: []float32{1}}, q, 5)
		assertEmpty(t, svc.Retrieve(ctx, "question", 3))
	})

	t.Run("embedding failure", func(t *testing.T) {
		svc := NewRetrievalService(&fakeEmbedder{err: errors.New("endpoint down")}, readyQuerier(), 5)
		assertEmpty(t, svc.Retrieve(ctx, "question", 3))
	})

	t.Run("query failure", func(t *testing.T) {
		q := readyQuerier()
		q.err = errors.New("boom")
		svc := NewRetrievalService(&fakeEmbedder{vector: []float32{1}}, q, 5)
		assertEmpty(t, svc.Retrieve(ctx, "question", 3))
	})

	t.Run("no hits", func(t *testing.T) {
		svc := NewRetrievalService(&fakeEmbedder{vector: []float32{1}}, readyQuerier(), 5)
		assertEmpty(t, svc.Retrieve(ctx, "question", 3))
	})
}

func TestRelevanceScore(t *testing.T) {
	assert.Equal(t, 1.0, relevanceScore(0))
	assert.Equal(t, 0.5, relevanceScore(0.5))
	assert.Equal(t, 0.0, relevanceScore(1.7), "distances past 1 clamp to zero")
	assert.Equal(t, 0.123, relevanceScore(0.8766), "rounded to three decimals")
}

func TestShortTitle(t *testing.T) {
	assert.Equal(t, "ISO 19650 1 en", ShortTitle("standards/ISO_19650-1_en.pdf"))
	assert.Equal(t, "bep template", ShortTitle(`projects\bep-template.docx`))

	long := strings.Repeat("a", 100) + ".pdf"
	assert.Len(t, []rune(ShortTitle(long)), 80)
}
