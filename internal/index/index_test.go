package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bimagent/internal/model"
)

const testModel = "paraphrase-multilingual-MiniLM-L12-v2"

// fakeStore backs the index with an in-memory chunk map.
type fakeStore struct {
	chunks    map[string]model.KnowledgeChunk
	listErr   error
	modelsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{chunks: make(map[string]model.KnowledgeChunk)}
}

func (s *fakeStore) UpsertBatch(_ context.Context, chunks []model.KnowledgeChunk) (int64, error) {
	var inserted int64
	for _, c := range chunks {
		if _, exists := s.chunks[c.ID]; exists {
			continue
		}
		s.chunks[c.ID] = c
		inserted++
	}
	return inserted, nil
}

func (s *fakeStore) ListByCollection(_ context.Context, collection string) ([]model.KnowledgeChunk, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.KnowledgeChunk
	for _, c := range s.chunks {
		if c.Collection == collection {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) DistinctModels(_ context.Context, collection string) ([]string, error) {
	if s.modelsErr != nil {
		return nil, s.modelsErr
	}
	seen := map[string]struct{}{}
	var out []string
	for _, c := range s.chunks {
		if c.Collection != collection {
			continue
		}
		if _, ok := seen[c.Model]; ok {
			continue
		}
		seen[c.Model] = struct{}{}
		out = append(out, c.Model)
	}
	return out, nil
}

func testChunk(id, text string, vec []float32) model.KnowledgeChunk {
	c := model.KnowledgeChunk{
		ID:         id,
		Collection: "bim_knowledge",
		Model:      testModel,
		Source:     "standards/iso19650-1.pdf",
		Category:   "ISO 19650",
		Page:       1,
		Text:       text,
	}
	c.SetEmbedding(vec)
	return c
}

func TestIndexLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("init on empty collection is unavailable", func(t *testing.T) {
		store := newFakeStore()
		ix := New(store, "bim_knowledge", testModel)
		assert.Equal(t, StateUninitialized, ix.Status().State)

		err := ix.Init(ctx)
		require.ErrorIs(t, err, ErrEmptyCollection)
		status := ix.Status()
		assert.Equal(t, StateUnavailable, status.State)
		assert.False(t, status.Ready)
		assert.Contains(t, status.Reason, "is empty")

		// Ingestion fills the store; Reload brings the index up.
		_, err = store.UpsertBatch(ctx, []model.KnowledgeChunk{
			testChunk("c1", "chunk one", []float32{1, 0, 0}),
		})
		require.NoError(t, err)
		require.NoError(t, ix.Reload(ctx))
		assert.True(t, ix.Status().Ready)
		assert.Equal(t, 1, ix.Status().ChunkCount)
	})

	t.Run("init failure is memoized", func(t *testing.T) {
		store := newFakeStore()
		store.listErr = errors.New("table missing")
		ix := New(store, "bim_knowledge", testModel)

		require.Error(t, ix.Init(ctx))
		assert.Equal(t, StateUnavailable, ix.Status().State)

		// A repaired store does not rescue Init; that is Reload's job.
		store.listErr = nil
		err := ix.Init(ctx)
		require.ErrorIs(t, err, ErrNotReady)
	})

	t.Run("reload recovers an unavailable index", func(t *testing.T) {
		store := newFakeStore()
		store.listErr = errors.New("down")
		ix := New(store, "bim_knowledge", testModel)
		require.Error(t, ix.Init(ctx))

		store.listErr = nil
		_, err := store.UpsertBatch(ctx, []model.KnowledgeChunk{
			testChunk("c1", "chunk one", []float32{1, 0, 0}),
		})
		require.NoError(t, err)

		require.NoError(t, ix.Reload(ctx))
		status := ix.Status()
		assert.True(t, status.Ready)
		assert.Equal(t, 1, status.ChunkCount)
	})

	t.Run("failed reload keeps previous entries", func(t *testing.T) {
		store := newFakeStore()
		_, err := store.UpsertBatch(ctx, []model.KnowledgeChunk{
			testChunk("c1", "chunk one", []float32{1, 0, 0}),
		})
		require.NoError(t, err)

		ix := New(store, "bim_knowledge", testModel)
		require.NoError(t, ix.Init(ctx))

		store.listErr = errors.New("transient")
		require.Error(t, ix.Reload(ctx))

		status := ix.Status()
		assert.True(t, status.Ready, "a ready index stays ready through a failed reload")
		assert.Equal(t, 1, status.ChunkCount)
	})
}

func TestIndexModelMismatch(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	foreign := testChunk("c1", "chunk", []float32{1, 0})
	foreign.Model = "some-other-encoder"
	_, err := store.UpsertBatch(ctx, []model.KnowledgeChunk{foreign})
	require.NoError(t, err)

	ix := New(store, "bim_knowledge", testModel)
	err = ix.Init(ctx)
	require.ErrorIs(t, err, ErrModelMismatch)
	assert.Equal(t, StateUnavailable, ix.Status().State)
}

func TestIndexUpsert(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects chunks from another model", func(t *testing.T) {
		store := newFakeStore()
		_, err := store.UpsertBatch(ctx, []model.KnowledgeChunk{
			testChunk("c0", "seed", []float32{1}),
		})
		require.NoError(t, err)
		ix := New(store, "bim_knowledge", testModel)
		require.NoError(t, ix.Init(ctx))

		bad := testChunk("c1", "chunk", []float32{1})
		bad.Model = "other"
		_, err = ix.Upsert(ctx, []model.KnowledgeChunk{bad})
		require.ErrorIs(t, err, ErrModelMismatch)
	})

	t.Run("merges new entries into a ready index", func(t *testing.T) {
		store := newFakeStore()
		_, err := store.UpsertBatch(ctx, []model.KnowledgeChunk{
			testChunk("c0", "seed", []float32{1, 1}),
		})
		require.NoError(t, err)
		ix := New(store, "bim_knowledge", testModel)
		require.NoError(t, ix.Init(ctx))

		inserted, err := ix.Upsert(ctx, []model.KnowledgeChunk{
			testChunk("c1", "one", []float32{1, 0}),
			testChunk("c2", "two", []float32{0, 1}),
		})
		require.NoError(t, err)
		assert.EqualValues(t, 2, inserted)
		assert.Equal(t, 3, ix.Status().ChunkCount)

		// Re-upserting the same ids inserts nothing and keeps the count.
		inserted, err = ix.Upsert(ctx, []model.KnowledgeChunk{
			testChunk("c1", "one", []float32{1, 0}),
		})
		require.NoError(t, err)
		assert.EqualValues(t, 0, inserted)
		assert.Equal(t, 3, ix.Status().ChunkCount)
	})
}

func TestIndexQuery(t *testing.T) {
	ctx := context.Background()

	newReadyIndex := func(t *testing.T) *Index {
		t.Helper()
		store := newFakeStore()
		_, err := store.UpsertBatch(ctx, []model.KnowledgeChunk{
			testChunk("a", "aligned", []float32{1, 0, 0}),
			testChunk("b", "orthogonal", []float32{0, 1, 0}),
			testChunk("c", "opposite", []float32{-1, 0, 0}),
		})
		require.NoError(t, err)
		ix := New(store, "bim_knowledge", testModel)
		require.NoError(t, ix.Init(ctx))
		return ix
	}

	t.Run("ranks by cosine distance ascending", func(t *testing.T) {
		ix := newReadyIndex(t)
		results, err := ix.Query(ctx, []float32{1, 0, 0}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "aligned", results[0].Text)
		assert.InDelta(t, 0, results[0].Distance, 1e-6)
		assert.Equal(t, "orthogonal", results[1].Text)
		assert.InDelta(t, 1, results[1].Distance, 1e-6)
		assert.Equal(t, "opposite", results[2].Text)
		assert.InDelta(t, 2, results[2].Distance, 1e-6)
	})

	t.Run("k is clamped to the collection size", func(t *testing.T) {
		ix := newReadyIndex(t)
		results, err := ix.Query(ctx, []float32{1, 0, 0}, 50)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("not ready errors", func(t *testing.T) {
		ix := New(newFakeStore(), "bim_knowledge", testModel)
		_, err := ix.Query(ctx, []float32{1}, 3)
		require.ErrorIs(t, err, ErrNotReady)
	})

	t.Run("empty vector errors", func(t *testing.T) {
		ix := newReadyIndex(t)
		_, err := ix.Query(ctx, nil, 3)
		require.Error(t, err)
	})

	t.Run("cancelled context errors", func(t *testing.T) {
		ix := newReadyIndex(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := ix.Query(cancelled, []float32{1, 0, 0}, 1)
		require.ErrorIs(t, err, context.Canceled)
	})
}
