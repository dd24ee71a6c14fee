package index

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"

	"bimagent/internal/model"
)

// State of the index lifecycle. The index starts UNINITIALIZED and moves
// exactly once to READY or UNAVAILABLE; Reload can move UNAVAILABLE back
// to READY after the underlying store has been repaired.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateUnavailable   State = "unavailable"
)

var (
	ErrNotReady        = errors.New("index not ready")
	ErrModelMismatch   = errors.New("collection embedding model mismatch")
	ErrEmptyCollection = errors.New("collection is empty")
)

// Store is the persistence layer behind the index.
type Store interface {
	UpsertBatch(ctx context.Context, chunks []model.KnowledgeChunk) (int64, error)
	ListByCollection(ctx context.Context, collection string) ([]model.KnowledgeChunk, error)
	DistinctModels(ctx context.Context, collection string) ([]string, error)
}

// Result is one ranked retrieval hit. Distance is cosine distance
// (0 identical, 2 opposite).
type Result struct {
	Text       string
	Source     string
	Category   string
	Page       int
	ChunkIndex int
	Distance   float64
}

// Status is a point-in-time snapshot for health reporting.
type Status struct {
	State      State  `json:"state"`
	Ready      bool   `json:"ready"`
	Reason     string `json:"reason,omitempty"`
	ChunkCount int    `json:"chunk_count"`
	Model      string `json:"model"`
	Collection string `json:"collection"`
}

type entry struct {
	chunk  model.KnowledgeChunk
	vector []float32
}

// Index is an in-memory cosine nearest-neighbour index over a persistent
// chunk collection. Entries load once on Init and swap atomically on
// Reload; Query never sees a half-loaded collection.
type Index struct {
	store      Store
	collection string
	modelID    string

	mu      sync.RWMutex
	state   State
	reason  string
	entries []entry
	ids     map[string]struct{}
}

func New(store Store, collection, modelID string) *Index {
	return &Index{
		store:      store,
		collection: collection,
		modelID:    modelID,
		state:      StateUninitialized,
		ids:        make(map[string]struct{}),
	}
}

// Init loads the collection. It runs at most once: calling it again
// returns the outcome of the first call. A collection recorded under a
// different embedding model is refused rather than served with
// incomparable vectors, and an empty collection leaves the index
// UNAVAILABLE until ingestion has run and Reload picks it up.
func (ix *Index) Init(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	switch ix.state {
	case StateReady:
		return nil
	case StateUnavailable:
		return fmt.Errorf("%w: %s", ErrNotReady, ix.reason)
	}

	if err := ix.loadLocked(ctx); err != nil {
		ix.state = StateUnavailable
		ix.reason = err.Error()
		log.Printf("index: init failed: %v", err)
		return err
	}
	ix.state = StateReady
	ix.reason = ""
	log.Printf("index: ready, collection %s, %d chunks, model %s",
		ix.collection, len(ix.entries), ix.modelID)
	return nil
}

// Reload re-reads the collection and swaps the entries in one step. On
// failure the previous entries stay in place and the state is unchanged
// unless the index never reached READY.
func (ix *Index) Reload(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	prevEntries, prevIDs := ix.entries, ix.ids
	if err := ix.loadLocked(ctx); err != nil {
		ix.entries, ix.ids = prevEntries, prevIDs
		if ix.state != StateReady {
			ix.state = StateUnavailable
			ix.reason = err.Error()
		}
		return fmt.Errorf("reload index failed: %w", err)
	}
	ix.state = StateReady
	ix.reason = ""
	log.Printf("index: reloaded, collection %s, %d chunks", ix.collection, len(ix.entries))
	return nil
}

// loadLocked reads and validates the collection. Caller holds ix.mu.
func (ix *Index) loadLocked(ctx context.Context) error {
	models, err := ix.store.DistinctModels(ctx, ix.collection)
	if err != nil {
		return err
	}
	for _, m := range models {
		if m != ix.modelID {
			return fmt.Errorf("%w: collection %s recorded with model %q, configured %q",
				ErrModelMismatch, ix.collection, m, ix.modelID)
		}
	}

	chunks, err := ix.store.ListByCollection(ctx, ix.collection)
	if err != nil {
		return err
	}

	entries := make([]entry, 0, len(chunks))
	ids := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		vec := c.EmbeddingVector()
		if len(vec) == 0 {
			continue
		}
		entries = append(entries, entry{chunk: c, vector: vec})
		ids[c.ID] = struct{}{}
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: collection %q is empty; run ingestion",
			ErrEmptyCollection, ix.collection)
	}
	ix.entries = entries
	ix.ids = ids
	return nil
}

// Upsert persists a chunk batch and, when the index is READY, merges the
// new entries into memory so queries see them without a full reload.
func (ix *Index) Upsert(ctx context.Context, chunks []model.KnowledgeChunk) (int64, error) {
	for i := range chunks {
		if chunks[i].Model != ix.modelID {
			return 0, fmt.Errorf("%w: chunk %s carries model %q, index pinned to %q",
				ErrModelMismatch, chunks[i].ID, chunks[i].Model, ix.modelID)
		}
	}

	inserted, err := ix.store.UpsertBatch(ctx, chunks)
	if err != nil {
		return 0, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.state != StateReady {
		return inserted, nil
	}
	for _, c := range chunks {
		if _, exists := ix.ids[c.ID]; exists {
			continue
		}
		vec := c.EmbeddingVector()
		if len(vec) == 0 {
			continue
		}
		ix.entries = append(ix.entries, entry{chunk: c, vector: vec})
		ix.ids[c.ID] = struct{}{}
	}
	return inserted, nil
}

// Query returns the k nearest chunks to the query vector by cosine
// distance, closest first. k is clamped to the collection size.
func (ix *Index) Query(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.state != StateReady {
		if ix.reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrNotReady, ix.reason)
		}
		return nil, ErrNotReady
	}
	if k <= 0 || len(ix.entries) == 0 {
		return nil, nil
	}
	if k > len(ix.entries) {
		k = len(ix.entries)
	}

	results := make([]Result, 0, len(ix.entries))
	for i := range ix.entries {
		e := &ix.entries[i]
		results = append(results, Result{
			Text:       e.chunk.Text,
			Source:     e.chunk.Source,
			Category:   e.chunk.Category,
			Page:       e.chunk.Page,
			ChunkIndex: e.chunk.ChunkIndex,
			Distance:   cosineDistance(vector, e.vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	return results[:k], nil
}

// Status reports the current lifecycle state and collection size.
func (ix *Index) Status() Status {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Status{
		State:      ix.state,
		Ready:      ix.state == StateReady,
		Reason:     ix.reason,
		ChunkCount: len(ix.entries),
		Model:      ix.modelID,
		Collection: ix.collection,
	}
}

// cosineDistance is 1 - cosine similarity; degenerate vectors count as
// maximally distant rather than erroring per query.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
