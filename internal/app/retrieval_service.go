package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"path"
	"strings"

	"bimagent/internal/index"
)

const defaultRetrieveTopK = 5

// Querier is the read side of the embedding index.
type Querier interface {
	Query(ctx context.Context, vector []float32, k int) ([]index.Result, error)
	Status() index.Status
}

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetrievedSource identifies one corpus location backing the context,
// deduplicated per (source, page) in first-seen order.
type RetrievedSource struct {
	Title     string  `json:"title"`
	Source    string  `json:"source"`
	Page      int     `json:"page"`
	Category  string  `json:"category"`
	Relevance float64 `json:"relevance"`
}

// RetrievalResult is what the prompt builders consume. RAGUsed false
// means the caller proceeds without grounding; it is not an error.
type RetrievalResult struct {
	Context string            `json:"context"`
	Sources []RetrievedSource `json:"sources"`
	RAGUsed bool              `json:"rag_used"`
}

// RetrievalService wraps the index behind fail-open semantics: whatever
// goes wrong during retrieval, the caller gets an empty result and the
// conversation continues ungrounded.
type RetrievalService struct {
	embedder QueryEmbedder
	idx      Querier
	topK     int
}

func NewRetrievalService(embedder QueryEmbedder, idx Querier, topK int) *RetrievalService {
	if topK <= 0 {
		topK = defaultRetrieveTopK
	}
	return &RetrievalService{embedder: embedder, idx: idx, topK: topK}
}

// Retrieve embeds the question and assembles cited context from the top-k
// nearest chunks. It never returns an error: degraded conditions (index
// not ready, embedding failure, empty collection) produce RAGUsed=false.
func (s *RetrievalService) Retrieve(ctx context.Context, question string, k int) RetrievalResult {
	empty := RetrievalResult{Sources: []RetrievedSource{}}

	question = strings.TrimSpace(question)
	if question == "" {
		return empty
	}
	if !s.idx.Status().Ready {
		return empty
	}
	if k <= 0 {
		k = s.topK
	}

	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		log.Printf("retrieval: embed query failed: %v", err)
		return empty
	}

	hits, err := s.idx.Query(ctx, vector, k)
	if err != nil {
		log.Printf("retrieval: index query failed: %v", err)
		return empty
	}
	if len(hits) == 0 {
		return empty
	}

	contextParts := make([]string, 0, len(hits))
	sources := make([]RetrievedSource, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))

	for _, hit := range hits {
		title := ShortTitle(hit.Source)
		contextParts = append(contextParts,
			fmt.Sprintf("[Source: %s, Page: %d]\n%s", title, hit.Page, hit.Text))

		key := fmt.Sprintf("%s:%d", hit.Source, hit.Page)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		sources = append(sources, RetrievedSource{
			Title:     title,
			Source:    hit.Source,
			Page:      hit.Page,
			Category:  hit.Category,
			Relevance: relevanceScore(hit.Distance),
		})
	}

	return RetrievalResult{
		Context: strings.Join(contextParts, "\n\n---\n\n"),
		Sources: sources,
		RAGUsed: true,
	}
}

// Status proxies the index status for the admin endpoint.
func (s *RetrievalService) Status() index.Status {
	return s.idx.Status()
}

// relevanceScore maps cosine distance to a 0..1 score, rounded to three
// decimals, where higher means more relevant.
func relevanceScore(distance float64) float64 {
	score := 1 - distance
	if score < 0 {
		score = 0
	}
	return math.Round(score*1000) / 1000
}

// ShortTitle turns a corpus path into a readable citation title: base
// name without extension, separators as spaces, capped at 80 runes.
func ShortTitle(source string) string {
	base := path.Base(strings.ReplaceAll(source, "\\", "/"))
	name := strings.TrimSuffix(base, path.Ext(base))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	runes := []rune(name)
	if len(runes) > 80 {
		return string(runes[:80])
	}
	return name
}
