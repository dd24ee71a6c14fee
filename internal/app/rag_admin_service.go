package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"bimagent/internal/index"
	"bimagent/internal/ingest"
	"bimagent/internal/repository"
)

var (
	ErrReindexInProgress = errors.New("reindex already in progress")
	ErrUnsupportedFile   = errors.New("unsupported corpus file type")
	ErrFileTooLarge      = errors.New("corpus file too large")
)

// IngestRunner runs one corpus ingestion batch.
type IngestRunner interface {
	Run(ctx context.Context) (*ingest.Stats, error)
}

// Reloader swaps the index contents after an ingestion batch.
type Reloader interface {
	Reload(ctx context.Context) error
}

// CorpusLister reads per-file summaries of the indexed corpus.
type CorpusLister interface {
	ListSources(ctx context.Context, collection string) ([]repository.SourceSummary, error)
}

// ReindexState is the pollable state of the background reindex run.
type ReindexState struct {
	Running   bool          `json:"running"`
	LastStats *ingest.Stats `json:"last_stats,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// RAGAdminService exposes the operational surface of the retrieval
// pipeline: status, direct query, corpus listing and upload, and a
// single-flight background reindex.
type RAGAdminService struct {
	retrieval  *RetrievalService
	ingestor   IngestRunner
	reloader   Reloader
	corpus     CorpusLister
	collection string
	corpusDir  string
	maxFileMB  int

	mu      sync.Mutex
	reindex ReindexState
}

func NewRAGAdminService(
	retrieval *RetrievalService,
	ingestor IngestRunner,
	reloader Reloader,
	corpus CorpusLister,
	collection, corpusDir string,
	maxFileMB int,
) *RAGAdminService {
	if maxFileMB <= 0 {
		maxFileMB = 50
	}
	return &RAGAdminService{
		retrieval:  retrieval,
		ingestor:   ingestor,
		reloader:   reloader,
		corpus:     corpus,
		collection: collection,
		corpusDir:  corpusDir,
		maxFileMB:  maxFileMB,
	}
}

func (s *RAGAdminService) Status() index.Status {
	return s.retrieval.Status()
}

// Query exposes raw retrieval for debugging and the side panel.
func (s *RAGAdminService) Query(ctx context.Context, question string, k int) RetrievalResult {
	return s.retrieval.Retrieve(ctx, question, k)
}

// StartReindex launches the ingestion batch in the background. Only one
// run may be in flight; a second request is refused, not queued.
func (s *RAGAdminService) StartReindex() error {
	s.mu.Lock()
	if s.reindex.Running {
		s.mu.Unlock()
		return ErrReindexInProgress
	}
	s.reindex = ReindexState{Running: true}
	s.mu.Unlock()

	go func() {
		// Detached from the request: the run outlives the HTTP call.
		ctx := context.Background()
		stats, err := s.ingestor.Run(ctx)
		if err == nil {
			err = s.reloader.Reload(ctx)
		}

		s.mu.Lock()
		s.reindex.Running = false
		s.reindex.LastStats = stats
		if err != nil {
			s.reindex.LastError = err.Error()
			log.Printf("reindex failed: %v", err)
		} else {
			s.reindex.LastError = ""
		}
		s.mu.Unlock()
	}()
	return nil
}

func (s *RAGAdminService) ReindexState() ReindexState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reindex
}

func (s *RAGAdminService) ListCorpus(ctx context.Context) ([]repository.SourceSummary, error) {
	return s.corpus.ListSources(ctx, s.collection)
}

var (
	pdfMagic  = []byte("%PDF")
	docxMagic = []byte("PK\x03\x04") // zip container
)

// UploadCorpusFile validates and stores a new corpus document for the
// next reindex: extension and magic bytes must agree, size is capped.
func (s *RAGAdminService) UploadCorpusFile(filename string, r io.Reader) (string, error) {
	base := filepath.Base(strings.TrimSpace(filename))
	ext := strings.ToLower(filepath.Ext(base))
	if base == "" || base == "." || (ext != ".pdf" && ext != ".docx") {
		return "", ErrUnsupportedFile
	}

	maxBytes := int64(s.maxFileMB) * 1024 * 1024
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload failed: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return "", ErrFileTooLarge
	}

	magic := pdfMagic
	if ext == ".docx" {
		magic = docxMagic
	}
	if !bytes.HasPrefix(data, magic) {
		return "", ErrUnsupportedFile
	}

	if err := os.MkdirAll(s.corpusDir, 0o755); err != nil {
		return "", fmt.Errorf("create corpus dir failed: %w", err)
	}
	dest := filepath.Join(s.corpusDir, base)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("store corpus file failed: %w", err)
	}
	log.Printf("corpus: stored %s (%d bytes)", dest, len(data))
	return base, nil
}
