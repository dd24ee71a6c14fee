package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"bimagent/internal/ai"
	"bimagent/internal/model"
	"bimagent/internal/pkg/docxextract"
	"bimagent/internal/pkg/pdfextract"
)

// Upserter persists chunk batches. Implementations must be idempotent:
// a chunk whose id already exists is skipped, not duplicated.
type Upserter interface {
	Upsert(ctx context.Context, chunks []model.KnowledgeChunk) (int64, error)
}

// Options tune a corpus scan. Zero values fall back to the defaults the
// corpus was originally indexed with, so re-runs stay idempotent.
type Options struct {
	CorpusDir     string
	Collection    string
	ChunkSize     int
	ChunkOverlap  int
	MinChunkChars int
	MinPageChars  int
	MaxFileMB     int
	UpsertBatch   int
	EmbedBatch    int
}

func (o *Options) applyDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap <= 0 {
		o.ChunkOverlap = DefaultChunkOverlap
	}
	if o.MinChunkChars <= 0 {
		o.MinChunkChars = 30
	}
	if o.MinPageChars <= 0 {
		o.MinPageChars = 100
	}
	if o.MaxFileMB <= 0 {
		o.MaxFileMB = 50
	}
	if o.UpsertBatch <= 0 {
		o.UpsertBatch = 500
	}
	if o.EmbedBatch <= 0 {
		o.EmbedBatch = 10
	}
}

// Stats summarizes one ingestion run.
type Stats struct {
	FilesProcessed int `json:"files_processed"`
	FilesSkipped   int `json:"files_skipped"`
	FilesFailed    int `json:"files_failed"`
	ChunksSeen     int `json:"chunks_seen"`
	ChunksInserted int `json:"chunks_inserted"`
}

// Ingestor walks a PDF/DOCX corpus, chunks each page, embeds the chunks
// and upserts them into the index store under content-hash ids.
type Ingestor struct {
	embedder ai.Embedder
	store    Upserter
	opts     Options
}

func NewIngestor(embedder ai.Embedder, store Upserter, opts Options) *Ingestor {
	opts.applyDefaults()
	return &Ingestor{embedder: embedder, store: store, opts: opts}
}

// page is one unit of extracted text. DOCX files produce a single page
// numbered 1.
type page struct {
	number int
	text   string
}

// Run scans the corpus directory. A file that fails to extract or embed
// is logged and skipped; it never aborts the run.
func (ing *Ingestor) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	root := ing.opts.CorpusDir
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("corpus directory %s: %w", root, err)
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".pdf" && ext != ".docx" {
			return nil
		}
		if skip, reason := ing.shouldSkip(path, d); skip {
			log.Printf("ingest: skip %s (%s)", path, reason)
			stats.FilesSkipped++
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		rel = filepath.ToSlash(rel)

		inserted, seen, fileErr := ing.ingestFile(ctx, path, rel, ext)
		if fileErr != nil {
			log.Printf("ingest: file %s failed: %v", rel, fileErr)
			stats.FilesFailed++
			return nil
		}
		stats.FilesProcessed++
		stats.ChunksSeen += seen
		stats.ChunksInserted += int(inserted)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walk corpus failed: %w", err)
	}

	log.Printf("ingest: done, %d files (%d skipped, %d failed), %d/%d chunks inserted",
		stats.FilesProcessed, stats.FilesSkipped, stats.FilesFailed,
		stats.ChunksInserted, stats.ChunksSeen)
	return stats, nil
}

func (ing *Ingestor) shouldSkip(path string, d fs.DirEntry) (bool, string) {
	name := d.Name()
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
		return true, "lock or hidden file"
	}
	if strings.Contains(path, "__MACOSX") {
		return true, "macOS resource fork"
	}
	info, err := d.Info()
	if err != nil {
		return true, "stat failed"
	}
	if info.Size() > int64(ing.opts.MaxFileMB)*1024*1024 {
		return true, fmt.Sprintf(">%dMB", ing.opts.MaxFileMB)
	}
	return false, ""
}

func (ing *Ingestor) ingestFile(ctx context.Context, path, source, ext string) (inserted int64, seen int, err error) {
	pages, err := ing.extract(path, ext)
	if err != nil {
		return 0, 0, err
	}
	if len(pages) == 0 {
		return 0, 0, nil
	}

	category := DetectCategory(filepath.Base(path))
	modelID := ing.embedder.Model()

	var pending []model.KnowledgeChunk
	for _, pg := range pages {
		for ci, chunk := range Chunk(pg.text, ing.opts.ChunkSize, ing.opts.ChunkOverlap) {
			if len([]rune(strings.TrimSpace(chunk))) < ing.opts.MinChunkChars {
				continue
			}
			seen++
			pending = append(pending, model.KnowledgeChunk{
				ID:         ChunkID(source, pg.number, ci, chunk),
				Collection: ing.opts.Collection,
				Model:      modelID,
				Source:     source,
				Category:   category,
				Page:       pg.number,
				ChunkIndex: ci,
				Text:       chunk,
			})

			if len(pending) >= ing.opts.UpsertBatch {
				n, flushErr := ing.flush(ctx, pending)
				if flushErr != nil {
					return inserted, seen, flushErr
				}
				inserted += n
				pending = pending[:0]
			}
		}
	}

	if len(pending) > 0 {
		n, flushErr := ing.flush(ctx, pending)
		if flushErr != nil {
			return inserted, seen, flushErr
		}
		inserted += n
	}
	return inserted, seen, nil
}

// flush embeds a batch and hands it to the store.
func (ing *Ingestor) flush(ctx context.Context, chunks []model.KnowledgeChunk) (int64, error) {
	for i := 0; i < len(chunks); i += ing.opts.EmbedBatch {
		end := i + ing.opts.EmbedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-i)
		for _, c := range chunks[i:end] {
			texts = append(texts, c.Text)
		}
		vectors, err := ing.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed batch failed: %w", err)
		}
		if len(vectors) != len(texts) {
			return 0, fmt.Errorf("embed batch returned %d vectors for %d texts", len(vectors), len(texts))
		}
		for j := range vectors {
			chunks[i+j].SetEmbedding(vectors[j])
		}
	}
	return ing.store.Upsert(ctx, chunks)
}

func (ing *Ingestor) extract(path, ext string) ([]page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file failed: %w", err)
	}
	defer f.Close()

	switch ext {
	case ".pdf":
		extracted, err := pdfextract.ExtractPages(f)
		if err != nil {
			return nil, fmt.Errorf("extract pdf failed: %w", err)
		}
		var pages []page
		for _, p := range extracted {
			text := strings.TrimSpace(p.Text)
			if len([]rune(text)) < ing.opts.MinPageChars {
				continue // image-only or near-empty page
			}
			pages = append(pages, page{number: p.Number, text: text})
		}
		return pages, nil
	case ".docx":
		text, err := docxextract.ExtractText(f)
		if err != nil {
			return nil, fmt.Errorf("extract docx failed: %w", err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, nil
		}
		return []page{{number: 1, text: text}}, nil
	default:
		return nil, fmt.Errorf("unsupported extension %s", ext)
	}
}

// ChunkID derives the stable content-hash id for a chunk:
// md5 over source, page, chunk index and the first 80 runes of the text.
// Re-ingesting unchanged content always produces the same ids.
func ChunkID(source string, pageNum, chunkIndex int, text string) string {
	runes := []rune(text)
	if len(runes) > 80 {
		runes = runes[:80]
	}
	data := fmt.Sprintf("%s|%d|%d|%s", source, pageNum, chunkIndex, string(runes))
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}
