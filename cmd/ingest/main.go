package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"bimagent/internal/ai"
	"bimagent/internal/config"
	"bimagent/internal/ingest"
	"bimagent/internal/model"
	mysqlClient "bimagent/internal/platform/mysql"
	"bimagent/internal/repository"
)

// One-shot corpus ingestion: scan the corpus directory, embed every
// chunk, upsert into the collection. Safe to re-run; existing chunk ids
// are skipped.
func main() {
	_ = godotenv.Load()

	corpusDir := flag.String("corpus", "", "corpus directory (defaults to the configured one)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *corpusDir != "" {
		cfg.Ingest.CorpusDir = *corpusDir
	}

	ctx := context.Background()

	db, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		log.Fatalf("connect mysql failed: %v", err)
	}
	if err := db.AutoMigrate(&model.KnowledgeChunk{}); err != nil {
		log.Fatalf("auto migrate failed: %v", err)
	}

	var embedder ai.Embedder
	if cfg.Embedding.Provider == "local" {
		embedder = ai.NewLocalEmbedder(ai.LocalEmbedderConfig{
			ModelPath: cfg.Embedding.ModelPath,
			VocabPath: cfg.Embedding.VocabPath,
			LibPath:   cfg.Embedding.ONNXLib,
			ModelID:   cfg.Embedding.Model,
			MaxSeqLen: cfg.Embedding.MaxSeqLen,
			Dims:      cfg.Embedding.Dimensions,
		})
	} else {
		embedder = ai.NewAPIEmbedder(ai.NewOpenAICompatibleClient(), ai.EmbeddingConfig{
			BaseURL: cfg.Embedding.BaseURL,
			APIKey:  cfg.Embedding.APIKey,
			Model:   cfg.Embedding.Model,
		})
	}

	chunkRepo := repository.NewChunkRepository(db)
	ingestor := ingest.NewIngestor(embedder, chunkStore{chunkRepo}, ingest.Options{
		CorpusDir:     cfg.Ingest.CorpusDir,
		Collection:    cfg.Index.Collection,
		ChunkSize:     cfg.Ingest.ChunkSize,
		ChunkOverlap:  cfg.Ingest.ChunkOverlap,
		MinChunkChars: cfg.Ingest.MinChunkChars,
		MinPageChars:  cfg.Ingest.MinPageChars,
		MaxFileMB:     cfg.Ingest.MaxFileMB,
		UpsertBatch:   cfg.Ingest.UpsertBatch,
		EmbedBatch:    cfg.Ingest.EmbedBatch,
	})

	stats, err := ingestor.Run(ctx)
	if err != nil {
		log.Fatalf("ingestion failed: %v", err)
	}
	log.Printf("ingestion complete: %d files processed, %d skipped, %d failed, %d/%d chunks inserted",
		stats.FilesProcessed, stats.FilesSkipped, stats.FilesFailed,
		stats.ChunksInserted, stats.ChunksSeen)
}

// chunkStore adapts the repository to the ingestor without going through
// the in-memory index; the server reloads on its next reindex.
type chunkStore struct {
	repo *repository.ChunkRepository
}

func (s chunkStore) Upsert(ctx context.Context, chunks []model.KnowledgeChunk) (int64, error) {
	return s.repo.UpsertBatch(ctx, chunks)
}
