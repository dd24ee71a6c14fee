package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bimagent/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// UpsertBatch inserts chunks, silently skipping ids that already exist.
// Returns the number of rows actually inserted.
func (r *ChunkRepository) UpsertBatch(ctx context.Context, chunks []model.KnowledgeChunk) (int64, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&chunks)
	if tx.Error != nil {
		return 0, fmt.Errorf("upsert knowledge chunks failed: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

// ListByCollection returns every chunk of a collection, embeddings included.
func (r *ChunkRepository) ListByCollection(ctx context.Context, collection string) ([]model.KnowledgeChunk, error) {
	var chunks []model.KnowledgeChunk
	if err := r.db.WithContext(ctx).
		Where("collection = ?", collection).
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list knowledge chunks failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) CountByCollection(ctx context.Context, collection string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.KnowledgeChunk{}).
		Where("collection = ?", collection).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count knowledge chunks failed: %w", err)
	}
	return count, nil
}

// DistinctModels returns the embedding model ids recorded in a collection.
// A healthy collection has exactly one.
func (r *ChunkRepository) DistinctModels(ctx context.Context, collection string) ([]string, error) {
	var models []string
	if err := r.db.WithContext(ctx).
		Model(&model.KnowledgeChunk{}).
		Where("collection = ?", collection).
		Distinct("model").
		Pluck("model", &models).Error; err != nil {
		return nil, fmt.Errorf("list collection models failed: %w", err)
	}
	return models, nil
}

// SourceSummary aggregates per-file chunk counts for corpus listings.
type SourceSummary struct {
	Source     string `json:"source"`
	Category   string `json:"category"`
	ChunkCount int    `json:"chunk_count"`
}

func (r *ChunkRepository) ListSources(ctx context.Context, collection string) ([]SourceSummary, error) {
	var sources []SourceSummary
	if err := r.db.WithContext(ctx).
		Model(&model.KnowledgeChunk{}).
		Select("source, category, COUNT(*) AS chunk_count").
		Where("collection = ?", collection).
		Group("source, category").
		Order("source ASC").
		Scan(&sources).Error; err != nil {
		return nil, fmt.Errorf("list corpus sources failed: %w", err)
	}
	return sources, nil
}
