package model

import (
	"encoding/json"
	"time"
)

// KnowledgeChunk is one indexed fragment of the document corpus.
// ID is a content hash, so re-ingesting the same corpus is a no-op.
// Embedding is stored as a JSON array of float32 for portability.
type KnowledgeChunk struct {
	ID         string    `gorm:"primaryKey;size:32" json:"id"`
	Collection string    `gorm:"size:64;not null;index" json:"collection"`
	Model      string    `gorm:"size:128;not null" json:"model"`
	Source     string    `gorm:"size:256;not null;index" json:"source"`
	Category   string    `gorm:"size:64;not null" json:"category"`
	Page       int       `gorm:"not null" json:"page"`
	ChunkIndex int       `gorm:"not null" json:"chunk_index"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	Embedding  string    `gorm:"type:mediumtext" json:"-"` // JSON array of float32
	CreatedAt  time.Time `json:"created_at"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *KnowledgeChunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

// SetEmbedding stores the embedding as JSON.
func (c *KnowledgeChunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}
