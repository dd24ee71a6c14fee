package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"bimagent/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.GeneratedDocument) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create generated document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByIDAndUserID(docID, userID uint) (*model.GeneratedDocument, error) {
	var doc model.GeneratedDocument
	err := r.db.Where("id = ? AND user_id = ?", docID, userID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get generated document failed: %w", err)
	}
	return &doc, nil
}

// ListByProjectID returns documents newest first, optionally filtered by
// doc type ("" = all).
func (r *DocumentRepository) ListByProjectID(projectID uint, docType string) ([]model.GeneratedDocument, error) {
	query := r.db.Where("project_id = ?", projectID)
	if docType != "" {
		query = query.Where("doc_type = ?", docType)
	}

	var docs []model.GeneratedDocument
	if err := query.Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list generated documents failed: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) ListByUserID(userID uint) ([]model.GeneratedDocument, error) {
	var docs []model.GeneratedDocument
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list user documents failed: %w", err)
	}
	return docs, nil
}

// LatestByProjectAndType returns the most recent document of a type, or
// nil when none exists.
func (r *DocumentRepository) LatestByProjectAndType(projectID uint, docType string) (*model.GeneratedDocument, error) {
	var doc model.GeneratedDocument
	err := r.db.Where("project_id = ? AND doc_type = ?", projectID, docType).
		Order("created_at DESC").First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) DeleteByIDAndUserID(docID, userID uint) error {
	if err := r.db.Where("id = ? AND user_id = ?", docID, userID).Delete(&model.GeneratedDocument{}).Error; err != nil {
		return fmt.Errorf("delete generated document failed: %w", err)
	}
	return nil
}
