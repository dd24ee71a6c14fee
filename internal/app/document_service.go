package app

import (
	"errors"

	"bimagent/internal/model"
	"bimagent/internal/repository"
)

var ErrDocumentNotFound = errors.New("document not found")

// DocumentService reads and removes generated documents. Generation
// itself goes through the async job pipeline.
type DocumentService struct {
	docRepo     *repository.DocumentRepository
	projectRepo *repository.ProjectRepository
}

func NewDocumentService(docRepo *repository.DocumentRepository, projectRepo *repository.ProjectRepository) *DocumentService {
	return &DocumentService{docRepo: docRepo, projectRepo: projectRepo}
}

// List returns the user's documents, optionally scoped to one project
// and filtered by doc type.
func (s *DocumentService) List(userID, projectID uint, docType string) ([]model.GeneratedDocument, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if projectID == 0 {
		return s.docRepo.ListByUserID(userID)
	}

	project, err := s.projectRepo.GetByIDAndUserID(projectID, userID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	return s.docRepo.ListByProjectID(projectID, docType)
}

func (s *DocumentService) Get(userID, docID uint) (*model.GeneratedDocument, error) {
	if userID == 0 || docID == 0 {
		return nil, ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndUserID(docID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *DocumentService) Delete(userID, docID uint) error {
	if _, err := s.Get(userID, docID); err != nil {
		return err
	}
	return s.docRepo.DeleteByIDAndUserID(docID, userID)
}
