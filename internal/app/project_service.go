package app

import (
	"encoding/json"
	"errors"
	"strings"

	"bimagent/internal/model"
	"bimagent/internal/repository"
)

var (
	ErrProjectNotFound   = errors.New("project not found")
	ErrProjectCodeExists = errors.New("project code already exists")
	ErrInvalidContext    = errors.New("project context is not valid json")
)

type ProjectService struct {
	projectRepo *repository.ProjectRepository
}

func NewProjectService(projectRepo *repository.ProjectRepository) *ProjectService {
	return &ProjectService{projectRepo: projectRepo}
}

type CreateProjectInput struct {
	UserID      uint
	Code        string
	Name        string
	Description string
}

func (s *ProjectService) Create(input CreateProjectInput) (*model.Project, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if input.UserID == 0 || code == "" || name == "" {
		return nil, ErrInvalidInput
	}

	existing, err := s.projectRepo.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrProjectCodeExists
	}

	project := &model.Project{
		UserID:      input.UserID,
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
	}
	if err := s.projectRepo.Create(project); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *ProjectService) List(userID uint) ([]model.Project, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.projectRepo.ListByUserID(userID)
}

func (s *ProjectService) Get(userID, projectID uint) (*model.Project, error) {
	if userID == 0 || projectID == 0 {
		return nil, ErrInvalidInput
	}
	project, err := s.projectRepo.GetByIDAndUserID(projectID, userID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

func (s *ProjectService) Delete(userID, projectID uint) error {
	if _, err := s.Get(userID, projectID); err != nil {
		return err
	}
	return s.projectRepo.DeleteByIDAndUserID(projectID, userID)
}

// SetContext stores the project-context JSON used as generation and
// verification input. The payload must at least parse.
func (s *ProjectService) SetContext(userID, projectID uint, contextJSON string) (*model.Project, error) {
	project, err := s.Get(userID, projectID)
	if err != nil {
		return nil, err
	}

	contextJSON = strings.TrimSpace(contextJSON)
	if contextJSON != "" && !json.Valid([]byte(contextJSON)) {
		return nil, ErrInvalidContext
	}

	project.Context = contextJSON
	if err := s.projectRepo.Update(project); err != nil {
		return nil, err
	}
	return project, nil
}
