package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"bimagent/internal/ai"
	"bimagent/internal/cache"
	"bimagent/internal/model"
	"bimagent/internal/repository"
)

var (
	ErrUnknownDocType = errors.New("unknown document type")
	ErrJobNotFound    = errors.New("generation job not found")
)

// GenerationJob is the queue message for one async document generation.
type GenerationJob struct {
	JobID     string `json:"job_id"`
	UserID    uint   `json:"user_id"`
	ProjectID uint   `json:"project_id"`
	DocType   string `json:"doc_type"`
}

// JobPublisher enqueues generation jobs for the background worker.
type JobPublisher interface {
	PublishJob(ctx context.Context, job GenerationJob) error
}

// JobStatusStore records pollable job states.
type JobStatusStore interface {
	Set(ctx context.Context, status cache.JobStatus) error
	Get(ctx context.Context, jobID string) (*cache.JobStatus, error)
}

const generationSystemPrompt = "You are a senior BIM expert specialized in ISO 19650, " +
	"BEP, EIR, LOD and CDE. You produce complete, professional project documents. " +
	"Use the supplied project context where it exists; fall back to the international " +
	"standards otherwise. Format the answer as Markdown: ## for chapters, ### for " +
	"subchapters, - for lists."

// docTemplate drives one generator: the retrieval queries that build the
// project context and the prompt skeleton fed to the model.
type docTemplate struct {
	Label   string
	Queries []string
	Prompt  string
	// static templates render without an LLM call
	Static func(projectName string) string
}

var docTemplates = map[string]docTemplate{
	"bep": {
		Label: "BIM Execution Plan (BEP)",
		Queries: []string{
			"contract scope client designer",
			"BIM modeling requirements software deliverables",
			"Common Data Environment CDE platform",
			"LOD level of detail project phases",
			"ISO 19650 BIM standards",
			"BIM team manager coordinator responsibilities",
		},
		Prompt: `Generate a complete BEP (BIM Execution Plan) for the project: **%s**

Context from the project documents:
%s

Include ALL standard sections:
## 1. General project information
## 2. BIM objectives (OIR / AIR / PIR)
## 3. BIM team - roles and responsibilities (RACI)
## 4. Common Data Environment (CDE)
## 5. Standards, software and formats
## 6. Levels of detail (LOD 100-400) per phase
## 7. BIM deliverables and schedule
## 8. Coordination and clash detection
## 9. As-built documentation and handover
## 10. BIM quality management
## 11. Approvals and revision history

Be detailed and professional. Minimum 800 words.`,
	},
	"lod": {
		Label: "LOD / LOI Matrix",
		Queries: []string{
			"project phases design execution handover",
			"BIM elements structures services architecture",
			"LOD level of detail deliverables",
		},
		Prompt: `Generate a complete LOD matrix for the project: **%s**

Context:
%s

## 1. Introduction - what LOD is
## 2. LOD definitions (100 / 200 / 300 / 350 / 400)
## 3. LOD matrix per element and phase
(describe textually: Element | Design | Detail | Execution | As-Built | Notes)
## 4. LOD responsibilities per role
## 5. LOD verification and validation

Be specific. Include at least 15 BIM element types relevant to the project.`,
	},
	"eir": {
		Label: "Employer's Information Requirements (EIR)",
		Queries: []string{
			"client information requirements project",
			"BIM objectives client investor",
			"ISO 19650 EIR requirements",
			"deliverables handover documentation",
		},
		Prompt: `Generate a complete EIR (Employer's Information Requirements) for the project: **%s**

Context:
%s

## 1. Purpose of the EIR
## 2. The employer's BIM objectives
## 3. Organizational information requirements (OIR)
## 4. Asset information requirements (AIR)
## 5. Technical requirements (software, formats, standards)
## 6. Management requirements (CDE, processes, team)
## 7. Commercial requirements (deadlines, penalties, deliverables)
## 8. Acceptance criteria
## 9. Annexes - requested templates

Conforming to ISO 19650-2. Professional and detailed.`,
	},
	"requirements": {
		Label: "BIM Requirements Extraction",
		Queries: []string{
			"BIM modeling requirements digital project",
			"BIM software Revit IFC file formats",
			"BIM deliverables models phases handover",
			"BIM manager coordinator team responsibilities",
			"Common Data Environment CDE information management",
			"LOD level of detail BIM models",
			"as-built final documentation handover",
			"ISO 19650 standards applicable to the project",
			"coordination clash detection models",
		},
		Prompt: `Based on the fragments below extracted from the documents of project '%s', summarize the BIM requirements identified and recommend what is missing:

%s`,
	},
	"checklist": {
		Label: "BIM Coordination Checklist",
		Queries: []string{
			"BIM coordination clash detection interferences",
			"BIM model quality verification",
			"BIM coordination meetings",
		},
		Prompt: `Generate a detailed BIM coordination checklist for the project: **%s**

Context:
%s

## 1. Pre-modeling checklist (before start)
## 2. Model quality checklist (per discipline)
## 3. Coordination checklist (federated models, clash detection)
## 4. BIM meeting checklist (agenda, minutes)
## 5. CDE publication checklist
## 6. As-built model acceptance checklist

Format each item as: - [ ] Action description (Owner: X | Due: Y)
At least 50 items in total.`,
	},
	"minutes": {
		Label:  "BIM Meeting Minutes",
		Static: minutesTemplate,
	},
	"iso": {
		Label: "ISO 19650 Compliance Analysis",
		Queries: []string{
			"ISO 19650 requirements BIM standards",
			"OIR AIR PIR information requirements",
			"CDE BEP EIR BIM processes",
		},
		Prompt: `Analyze the compliance of project **%s** with EN ISO 19650.

Context from the project documents:
%s

## 1. Compliance summary (estimated score out of 10)
## 2. ISO 19650-1 - concepts and principles - status
## 3. ISO 19650-2 - delivery phase - status
   ### 3.1 EIR requirements - compliance
   ### 3.2 BEP - compliance
   ### 3.3 CDE - compliance
   ### 3.4 Deliverables - compliance
## 4. Identified gaps (what is missing)
## 5. Priority recommendations (top 5 actions)
## 6. ISO 19650 compliance roadmap

Be critical and constructive. Identify the real gaps.`,
	},
}

// DocTypes lists the supported generator ids with their labels.
func DocTypes() map[string]string {
	out := make(map[string]string, len(docTemplates))
	for id, tpl := range docTemplates {
		out[id] = tpl.Label
	}
	return out
}

type GenerationService struct {
	projectRepo *repository.ProjectRepository
	docRepo     *repository.DocumentRepository
	retriever   Retriever
	publisher   JobPublisher
	jobs        JobStatusStore
	llmClient   *ai.OpenAICompatibleClient
	llmConfig   ai.ChatConfig
}

func NewGenerationService(
	projectRepo *repository.ProjectRepository,
	docRepo *repository.DocumentRepository,
	retriever Retriever,
	publisher JobPublisher,
	jobs JobStatusStore,
	llmConfig ai.ChatConfig,
) *GenerationService {
	return &GenerationService{
		projectRepo: projectRepo,
		docRepo:     docRepo,
		retriever:   retriever,
		publisher:   publisher,
		jobs:        jobs,
		llmClient:   ai.NewOpenAICompatibleClient(),
		llmConfig:   llmConfig,
	}
}

// StartGeneration validates the request, records a queued job, and hands
// it to the worker queue. The returned job id is the polling handle.
func (s *GenerationService) StartGeneration(ctx context.Context, userID, projectID uint, docType string) (string, error) {
	if userID == 0 || projectID == 0 {
		return "", ErrInvalidInput
	}
	if _, ok := docTemplates[docType]; !ok {
		return "", ErrUnknownDocType
	}

	project, err := s.projectRepo.GetByIDAndUserID(projectID, userID)
	if err != nil {
		return "", err
	}
	if project == nil {
		return "", ErrProjectNotFound
	}

	job := GenerationJob{
		JobID:     uuid.NewString(),
		UserID:    userID,
		ProjectID: projectID,
		DocType:   docType,
	}
	if err := s.jobs.Set(ctx, cache.JobStatus{
		JobID:     job.JobID,
		Status:    cache.JobQueued,
		DocType:   docType,
		ProjectID: projectID,
	}); err != nil {
		return "", err
	}
	if err := s.publisher.PublishJob(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue generation job failed: %w", err)
	}
	return job.JobID, nil
}

// JobStatus returns the pollable state of a job.
func (s *GenerationService) JobStatus(ctx context.Context, jobID string) (*cache.JobStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, ErrInvalidInput
	}
	status, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, ErrJobNotFound
	}
	return status, nil
}

// Execute runs one job to completion: build the grounded context, call
// the model, persist the markdown document, record the final status.
// Retrieval is read-only, so a failed job can simply be re-enqueued.
func (s *GenerationService) Execute(ctx context.Context, job GenerationJob) error {
	markStatus := func(status cache.JobStatus) {
		status.JobID = job.JobID
		status.DocType = job.DocType
		status.ProjectID = job.ProjectID
		if err := s.jobs.Set(ctx, status); err != nil {
			log.Printf("generation: record job %s status failed: %v", job.JobID, err)
		}
	}
	markStatus(cache.JobStatus{Status: cache.JobRunning})

	project, err := s.projectRepo.GetByIDAndUserID(job.ProjectID, job.UserID)
	if err == nil && project == nil {
		err = ErrProjectNotFound
	}
	if err != nil {
		markStatus(cache.JobStatus{Status: cache.JobFailed, Error: err.Error()})
		return err
	}

	content, err := s.generate(ctx, project, job.DocType)
	if err != nil {
		markStatus(cache.JobStatus{Status: cache.JobFailed, Error: err.Error()})
		return err
	}

	tpl := docTemplates[job.DocType]
	doc := &model.GeneratedDocument{
		ProjectID:       project.ID,
		UserID:          job.UserID,
		DocType:         job.DocType,
		Title:           fmt.Sprintf("%s - %s", tpl.Label, project.Name),
		ContentMarkdown: content,
	}
	if err := s.docRepo.Create(doc); err != nil {
		markStatus(cache.JobStatus{Status: cache.JobFailed, Error: err.Error()})
		return err
	}

	markStatus(cache.JobStatus{Status: cache.JobDone, DocumentID: doc.ID})
	return nil
}

func (s *GenerationService) generate(ctx context.Context, project *model.Project, docType string) (string, error) {
	tpl, ok := docTemplates[docType]
	if !ok {
		return "", ErrUnknownDocType
	}
	if tpl.Static != nil {
		return tpl.Static(project.Name), nil
	}

	ragContext := s.projectContext(ctx, project.Name, tpl.Queries)
	if ragContext == "" {
		ragContext = "No project-specific context available - use the general BIM and ISO 19650 standards."
	}
	if project.Context != "" {
		ragContext = "Project data:\n" + project.Context + "\n\n---\n\n" + ragContext
	}

	prompt := fmt.Sprintf(tpl.Prompt, project.Name, ragContext)
	completion, err := s.llmClient.Complete(ctx, s.llmConfig, []ai.ChatMessage{
		{Role: "system", Content: generationSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("generate %s failed: %w", docType, err)
	}
	content := strings.TrimSpace(completion)
	if content == "" {
		return "", fmt.Errorf("generate %s: model returned empty content", docType)
	}
	return content, nil
}

// projectContext runs the template's retrieval queries scoped to the
// project and joins the grounded fragments.
func (s *GenerationService) projectContext(ctx context.Context, projectName string, queries []string) string {
	if s.retriever == nil {
		return ""
	}
	var parts []string
	for _, q := range queries {
		question := q
		if projectName != "" {
			question = q + " " + projectName
		}
		result := s.retriever.Retrieve(ctx, question, 0)
		if result.RAGUsed && result.Context != "" {
			parts = append(parts, result.Context)
		}
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func minutesTemplate(projectName string) string {
	today := time.Now().Format("02.01.2006")
	return fmt.Sprintf(`## Meeting details

| Field | Value |
|---|---|
| Project | %s |
| Date | %s |
| Time | ________ |
| Location / Link | ________ |
| Moderator | BIM Manager - ________________ |
| Secretary | ________________ |
| Meeting no. | BIM-MTG-____ |

## Participants

| Name | Organization | BIM role | Present |
|---|---|---|---|
| ________________ | ________________ | BIM Manager | yes / no |
| ________________ | ________________ | BIM Coordinator | yes / no |
| ________________ | ________________ | BIM Author | yes / no |
| ________________ | ________________ | Contractor BIM | yes / no |
| ________________ | ________________ | Client representative | yes / no |

## Agenda

| No. | Topic | Owner | Duration |
|---|---|---|---|
| 1 | Opening - attendance and agenda approval | Moderator | 5 min |
| 2 | Review of actions from the previous meeting | Moderator | 10 min |
| 3 | BIM model status per discipline | BIM Coordinators | 15 min |
| 4 | Clash detection - new and resolved issues | BIM Manager | 20 min |
| 5 | Open RFI coordination | Contractor BIM | 10 min |
| 6 | Other topics | All | 5 min |
| 7 | Next actions and next meeting date | Moderator | 5 min |

## Discussions and decisions

_Record the outcome of each agenda point._

## Action plan

| # | Action | Owner | Due | Status |
|---|---|---|---|---|
| 1 | ________________ | ________ | ________ | open |
| 2 | ________________ | ________ | ________ | open |
| 3 | ________________ | ________ | ________ | open |

## Minutes approval

| Role | Name | Signature | Date |
|---|---|---|---|
| Moderator / BIM Manager | ________________ | ________________ | ________ |
| Client representative | ________________ | ________________ | ________ |
`, projectName, today)
}
