package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"bimagent/internal/ai"
	"bimagent/internal/model"
	"bimagent/internal/repository"
	"bimagent/internal/verifier"
)

var ErrNoBEPDocument = errors.New("no generated bep for project")

const verifierMaxTokens = 8000

const verifierSystemPrompt = "You are a BIM compliance auditor. You compare a project's " +
	"BIM Execution Plan against a summary of the delivered BIM model and report every " +
	"deviation. Respond with a single JSON object, no commentary, with exactly these keys: " +
	`"report_markdown" (string, a markdown report), "checks" (array of ` +
	`{"id","label","status","details"} where status is "pass", "warning" or "fail") and ` +
	`"summary" ({"total_checks","pass_count","warning_count","fail_count","overall_status"}).`

// ModelSummary describes the delivered BIM model, supplied by the caller.
type ModelSummary struct {
	DisciplinesPresent []string       `json:"disciplines_present"`
	ElementCounts      map[string]int `json:"element_counts,omitempty"`
	LODObserved        string         `json:"lod_observed,omitempty"`
	SoftwareUsed       []string       `json:"software_used,omitempty"`
	Notes              string         `json:"notes,omitempty"`
}

// VerificationResult is the API-facing outcome of one verification run.
type VerificationResult struct {
	ReportMarkdown string           `json:"report_markdown"`
	Checks         []verifier.Check `json:"checks"`
	Summary        verifier.Summary `json:"summary"`
	DocumentID     uint             `json:"document_id"`
}

// VerifierService runs the BEP-vs-model compliance verification: it
// assembles the verification context, calls the model, recovers the
// structured report from whatever the model returned, and archives it.
type VerifierService struct {
	projectRepo *repository.ProjectRepository
	docRepo     *repository.DocumentRepository
	llmClient   *ai.OpenAICompatibleClient
	llmConfig   ai.ChatConfig
}

func NewVerifierService(
	projectRepo *repository.ProjectRepository,
	docRepo *repository.DocumentRepository,
	llmConfig ai.ChatConfig,
) *VerifierService {
	return &VerifierService{
		projectRepo: projectRepo,
		docRepo:     docRepo,
		llmClient:   ai.NewOpenAICompatibleClient(),
		llmConfig:   llmConfig,
	}
}

// VerifyBEP checks the project's latest generated BEP against the model
// summary and persists the recovered report as a generated document.
func (s *VerifierService) VerifyBEP(ctx context.Context, userID, projectID uint, summary ModelSummary) (*VerificationResult, error) {
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

	bepDoc, err := s.docRepo.LatestByProjectAndType(projectID, "bep")
	if err != nil {
		return nil, err
	}
	if bepDoc == nil {
		return nil, ErrNoBEPDocument
	}

	verificationContext := map[string]interface{}{
		"project_context": json.RawMessage(orEmptyObject(project.Context)),
		"bep_excerpt":     bepDoc.ContentMarkdown,
		"model_summary":   summary,
	}
	payload, err := json.Marshal(verificationContext)
	if err != nil {
		return nil, fmt.Errorf("marshal verification context failed: %w", err)
	}

	completion, err := s.llmClient.CompleteDetailed(ctx, s.llmConfig, []ai.ChatMessage{
		{Role: "system", Content: verifierSystemPrompt},
		{Role: "user", Content: string(payload)},
	}, verifierMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("verification completion failed: %w", err)
	}

	report, err := verifier.ExtractReport(completion.Content, stopReasonFromFinish(completion.FinishReason))
	if err != nil {
		return nil, fmt.Errorf("recover verification report failed: %w", err)
	}

	doc := &model.GeneratedDocument{
		ProjectID:       project.ID,
		UserID:          userID,
		DocType:         "bep_verification_report",
		Title:           fmt.Sprintf("BEP vs Model verification report - %s", project.Code),
		ContentMarkdown: report.ReportMarkdown,
		SummaryStatus:   report.Summary.OverallStatus,
		FailCount:       report.Summary.FailCount,
		WarningCount:    report.Summary.WarningCount,
	}
	if err := s.docRepo.Create(doc); err != nil {
		return nil, err
	}
	log.Printf("verifier: report saved, project %d, document %d, status %s",
		project.ID, doc.ID, report.Summary.OverallStatus)

	return &VerificationResult{
		ReportMarkdown: report.ReportMarkdown,
		Checks:         report.Checks,
		Summary:        *report.Summary,
		DocumentID:     doc.ID,
	}, nil
}

// History lists past verification reports for the project, newest first.
func (s *VerifierService) History(userID, projectID uint) ([]model.GeneratedDocument, error) {
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
	return s.docRepo.ListByProjectID(projectID, "bep_verification_report")
}

// stopReasonFromFinish maps OpenAI-style finish reasons onto the
// recoverer's stop-reason signal.
func stopReasonFromFinish(finishReason string) verifier.StopReason {
	switch strings.ToLower(strings.TrimSpace(finishReason)) {
	case "stop", "end_turn", "":
		return verifier.StopComplete
	case "length", "max_tokens":
		return verifier.StopLengthLimited
	default:
		return verifier.StopOther
	}
}

func orEmptyObject(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "{}"
	}
	return raw
}
