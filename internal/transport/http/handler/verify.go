package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bimagent/internal/app"
	"bimagent/internal/transport/http/response"
)

type VerifyHandler struct {
	verifierService *app.VerifierService
}

type VerifyBEPRequest struct {
	ProjectID    uint             `json:"project_id" binding:"required,gt=0"`
	ModelSummary app.ModelSummary `json:"model_summary" binding:"required"`
}

func NewVerifyHandler(verifierService *app.VerifierService) *VerifyHandler {
	return &VerifyHandler{verifierService: verifierService}
}

// VerifyBEP compares the project's latest generated BEP against the
// submitted model summary and returns the structured report.
func (h *VerifyHandler) VerifyBEP(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req VerifyBEPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if len(req.ModelSummary.DisciplinesPresent) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "model_summary.disciplines_present must not be empty")
		return
	}

	result, err := h.verifierService.VerifyBEP(c.Request.Context(), userID, req.ProjectID, req.ModelSummary)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrProjectNotFound):
			response.Error(c, http.StatusNotFound, response.CodeProjectNotFound, err.Error())
		case errors.Is(err, app.ErrNoBEPDocument):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "verification failed")
		}
		return
	}

	response.OK(c, result)
}

// History lists the project's archived verification reports.
func (h *VerifyHandler) History(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	projectID, err := parseUintParam(c, "project_id")
	if err != nil || projectID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid project id")
		return
	}

	reports, err := h.verifierService.History(userID, projectID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrProjectNotFound):
			response.Error(c, http.StatusNotFound, response.CodeProjectNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list verification history failed")
		}
		return
	}

	response.OK(c, reports)
}
