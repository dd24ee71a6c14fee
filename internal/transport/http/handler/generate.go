package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bimagent/internal/app"
	"bimagent/internal/transport/http/response"
)

type GenerateHandler struct {
	generationService *app.GenerationService
}

type StartGenerationRequest struct {
	ProjectID uint   `json:"project_id" binding:"required,gt=0"`
	DocType   string `json:"doc_type" binding:"required"`
}

func NewGenerateHandler(generationService *app.GenerationService) *GenerateHandler {
	return &GenerateHandler{generationService: generationService}
}

// DocTypes lists the supported generators.
func (h *GenerateHandler) DocTypes(c *gin.Context) {
	response.OK(c, app.DocTypes())
}

// Start enqueues one generation job and returns the job id to poll.
func (h *GenerateHandler) Start(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req StartGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	jobID, err := h.generationService.StartGeneration(c.Request.Context(), userID, req.ProjectID, req.DocType)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrUnknownDocType):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrProjectNotFound):
			response.Error(c, http.StatusNotFound, response.CodeProjectNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "start generation failed")
		}
		return
	}

	response.OK(c, gin.H{"job_id": jobID, "status": "queued"})
}

// Status returns the pollable state of one job.
func (h *GenerateHandler) Status(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	status, err := h.generationService.JobStatus(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrJobNotFound):
			response.Error(c, http.StatusNotFound, response.CodeJobNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get job status failed")
		}
		return
	}

	response.OK(c, status)
}
