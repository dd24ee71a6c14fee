package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bimagent/internal/app"
	"bimagent/internal/transport/http/response"
)

type RAGHandler struct {
	ragAdmin *app.RAGAdminService
}

type RAGQueryRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k"`
}

func NewRAGHandler(ragAdmin *app.RAGAdminService) *RAGHandler {
	return &RAGHandler{ragAdmin: ragAdmin}
}

// Status reports the index state so the UI can gate RAG features.
func (h *RAGHandler) Status(c *gin.Context) {
	response.OK(c, h.ragAdmin.Status())
}

// Query runs a raw retrieval without any chat wrapping. The result
// degrades to empty when the index is not ready.
func (h *RAGHandler) Query(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req RAGQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	response.OK(c, h.ragAdmin.Query(c.Request.Context(), req.Question, req.TopK))
}

// Reindex starts a background corpus ingestion run. Only one run may
// be in flight.
func (h *RAGHandler) Reindex(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	if err := h.ragAdmin.StartReindex(); err != nil {
		switch {
		case errors.Is(err, app.ErrReindexInProgress):
			response.Error(c, http.StatusConflict, response.CodeConflict, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "start reindex failed")
		}
		return
	}

	response.OK(c, gin.H{"started": true})
}

// ReindexState is the pollable progress of the background run.
func (h *RAGHandler) ReindexState(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	response.OK(c, h.ragAdmin.ReindexState())
}

// ListCorpus returns per-file chunk counts of the indexed corpus.
func (h *RAGHandler) ListCorpus(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sources, err := h.ragAdmin.ListCorpus(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list corpus failed")
		return
	}

	response.OK(c, sources)
}

// UploadCorpus accepts one PDF or DOCX in a multipart form under
// "file" and stores it for the next reindex run.
func (h *RAGHandler) UploadCorpus(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	stored, err := h.ragAdmin.UploadCorpusFile(file.Filename, f)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrUnsupportedFile), errors.Is(err, app.ErrFileTooLarge):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "store corpus file failed")
		}
		return
	}

	response.OK(c, gin.H{"stored": stored})
}
