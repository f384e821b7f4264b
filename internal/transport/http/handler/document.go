package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"coursepilot/internal/ingest"
	"coursepilot/internal/transport/http/response"
)

type DocumentHandler struct {
	orchestrator *ingest.Orchestrator
}

func NewDocumentHandler(orchestrator *ingest.Orchestrator) *DocumentHandler {
	return &DocumentHandler{orchestrator: orchestrator}
}

// Upload accepts a multipart form with "file" and "course_id". Validation is
// synchronous; parsing and chunking run in the background and progress is
// observable through the document's status.
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	courseID := parseUintForm(c, "course_id")
	if courseID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid course_id")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}

	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(file.Filename)))
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	doc, err := h.orchestrator.Upload(c.Request.Context(), ingest.UploadInput{
		UserID:   userID,
		CourseID: courseID,
		Filename: file.Filename,
		MimeType: mimeType,
		Data:     data,
	})
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnsupportedType):
			response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFormat, err.Error())
		case errors.Is(err, ingest.ErrOversizeInput):
			response.Error(c, http.StatusBadRequest, response.CodeOversizeInput, err.Error())
		case errors.Is(err, ingest.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, ingest.ErrPublishIngestJob):
			response.Error(c, http.StatusServiceUnavailable, response.CodeInternalServer, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload failed")
		}
		return
	}

	response.OK(c, doc)
}

// Get returns current status, metadata, and extracted text for clients that
// upload and then poll.
func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docID, err := parseUintParam(c, "id")
	if err != nil || docID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	doc, err := h.orchestrator.Get(userID, docID)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get document failed")
		}
		return
	}

	response.OK(c, gin.H{
		"document": doc,
		"metadata": doc.MetadataMap(),
	})
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	courseID := uint(0)
	if s := c.Query("course_id"); s != "" {
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			courseID = uint(u)
		}
	}

	docs, err := h.orchestrator.List(userID, courseID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docID, err := parseUintParam(c, "id")
	if err != nil || docID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	if err := h.orchestrator.Delete(c.Request.Context(), userID, docID); err != nil {
		switch {
		case errors.Is(err, ingest.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		}
		return
	}

	response.OK(c, gin.H{"deleted_document_id": docID})
}

// Reprocess re-runs ingestion from the stored bytes. Only FAILED documents
// qualify unless the force flag is set.
func (h *DocumentHandler) Reprocess(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docID, err := parseUintParam(c, "id")
	if err != nil || docID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	force := false
	if raw := c.PostForm("force"); raw != "" {
		force, _ = strconv.ParseBool(raw)
	}

	doc, err := h.orchestrator.Reprocess(c.Request.Context(), userID, docID, force)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		case errors.Is(err, ingest.ErrNotReprocessable):
			response.Error(c, http.StatusConflict, response.CodeBadRequest, err.Error())
		case errors.Is(err, ingest.ErrPublishIngestJob):
			response.Error(c, http.StatusServiceUnavailable, response.CodeInternalServer, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "reprocess failed")
		}
		return
	}

	response.OK(c, doc)
}

func parseUintForm(c *gin.Context, key string) uint {
	s := c.PostForm(key)
	if s == "" {
		return 0
	}
	u, _ := strconv.ParseUint(s, 10, 64)
	return uint(u)
}
