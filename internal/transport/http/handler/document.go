package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docanalyzer/internal/app"
	"docanalyzer/internal/transport/http/response"
)

type DocumentHandler struct {
	ingest *app.IngestService
}

func NewDocumentHandler(ingest *app.IngestService) *DocumentHandler {
	return &DocumentHandler{ingest: ingest}
}

// Upload accepts a multipart form with "file" and schedules processing.
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing uploaded file (form field 'file')")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to open uploaded file")
		return
	}
	defer f.Close()

	doc, err := h.ingest.Upload(c.Request.Context(), file.Filename, file.Size, f)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrFileTypeNotAllowed):
			response.Error(c, http.StatusBadRequest, response.CodeFileType, err.Error())
		case errors.Is(err, app.ErrFileTooLarge):
			response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, err.Error())
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid filename")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload failed")
		}
		return
	}

	response.OK(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.ingest.List()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	if err := h.ingest.Delete(c.Request.Context(), uint(id)); err != nil {
		if errors.Is(err, app.ErrDocumentNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "document not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted": id})
}
