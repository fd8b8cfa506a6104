package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docanalyzer/internal/app"
	"docanalyzer/internal/model"
	"docanalyzer/internal/transport/http/response"
)

type EvaluationHandler struct {
	evalService *app.EvalService
}

type SingleEvaluationRequest struct {
	Question    string `json:"question" binding:"required"`
	GroundTruth string `json:"ground_truth"`
}

type BatchEvaluationRequest struct {
	Name      string                `json:"name" binding:"required"`
	Questions []model.BatchQuestion `json:"questions" binding:"required"`
}

func NewEvaluationHandler(evalService *app.EvalService) *EvaluationHandler {
	return &EvaluationHandler{evalService: evalService}
}

func (h *EvaluationHandler) Single(c *gin.Context) {
	var req SingleEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.evalService.EvaluateSingle(c.Request.Context(), req.Question, req.GroundTruth)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *EvaluationHandler) Batch(c *gin.Context) {
	var req BatchEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	batch, err := h.evalService.RunBatch(c.Request.Context(), req.Name, req.Questions)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, batch)
}

func (h *EvaluationHandler) ListBatches(c *gin.Context) {
	batches, err := h.evalService.ListBatches()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list batches failed")
		return
	}
	response.OK(c, batches)
}

func (h *EvaluationHandler) GetBatch(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid batch id")
		return
	}

	batch, err := h.evalService.GetBatch(uint(id))
	if err != nil {
		if errors.Is(err, app.ErrBatchNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeBatchNotFound, "batch not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get batch failed")
		return
	}
	response.OK(c, gin.H{
		"batch":     batch,
		"questions": batch.QuestionList(),
	})
}

func (h *EvaluationHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrEmptyBatch):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrGeneration):
		response.ErrorRetryable(c, http.StatusBadGateway, response.CodeUpstreamFailure, "evaluation generation failed")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "evaluation failed")
	}
}
