package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docanalyzer/internal/app"
	"docanalyzer/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type AskRequest struct {
	Message     string `json:"message" binding:"required"`
	SessionID   string `json:"session_id"`
	PromptStyle string `json:"prompt_style"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.Ask(c.Request.Context(), app.AskInput{
		SessionToken: req.SessionID,
		Message:      req.Message,
		PromptStyle:  req.PromptStyle,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "message must not be empty")
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "session not found")
		case errors.Is(err, app.ErrGeneration):
			response.ErrorRetryable(c, http.StatusBadGateway, response.CodeUpstreamFailure, "answer generation failed")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "chat failed")
		}
		return
	}

	response.OK(c, result)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	sessions, err := h.chatService.ListSessions()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	token := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, err := h.chatService.GetMessages(c.Request.Context(), token, limit)
	if err != nil {
		if errors.Is(err, app.ErrSessionNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "session not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get messages failed")
		return
	}

	out := make([]gin.H, 0, len(messages))
	for _, m := range messages {
		entry := gin.H{
			"id":         m.ID,
			"role":       m.Role,
			"content":    m.Content,
			"created_at": m.CreatedAt,
		}
		if m.Role == "assistant" {
			entry["sources"] = m.SourceList()
			entry["response_time"] = m.ResponseTime
		}
		out = append(out, entry)
	}
	response.OK(c, out)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	token := c.Param("id")
	if err := h.chatService.DeleteSession(c.Request.Context(), token); err != nil {
		if errors.Is(err, app.ErrSessionNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "session not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete session failed")
		return
	}
	response.OK(c, gin.H{"deleted": token})
}
