package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coursepilot/internal/app"
	"coursepilot/internal/transport/http/middleware"
	"coursepilot/internal/transport/http/response"
)

// Stream wire protocol: response headers X-Session-Id / X-Message-Id carry
// the ids the client needs to reconcile its optimistic state; the body is a
// server-sent event stream of {"delta"} payloads terminated by either an
// "event: done" with a stop reason or an "event: error" with a message.

type ChatHandler struct {
	chatService *app.ChatService
}

type CreateSessionRequest struct {
	CourseID uint   `json:"course_id" binding:"required,gt=0"`
	Title    string `json:"title" binding:"max=128"`
}

type StreamMessageRequest struct {
	SessionID   uint   `json:"session_id"`
	CourseID    uint   `json:"course_id"`
	Content     string `json:"content" binding:"required"`
	DocumentIDs []uint `json:"document_ids"`
}

type RegenerateRequest struct {
	SessionID uint `json:"session_id" binding:"required,gt=0"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	session, err := h.chatService.CreateSession(app.CreateSessionInput{
		UserID:   userID,
		CourseID: req.CourseID,
		Title:    req.Title,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create session failed")
		}
		return
	}

	response.OK(c, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessions, err := h.chatService.ListSessions(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID, err := parseUintParam(c, "id")
	if err != nil || sessionID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}

	if err := h.chatService.DeleteSession(userID, sessionID); err != nil {
		switch {
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete session failed")
		}
		return
	}

	response.OK(c, gin.H{"deleted_session_id": sessionID})
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID64, err := strconv.ParseUint(c.Query("session_id"), 10, 64)
	if err != nil || sessionID64 == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session_id")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			limit = parsed
		}
	}

	history, err := h.chatService.GetHistory(userID, uint(sessionID64), limit)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get history failed")
		}
		return
	}

	response.OK(c, history)
}

func (h *ChatHandler) StreamMessage(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req StreamMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	sse, ok := newSSEWriter(c)
	if !ok {
		return
	}

	result, err := h.chatService.StreamMessage(c.Request.Context(), app.StreamInput{
		UserID:      userID,
		SessionID:   req.SessionID,
		CourseID:    req.CourseID,
		Content:     req.Content,
		DocumentIDs: req.DocumentIDs,
	}, func(sessionID, userMessageID uint) error {
		c.Header("X-Session-Id", strconv.FormatUint(uint64(sessionID), 10))
		c.Header("X-Message-Id", strconv.FormatUint(uint64(userMessageID), 10))
		return nil
	}, sse.delta)
	if err != nil {
		sse.fail(err)
		return
	}

	sse.done(result.StopReason)
}

func (h *ChatHandler) Regenerate(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req RegenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	sse, ok := newSSEWriter(c)
	if !ok {
		return
	}

	result, err := h.chatService.Regenerate(c.Request.Context(), app.RegenerateInput{
		UserID:    userID,
		SessionID: req.SessionID,
	}, func(sessionID uint) error {
		c.Header("X-Session-Id", strconv.FormatUint(uint64(sessionID), 10))
		return nil
	}, sse.delta)
	if err != nil {
		sse.fail(err)
		return
	}

	sse.done(result.StopReason)
}

type sseWriter struct {
	c       *gin.Context
	flusher http.Flusher
	started bool
}

func newSSEWriter(c *gin.Context) (*sseWriter, bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return nil, false
	}
	return &sseWriter{c: c, flusher: flusher}, true
}

// beginStream switches the response to the event-stream content type. Headers
// are deferred until the first stream write so that a failure before any
// output can still use the plain JSON envelope.
func (s *sseWriter) beginStream() {
	if s.started {
		return
	}
	s.started = true
	s.c.Header("Content-Type", "text/event-stream")
	s.c.Header("Cache-Control", "no-cache")
	s.c.Header("Connection", "keep-alive")
	s.c.Header("X-Accel-Buffering", "no")
}

func (s *sseWriter) delta(text string) error {
	payload, err := json.Marshal(gin.H{"delta": text})
	if err != nil {
		return err
	}
	s.beginStream()
	if _, err := s.c.Writer.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) done(stopReason string) {
	s.beginStream()
	payload, _ := json.Marshal(gin.H{"stop_reason": stopReason})
	if _, err := s.c.Writer.Write([]byte("event: done\ndata: " + string(payload) + "\n\n")); err == nil {
		s.flusher.Flush()
	}
}

// fail reports the terminal error. Before any bytes have been written the
// normal JSON envelope is still usable; mid-stream the error becomes a
// terminal event instead.
func (s *sseWriter) fail(err error) {
	if !s.started {
		switch {
		case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty), errors.Is(err, app.ErrLLMConfig):
			response.Error(s.c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(s.c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		case errors.Is(err, app.ErrNothingToRegenerate):
			response.Error(s.c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(s.c, http.StatusInternalServerError, response.CodeInternalServer, "stream failed")
		}
		return
	}
	payload, _ := json.Marshal(gin.H{"message": err.Error()})
	if _, writeErr := s.c.Writer.Write([]byte("event: error\ndata: " + string(payload) + "\n\n")); writeErr == nil {
		s.flusher.Flush()
	}
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	u, err := strconv.ParseUint(c.Param(key), 10, 64)
	return uint(u), err
}
