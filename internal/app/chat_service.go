package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"coursepilot/internal/ai"
	"coursepilot/internal/assembler"
	"coursepilot/internal/model"
	"coursepilot/internal/repository"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrSessionNotFound     = errors.New("session not found")
	ErrMessageEmpty        = errors.New("message content is empty")
	ErrLLMConfig           = errors.New("llm config is invalid")
	ErrNothingToRegenerate = errors.New("no assistant message to regenerate")
)

const defaultPersona = "You are a knowledgeable and encouraging course assistant. " +
	"Answer questions clearly and concisely, and stay on topic for the course."

const contextFraming = "Use the following course material to ground your answers. " +
	"When you rely on it, attribute the claim to its source document."

// CompletionStreamer is the upstream token-streaming completion call.
// Implemented by the ai client; faked in tests.
type CompletionStreamer interface {
	StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onDelta func(delta string) error) (full string, stopReason string, err error)
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, sessionID uint) error
	MarkDirty(ctx context.Context, sessionID uint) error
	IsDirty(ctx context.Context, sessionID uint) (bool, error)
}

// ChatService assembles grounded prompts and relays streamed completions.
// The assistant message is persisted only when a stream reaches its terminal
// success event; errors and cancellations leave no partial assistant message
// behind.
type ChatService struct {
	sessionRepo  *repository.ChatSessionRepository
	messageRepo  *repository.MessageRepository
	courseRepo   *repository.CourseRepository
	assembler    *assembler.Assembler
	streamer     CompletionStreamer
	historyCache HistoryCache
	defaultLLM   ai.ChatConfig
	historyLimit int
}

func NewChatService(
	sessionRepo *repository.ChatSessionRepository,
	messageRepo *repository.MessageRepository,
	courseRepo *repository.CourseRepository,
	asm *assembler.Assembler,
	streamer CompletionStreamer,
	historyCache HistoryCache,
	defaultLLM ai.ChatConfig,
	historyLimit int,
) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		courseRepo:   courseRepo,
		assembler:    asm,
		streamer:     streamer,
		historyCache: historyCache,
		defaultLLM:   defaultLLM,
		historyLimit: historyLimit,
	}
}

type CreateSessionInput struct {
	UserID   uint
	CourseID uint
	Title    string
}

func (s *ChatService) CreateSession(input CreateSessionInput) (*model.ChatSession, error) {
	if input.UserID == 0 || input.CourseID == 0 {
		return nil, ErrInvalidInput
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}

	session := &model.ChatSession{
		UserID:   input.UserID,
		CourseID: input.CourseID,
		Title:    title,
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(userID uint) ([]model.ChatSession, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(userID)
}

func (s *ChatService) DeleteSession(userID, sessionID uint) error {
	if userID == 0 || sessionID == 0 {
		return ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if err := s.messageRepo.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByIDAndUserID(sessionID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(context.Background(), sessionID)
	}
	return nil
}

func (s *ChatService) GetHistory(userID, sessionID uint, limit int) ([]model.Message, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}

	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	ctx := context.Background()
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListBySessionID(sessionID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

type StreamInput struct {
	UserID      uint
	SessionID   uint // 0 = create the session lazily
	CourseID    uint // required when SessionID is 0
	Content     string
	DocumentIDs []uint
}

type StreamResult struct {
	SessionID        uint
	UserMessageID    uint
	AssistantMessage *model.Message
	StopReason       string
}

// StreamMessage persists the user message, streams the completion through
// onDelta, and persists the assistant message only on terminal success.
// onStart fires after the user message is persisted and before the upstream
// call, so the transport can expose ids to the client up front.
func (s *ChatService) StreamMessage(
	ctx context.Context,
	input StreamInput,
	onStart func(sessionID, userMessageID uint) error,
	onDelta func(delta string) error,
) (*StreamResult, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	session, err := s.resolveSession(input, content)
	if err != nil {
		return nil, err
	}

	cfg, course, err := s.resolveLLM(session.CourseID)
	if err != nil {
		return nil, err
	}

	history, err := s.messageRepo.ListRecentBySessionID(session.ID, s.historyLimit)
	if err != nil {
		return nil, err
	}

	contextBlock, includedDocs, err := s.assembler.Assemble(input.DocumentIDs, input.UserID)
	if err != nil {
		return nil, err
	}
	includedIDs := make([]uint, 0, len(includedDocs))
	for _, d := range includedDocs {
		includedIDs = append(includedIDs, d.ID)
	}

	userMessage := &model.Message{
		SessionID:  session.ID,
		UserID:     input.UserID,
		Role:       model.RoleUser,
		Content:    content,
		TokenCount: ai.EstimateTokens(content),
		CreatedAt:  time.Now(),
	}
	userMessage.SetDocumentIDs(includedIDs)
	if err := s.messageRepo.Create(userMessage); err != nil {
		return nil, err
	}
	s.invalidateHistory(ctx, session.ID)

	if onStart != nil {
		if err := onStart(session.ID, userMessage.ID); err != nil {
			return nil, err
		}
	}

	messages := buildPrompt(course, contextBlock, history, content)
	return s.streamAndPersist(ctx, session, input.UserID, userMessage.ID, cfg, messages, onDelta)
}

type RegenerateInput struct {
	UserID    uint
	SessionID uint
}

// Regenerate streams a fresh completion for the session's latest turn. A
// trailing assistant message is discarded first; a trailing user message
// (left behind by a failed stream, which persists no assistant) is re-answered
// as-is. No new user message is created.
func (s *ChatService) Regenerate(
	ctx context.Context,
	input RegenerateInput,
	onStart func(sessionID uint) error,
	onDelta func(delta string) error,
) (*StreamResult, error) {
	if input.UserID == 0 || input.SessionID == 0 {
		return nil, ErrInvalidInput
	}

	session, err := s.sessionRepo.GetByIDAndUserID(input.SessionID, input.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	last, err := s.messageRepo.GetLastBySessionID(session.ID)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, ErrNothingToRegenerate
	}
	if last.Role == model.RoleAssistant {
		if err := s.messageRepo.DeleteByID(last.ID); err != nil {
			return nil, err
		}
		s.invalidateHistory(ctx, session.ID)
	}

	cfg, course, err := s.resolveLLM(session.CourseID)
	if err != nil {
		return nil, err
	}

	history, err := s.messageRepo.ListRecentBySessionID(session.ID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, ErrNothingToRegenerate
	}

	// Ground the regenerated turn on the same documents the latest user
	// message referenced.
	var docIDs []uint
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser {
			docIDs = history[i].DocumentIDList()
			break
		}
	}
	contextBlock, _, err := s.assembler.Assemble(docIDs, input.UserID)
	if err != nil {
		return nil, err
	}

	if onStart != nil {
		if err := onStart(session.ID); err != nil {
			return nil, err
		}
	}

	messages := buildPrompt(course, contextBlock, history, "")
	return s.streamAndPersist(ctx, session, input.UserID, 0, cfg, messages, onDelta)
}

// streamAndPersist relays the upstream stream and commits the accumulated
// response only along the success path. An error or cancellation discards
// the partial text server-side.
func (s *ChatService) streamAndPersist(
	ctx context.Context,
	session *model.ChatSession,
	userID uint,
	userMessageID uint,
	cfg ai.ChatConfig,
	messages []ai.ChatMessage,
	onDelta func(delta string) error,
) (*StreamResult, error) {
	full, stopReason, err := s.streamer.StreamComplete(ctx, cfg, messages, onDelta)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full = strings.TrimSpace(full)
	if full == "" {
		full = "The model returned an empty response."
	}

	assistantMessage := &model.Message{
		SessionID:  session.ID,
		UserID:     userID,
		Role:       model.RoleAssistant,
		Content:    full,
		TokenCount: ai.EstimateTokens(full),
		CreatedAt:  time.Now(),
	}
	if err := s.messageRepo.Create(assistantMessage); err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Touch(session.ID); err != nil {
		return nil, err
	}
	s.invalidateHistory(ctx, session.ID)

	return &StreamResult{
		SessionID:        session.ID,
		UserMessageID:    userMessageID,
		AssistantMessage: assistantMessage,
		StopReason:       stopReason,
	}, nil
}

func (s *ChatService) resolveSession(input StreamInput, content string) (*model.ChatSession, error) {
	if input.SessionID != 0 {
		session, err := s.sessionRepo.GetByIDAndUserID(input.SessionID, input.UserID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, ErrSessionNotFound
		}
		return session, nil
	}

	if input.CourseID == 0 {
		return nil, ErrInvalidInput
	}
	session := &model.ChatSession{
		UserID:   input.UserID,
		CourseID: input.CourseID,
		Title:    titleFromContent(content),
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) resolveLLM(courseID uint) (ai.ChatConfig, *model.Course, error) {
	cfg := s.defaultLLM
	course, err := s.courseRepo.GetByID(courseID)
	if err != nil {
		return ai.ChatConfig{}, nil, err
	}
	if course != nil {
		if course.AssistantModel != "" {
			cfg.Model = course.AssistantModel
		}
		if course.Temperature > 0 {
			cfg.Temperature = course.Temperature
		}
		if course.ReasoningEffort != "" {
			cfg.ReasoningEffort = course.ReasoningEffort
		}
	}
	if cfg.BaseURL == "" || cfg.Model == "" {
		return ai.ChatConfig{}, nil, ErrLLMConfig
	}
	return cfg, course, nil
}

func (s *ChatService) invalidateHistory(ctx context.Context, sessionID uint) {
	if s.historyCache == nil {
		return
	}
	_ = s.historyCache.MarkDirty(ctx, sessionID)
	_ = s.historyCache.DeleteHistory(ctx, sessionID)
}

// buildPrompt assembles persona, grounded document context, the trailing
// history window, and the new user message in that fixed order. History is
// trimmed to a fixed message count only; token-budget trimming is a known
// simplification left to the provider's context window.
func buildPrompt(course *model.Course, contextBlock string, history []model.Message, newContent string) []ai.ChatMessage {
	system := defaultPersona
	if course != nil && strings.TrimSpace(course.AssistantPersona) != "" {
		system += "\n\n" + strings.TrimSpace(course.AssistantPersona)
	}
	if contextBlock != "" {
		system += "\n\n" + contextFraming + "\n\n" + contextBlock
	}

	messages := make([]ai.ChatMessage, 0, len(history)+2)
	messages = append(messages, ai.ChatMessage{Role: model.RoleSystem, Content: system})
	for _, item := range history {
		role := item.Role
		if role == "" {
			role = model.RoleUser
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: item.Content})
	}
	if newContent != "" {
		messages = append(messages, ai.ChatMessage{Role: model.RoleUser, Content: newContent})
	}
	return messages
}

func titleFromContent(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) > 64 {
		return string(runes[:64])
	}
	if len(runes) == 0 {
		return "New Chat"
	}
	return string(runes)
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
