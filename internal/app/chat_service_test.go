package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coursepilot/internal/ai"
	"coursepilot/internal/assembler"
	"coursepilot/internal/model"
	"coursepilot/internal/repository"
)

// fakeStreamer replays scripted deltas; behave hooks in cancellation and
// upstream failures.
type fakeStreamer struct {
	deltas     []string
	stopReason string
	err        error
	behave     func(ctx context.Context)

	gotMessages []ai.ChatMessage
}

func (f *fakeStreamer) StreamComplete(ctx context.Context, _ ai.ChatConfig, messages []ai.ChatMessage, onDelta func(delta string) error) (string, string, error) {
	f.gotMessages = messages
	if f.behave != nil {
		f.behave(ctx)
	}
	if f.err != nil {
		return "", "", f.err
	}
	var full strings.Builder
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return "", "", err
		}
		full.WriteString(d)
	}
	stop := f.stopReason
	if stop == "" {
		stop = ai.StopReasonStop
	}
	return full.String(), stop, nil
}

func newTestChatService(t *testing.T, streamer CompletionStreamer) (*ChatService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Course{},
		&model.Document{},
		&model.DocumentChunk{},
		&model.ChatSession{},
		&model.Message{},
	))

	docRepo := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	svc := NewChatService(
		repository.NewChatSessionRepository(db),
		repository.NewMessageRepository(db),
		repository.NewCourseRepository(db),
		assembler.New(docRepo, chunkRepo),
		streamer,
		nil,
		ai.ChatConfig{BaseURL: "http://llm.local", Model: "test-model", Temperature: 0.7},
		10,
	)
	return svc, db
}

func countMessages(t *testing.T, db *gorm.DB, sessionID uint, role string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.Message{}).Where("session_id = ? AND role = ?", sessionID, role).Count(&n).Error)
	return n
}

func TestStreamMessagePersistsBothMessagesOnSuccess(t *testing.T) {
	streamer := &fakeStreamer{deltas: []string{"Hello", " there"}}
	svc, db := newTestChatService(t, streamer)

	var gotDeltas []string
	var startSessionID, startMessageID uint
	result, err := svc.StreamMessage(context.Background(), StreamInput{
		UserID:   1,
		CourseID: 3,
		Content:  "What is a mutex?",
	}, func(sessionID, userMessageID uint) error {
		startSessionID = sessionID
		startMessageID = userMessageID
		return nil
	}, func(delta string) error {
		gotDeltas = append(gotDeltas, delta)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello", " there"}, gotDeltas)
	assert.Equal(t, result.SessionID, startSessionID)
	assert.Equal(t, result.UserMessageID, startMessageID)
	assert.Equal(t, "Hello there", result.AssistantMessage.Content)
	assert.Equal(t, ai.StopReasonStop, result.StopReason)

	assert.EqualValues(t, 1, countMessages(t, db, result.SessionID, model.RoleUser))
	assert.EqualValues(t, 1, countMessages(t, db, result.SessionID, model.RoleAssistant))
}

func TestStreamMessageLazySessionGetsTitleFromContent(t *testing.T) {
	svc, db := newTestChatService(t, &fakeStreamer{deltas: []string{"ok"}})

	content := strings.Repeat("long question ", 20)
	result, err := svc.StreamMessage(context.Background(), StreamInput{
		UserID:   1,
		CourseID: 3,
		Content:  content,
	}, nil, func(string) error { return nil })
	require.NoError(t, err)

	var session model.ChatSession
	require.NoError(t, db.First(&session, result.SessionID).Error)
	assert.Len(t, []rune(session.Title), 64)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(content), session.Title[:10]))
}

func TestStreamMessageCancelledDiscardsAssistant(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	streamer := &fakeStreamer{
		deltas: []string{"partial answer"},
		behave: func(context.Context) { cancel() },
	}
	svc, db := newTestChatService(t, streamer)

	result, err := svc.StreamMessage(ctx, StreamInput{
		UserID:   1,
		CourseID: 3,
		Content:  "interrupted question",
	}, nil, func(string) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)

	// The user message survives; no partial assistant message is committed.
	var session model.ChatSession
	require.NoError(t, db.First(&session).Error)
	assert.EqualValues(t, 1, countMessages(t, db, session.ID, model.RoleUser))
	assert.EqualValues(t, 0, countMessages(t, db, session.ID, model.RoleAssistant))
}

func TestStreamMessageUpstreamErrorDiscardsAssistant(t *testing.T) {
	streamer := &fakeStreamer{err: errors.New("upstream unavailable")}
	svc, db := newTestChatService(t, streamer)

	_, err := svc.StreamMessage(context.Background(), StreamInput{
		UserID:   1,
		CourseID: 3,
		Content:  "doomed question",
	}, nil, func(string) error { return nil })
	require.Error(t, err)

	var session model.ChatSession
	require.NoError(t, db.First(&session).Error)
	assert.EqualValues(t, 0, countMessages(t, db, session.ID, model.RoleAssistant))
}

func TestStreamMessageEmptyContent(t *testing.T) {
	svc, _ := newTestChatService(t, &fakeStreamer{})

	_, err := svc.StreamMessage(context.Background(), StreamInput{
		UserID:   1,
		CourseID: 3,
		Content:  "   ",
	}, nil, nil)
	assert.ErrorIs(t, err, ErrMessageEmpty)
}

func TestStreamMessageGroundsPromptOnCompletedDocuments(t *testing.T) {
	streamer := &fakeStreamer{deltas: []string{"grounded answer"}}
	svc, db := newTestChatService(t, streamer)

	doc := &model.Document{
		CourseID:        3,
		UserID:          1,
		Filename:        "syllabus.txt",
		MimeType:        "text/plain",
		SizeBytes:       10,
		StorageLocation: "loc",
		Status:          model.DocumentStatusCompleted,
	}
	require.NoError(t, db.Create(doc).Error)
	require.NoError(t, db.Create(&model.DocumentChunk{
		DocumentID: doc.ID,
		ChunkIndex: 0,
		Content:    "grading rubric details",
	}).Error)

	result, err := svc.StreamMessage(context.Background(), StreamInput{
		UserID:      1,
		CourseID:    3,
		Content:     "How is grading done?",
		DocumentIDs: []uint{doc.ID},
	}, nil, func(string) error { return nil })
	require.NoError(t, err)

	require.NotEmpty(t, streamer.gotMessages)
	system := streamer.gotMessages[0]
	assert.Equal(t, model.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "=== syllabus.txt ===")
	assert.Contains(t, system.Content, "grading rubric details")

	// The persisted user message records which documents grounded it.
	var userMsg model.Message
	require.NoError(t, db.Where("session_id = ? AND role = ?", result.SessionID, model.RoleUser).First(&userMsg).Error)
	assert.Equal(t, []uint{doc.ID}, userMsg.DocumentIDList())
}

func TestCourseOverridesModelSettings(t *testing.T) {
	streamer := &fakeStreamer{deltas: []string{"ok"}}
	svc, db := newTestChatService(t, streamer)

	course := &model.Course{
		Name:            "Databases",
		AssistantModel:  "gpt-4o",
		Temperature:     0.2,
		ReasoningEffort: "high",
	}
	require.NoError(t, db.Create(course).Error)

	cfg, got, err := svc.resolveLLM(course.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, "high", cfg.ReasoningEffort)
}

func TestRegenerateReplacesTrailingAssistant(t *testing.T) {
	streamer := &fakeStreamer{deltas: []string{"first answer"}}
	svc, db := newTestChatService(t, streamer)

	result, err := svc.StreamMessage(context.Background(), StreamInput{
		UserID:   1,
		CourseID: 3,
		Content:  "question",
	}, nil, func(string) error { return nil })
	require.NoError(t, err)

	streamer.deltas = []string{"second answer"}
	regen, err := svc.Regenerate(context.Background(), RegenerateInput{
		UserID:    1,
		SessionID: result.SessionID,
	}, nil, func(string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "second answer", regen.AssistantMessage.Content)

	assert.EqualValues(t, 1, countMessages(t, db, result.SessionID, model.RoleAssistant))
	var last model.Message
	require.NoError(t, db.Where("session_id = ? AND role = ?", result.SessionID, model.RoleAssistant).First(&last).Error)
	assert.Equal(t, "second answer", last.Content)
}

func TestRegenerateAfterFailedStreamReusesUserMessage(t *testing.T) {
	streamer := &fakeStreamer{err: errors.New("upstream unavailable")}
	svc, db := newTestChatService(t, streamer)

	_, err := svc.StreamMessage(context.Background(), StreamInput{
		UserID:   1,
		CourseID: 3,
		Content:  "question",
	}, nil, func(string) error { return nil })
	require.Error(t, err)

	var session model.ChatSession
	require.NoError(t, db.First(&session).Error)
	require.EqualValues(t, 1, countMessages(t, db, session.ID, model.RoleUser))
	require.EqualValues(t, 0, countMessages(t, db, session.ID, model.RoleAssistant))

	// The failed stream left a trailing user message; Regenerate answers it
	// without deleting anything.
	streamer.err = nil
	streamer.deltas = []string{"recovered answer"}
	regen, err := svc.Regenerate(context.Background(), RegenerateInput{
		UserID:    1,
		SessionID: session.ID,
	}, nil, func(string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "recovered answer", regen.AssistantMessage.Content)

	assert.EqualValues(t, 1, countMessages(t, db, session.ID, model.RoleUser))
	assert.EqualValues(t, 1, countMessages(t, db, session.ID, model.RoleAssistant))
}

func TestRegenerateEmptySession(t *testing.T) {
	svc, db := newTestChatService(t, &fakeStreamer{})

	session := &model.ChatSession{UserID: 1, CourseID: 3, Title: "empty"}
	require.NoError(t, db.Create(session).Error)

	_, err := svc.Regenerate(context.Background(), RegenerateInput{
		UserID:    1,
		SessionID: session.ID,
	}, nil, nil)
	assert.ErrorIs(t, err, ErrNothingToRegenerate)
}

func TestGetHistoryReturnsNewestWindow(t *testing.T) {
	streamer := &fakeStreamer{deltas: []string{"answer"}}
	svc, _ := newTestChatService(t, streamer)

	var sessionID uint
	for i := 0; i < 3; i++ {
		result, err := svc.StreamMessage(context.Background(), StreamInput{
			UserID:    1,
			SessionID: sessionID,
			CourseID:  3,
			Content:   fmt.Sprintf("question %d", i),
		}, nil, func(string) error { return nil })
		require.NoError(t, err)
		sessionID = result.SessionID
	}

	// Six messages total; a window of two keeps the newest turn.
	history, err := svc.GetHistory(1, sessionID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "question 2", history[0].Content)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	streamer := &fakeStreamer{deltas: []string{"answer"}}
	svc, db := newTestChatService(t, streamer)

	result, err := svc.StreamMessage(context.Background(), StreamInput{
		UserID:   1,
		CourseID: 3,
		Content:  "question",
	}, nil, func(string) error { return nil })
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSession(1, result.SessionID))

	var n int64
	require.NoError(t, db.Model(&model.Message{}).Where("session_id = ?", result.SessionID).Count(&n).Error)
	assert.Zero(t, n)

	_, err = svc.GetHistory(1, result.SessionID, 10)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSessionWrongUser(t *testing.T) {
	svc, db := newTestChatService(t, &fakeStreamer{})

	session := &model.ChatSession{UserID: 1, CourseID: 3, Title: "mine"}
	require.NoError(t, db.Create(session).Error)

	assert.ErrorIs(t, svc.DeleteSession(2, session.ID), ErrSessionNotFound)
}
