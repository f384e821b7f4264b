package chatclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Message lifecycle on the client side:
//
//	pending   - sent optimistically, not yet acknowledged by the server
//	streaming - assistant message currently receiving deltas
//	confirmed - acknowledged (user) or terminal done event received (assistant)
//	errored   - send failed or the stream ended with an error event
//
// A user message is keyed locally before the server assigns an id, so the
// transcript never reorders while a send is in flight.
type MessageState string

const (
	StatePending   MessageState = "pending"
	StateStreaming MessageState = "streaming"
	StateConfirmed MessageState = "confirmed"
	StateErrored   MessageState = "errored"
)

var (
	ErrStreamInFlight      = errors.New("a stream is already in flight")
	ErrNothingToRetry      = errors.New("no failed message to retry")
	ErrNothingToRegenerate = errors.New("no assistant message to regenerate")
)

type ClientMessage struct {
	LocalKey    string
	ServerID    uint
	Role        string
	Content     string
	State       MessageState
	Err         string
	DocumentIDs []uint
}

// Conversation is a single chat session's client-side state machine. One
// stream at a time; Cancel is safe to call from another goroutine.
type Conversation struct {
	httpClient *http.Client
	baseURL    string
	token      string

	mu        sync.Mutex
	sessionID uint
	courseID  uint
	messages  []*ClientMessage
	inFlight  bool
	cancel    context.CancelFunc
}

func NewConversation(baseURL, token string, courseID uint) *Conversation {
	return &Conversation{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		courseID:   courseID,
	}
}

// SessionID reports the server-assigned session id, 0 until the first
// successful send.
func (cv *Conversation) SessionID() uint {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.sessionID
}

// Messages returns a snapshot of the transcript.
func (cv *Conversation) Messages() []ClientMessage {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	out := make([]ClientMessage, len(cv.messages))
	for i, m := range cv.messages {
		out[i] = *m
	}
	return out
}

// Send posts the user message and relays the assistant stream until the
// terminal event. The user message appears in the transcript immediately in
// pending state; it is confirmed from the response headers before the first
// delta arrives. onDelta may be nil.
func (cv *Conversation) Send(ctx context.Context, content string, documentIDs []uint, onDelta func(delta string)) error {
	userMsg, err := cv.begin(content, documentIDs)
	if err != nil {
		return err
	}
	return cv.run(ctx, userMsg, onDelta)
}

// Retry re-sends the most recent failed user message with its original
// content and document references. Only a failed send is retryable; a
// failed assistant stream is recovered with Regenerate instead.
func (cv *Conversation) Retry(ctx context.Context, onDelta func(delta string)) error {
	cv.mu.Lock()
	if cv.inFlight {
		cv.mu.Unlock()
		return ErrStreamInFlight
	}
	var failed *ClientMessage
	for i := len(cv.messages) - 1; i >= 0; i-- {
		if cv.messages[i].Role == "user" && cv.messages[i].State == StateErrored {
			failed = cv.messages[i]
			break
		}
	}
	if failed == nil {
		cv.mu.Unlock()
		return ErrNothingToRetry
	}
	failed.State = StatePending
	failed.Err = ""
	cv.inFlight = true
	cv.mu.Unlock()

	return cv.run(ctx, failed, onDelta)
}

// Regenerate asks the server to discard the trailing assistant message and
// stream a replacement. The old assistant message is dropped from the
// transcript up front; the replacement streams into a fresh entry. An
// assistant message left errored by a failed stream is regenerable too, so a
// broken answer never strands the conversation.
func (cv *Conversation) Regenerate(ctx context.Context, onDelta func(delta string)) error {
	cv.mu.Lock()
	if cv.inFlight {
		cv.mu.Unlock()
		return ErrStreamInFlight
	}
	n := len(cv.messages)
	if n == 0 || cv.messages[n-1].Role != "assistant" ||
		(cv.messages[n-1].State != StateConfirmed && cv.messages[n-1].State != StateErrored) {
		cv.mu.Unlock()
		return ErrNothingToRegenerate
	}
	sessionID := cv.sessionID
	cv.messages = cv.messages[:n-1]
	cv.inFlight = true
	cv.mu.Unlock()

	body, _ := json.Marshal(map[string]any{"session_id": sessionID})
	return cv.stream(ctx, "/api/v1/chat/regenerate", body, nil, onDelta)
}

// Cancel aborts the in-flight stream. The partially streamed assistant
// message is removed entirely rather than kept as a truncated answer.
func (cv *Conversation) Cancel() {
	cv.mu.Lock()
	cancel := cv.cancel
	cv.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (cv *Conversation) begin(content string, documentIDs []uint) (*ClientMessage, error) {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if cv.inFlight {
		return nil, ErrStreamInFlight
	}
	userMsg := &ClientMessage{
		LocalKey:    uuid.NewString(),
		Role:        "user",
		Content:     content,
		State:       StatePending,
		DocumentIDs: documentIDs,
	}
	cv.messages = append(cv.messages, userMsg)
	cv.inFlight = true
	return userMsg, nil
}

func (cv *Conversation) run(ctx context.Context, userMsg *ClientMessage, onDelta func(delta string)) error {
	cv.mu.Lock()
	payload := map[string]any{
		"session_id":   cv.sessionID,
		"course_id":    cv.courseID,
		"content":      userMsg.Content,
		"document_ids": userMsg.DocumentIDs,
	}
	cv.mu.Unlock()

	body, _ := json.Marshal(payload)
	return cv.stream(ctx, "/api/v1/chat/stream", body, userMsg, onDelta)
}

func (cv *Conversation) stream(ctx context.Context, path string, body []byte, userMsg *ClientMessage, onDelta func(delta string)) error {
	streamCtx, cancel := context.WithCancel(ctx)
	cv.mu.Lock()
	cv.cancel = cancel
	cv.mu.Unlock()

	defer func() {
		cancel()
		cv.mu.Lock()
		cv.cancel = nil
		cv.inFlight = false
		cv.mu.Unlock()
	}()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, cv.baseURL+path, bytes.NewReader(body))
	if err != nil {
		cv.failSend(userMsg, err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if cv.token != "" {
		req.Header.Set("Authorization", "Bearer "+cv.token)
	}

	resp, err := cv.httpClient.Do(req)
	if err != nil {
		cv.failSend(userMsg, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("stream request rejected: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
		cv.failSend(userMsg, err)
		return err
	}

	cv.confirmFromHeaders(resp.Header, userMsg)
	assistant := cv.appendAssistant()

	return cv.consume(streamCtx, resp.Body, assistant, onDelta)
}

// consume reads the event stream line by line, applying deltas in receipt
// order, until a terminal done or error event.
func (cv *Conversation) consume(ctx context.Context, body io.Reader, assistant *ClientMessage, onDelta func(delta string)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			event = ""
			continue
		}
		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		switch event {
		case "":
			var payload struct {
				Delta string `json:"delta"`
			}
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				continue
			}
			cv.mu.Lock()
			assistant.Content += payload.Delta
			cv.mu.Unlock()
			if onDelta != nil {
				onDelta(payload.Delta)
			}
		case "done":
			cv.mu.Lock()
			assistant.State = StateConfirmed
			cv.mu.Unlock()
			return nil
		case "error":
			var payload struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal([]byte(data), &payload)
			if payload.Message == "" {
				payload.Message = "stream failed"
			}
			cv.mu.Lock()
			assistant.State = StateErrored
			assistant.Err = payload.Message
			cv.mu.Unlock()
			return errors.New(payload.Message)
		}
	}

	if ctx.Err() != nil {
		// Cancelled mid-stream: drop the partial assistant message.
		cv.removeMessage(assistant)
		return ctx.Err()
	}

	err := scanner.Err()
	if err == nil {
		err = errors.New("stream ended without terminal event")
	}
	cv.mu.Lock()
	assistant.State = StateErrored
	assistant.Err = err.Error()
	cv.mu.Unlock()
	return err
}

func (cv *Conversation) confirmFromHeaders(header http.Header, userMsg *ClientMessage) {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if raw := header.Get("X-Session-Id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			cv.sessionID = uint(id)
		}
	}
	if userMsg == nil {
		return
	}
	if raw := header.Get("X-Message-Id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			userMsg.ServerID = uint(id)
		}
	}
	userMsg.State = StateConfirmed
}

func (cv *Conversation) appendAssistant() *ClientMessage {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	assistant := &ClientMessage{
		LocalKey: uuid.NewString(),
		Role:     "assistant",
		State:    StateStreaming,
	}
	cv.messages = append(cv.messages, assistant)
	return assistant
}

func (cv *Conversation) failSend(userMsg *ClientMessage, cause error) {
	if userMsg == nil {
		return
	}
	cv.mu.Lock()
	defer cv.mu.Unlock()
	userMsg.State = StateErrored
	userMsg.Err = cause.Error()
}

func (cv *Conversation) removeMessage(target *ClientMessage) {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	for i, m := range cv.messages {
		if m == target {
			cv.messages = append(cv.messages[:i], cv.messages[i+1:]...)
			return
		}
	}
}
