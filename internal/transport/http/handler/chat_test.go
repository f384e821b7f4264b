package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursepilot/internal/app"
	"coursepilot/internal/transport/http/response"
)

func newSSETestContext(t *testing.T) (*sseWriter, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", nil)

	sse, ok := newSSEWriter(c)
	require.True(t, ok)
	return sse, recorder
}

func TestSSEWriterDeltaFrame(t *testing.T) {
	sse, recorder := newSSETestContext(t)

	require.NoError(t, sse.delta("Hel"))
	require.NoError(t, sse.delta("lo"))

	body := recorder.Body.String()
	assert.Equal(t, "data: {\"delta\":\"Hel\"}\n\ndata: {\"delta\":\"lo\"}\n\n", body)
	assert.Equal(t, "text/event-stream", recorder.Header().Get("Content-Type"))
}

func TestSSEWriterDoneFrame(t *testing.T) {
	sse, recorder := newSSETestContext(t)

	sse.done("stop")
	assert.Equal(t, "event: done\ndata: {\"stop_reason\":\"stop\"}\n\n", recorder.Body.String())
}

func TestSSEWriterFailMidStreamEmitsErrorEvent(t *testing.T) {
	sse, recorder := newSSETestContext(t)

	require.NoError(t, sse.delta("partial"))
	sse.fail(app.ErrSessionNotFound)

	body := recorder.Body.String()
	assert.Contains(t, body, "data: {\"delta\":\"partial\"}\n\n")
	assert.Contains(t, body, "event: error\ndata: {\"message\":\"session not found\"}\n\n")
}

func TestSSEWriterFailBeforeStreamUsesEnvelope(t *testing.T) {
	sse, recorder := newSSETestContext(t)

	sse.fail(app.ErrSessionNotFound)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
	// No stream bytes went out yet, so the response stays a plain JSON
	// envelope rather than an event stream.
	assert.Contains(t, recorder.Header().Get("Content-Type"), "application/json")
	var envelope response.APIResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	assert.Equal(t, response.CodeSessionNotFound, envelope.Code)
	assert.Equal(t, "session not found", envelope.Message)
}

func TestSSEWriterFailBeforeStreamUnknownError(t *testing.T) {
	sse, recorder := newSSETestContext(t)

	sse.fail(assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Contains(t, recorder.Header().Get("Content-Type"), "application/json")
	var envelope response.APIResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	assert.Equal(t, response.CodeInternalServer, envelope.Code)
}
