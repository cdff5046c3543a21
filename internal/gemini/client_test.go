// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/cad-engine/internal/httputil"
	"github.com/pdiddy/cad-engine/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = 1 * time.Millisecond
}

// sseEvent formats one response as an SSE data line.
func sseEvent(parts ...apiPart) string {
	resp := apiResponse{Candidates: []apiCandidate{{Content: apiContent{Parts: parts}}}}
	data, _ := json.Marshal(resp)
	return fmt.Sprintf("data: %s\n\n", data)
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	prev := baseURL
	baseURL = ts.URL
	t.Cleanup(func() { baseURL = prev })

	return NewClient(types.AIConfig{Model: "test-model", APIKey: "test-key"}, zap.NewNop())
}

func collect(t *testing.T, ch <-chan Chunk) (thoughts, answer string) {
	t.Helper()
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		if chunk.Thought {
			thoughts += chunk.Text
		} else {
			answer += chunk.Text
		}
	}
	return thoughts, answer
}

func TestStreamGenerate_SeparatesThoughtAndAnswer(t *testing.T) {
	var gotReq apiRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Contains(t, r.URL.Path, "test-model")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseEvent(apiPart{Text: "thinking about boxes", Thought: true}))
		fmt.Fprint(w, sseEvent(apiPart{Text: "```python\n"}))
		fmt.Fprint(w, sseEvent(apiPart{Text: "result_part = Box(1,1,1)\n```"}))
	})

	ch, err := c.StreamGenerate(context.Background(), Request{
		System:          "be a CAD engineer",
		Prompt:          "a box",
		Temperature:     1.0,
		IncludeThoughts: true,
	})
	require.NoError(t, err)

	thoughts, answer := collect(t, ch)
	assert.Equal(t, "thinking about boxes", thoughts)
	assert.Equal(t, "```python\nresult_part = Box(1,1,1)\n```", answer)

	require.NotNil(t, gotReq.SystemInstruction)
	assert.Equal(t, "be a CAD engineer", gotReq.SystemInstruction.Parts[0].Text)
	require.NotNil(t, gotReq.GenerationConfig)
	assert.InDelta(t, 1.0, gotReq.GenerationConfig.Temperature, 1e-9)
	require.NotNil(t, gotReq.GenerationConfig.ThinkingConfig)
	assert.True(t, gotReq.GenerationConfig.ThinkingConfig.IncludeThoughts)
}

func TestStreamGenerate_SkipsNonDataLines(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "event: message\n")
		fmt.Fprint(w, sseEvent(apiPart{Text: "hello"}))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := c.StreamGenerate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)

	_, answer := collect(t, ch)
	assert.Equal(t, "hello", answer)
}

func TestStreamGenerate_APIErrorSurfaced(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"code": 400, "message": "invalid argument", "status": "INVALID_ARGUMENT"}}`)
	})

	_, err := c.StreamGenerate(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid argument")
}

func TestStreamGenerate_RateLimitRetried(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, sseEvent(apiPart{Text: "ok"}))
	})

	ch, err := c.StreamGenerate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)

	_, answer := collect(t, ch)
	assert.Equal(t, "ok", answer)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNewClient_DefaultModel(t *testing.T) {
	c := NewClient(types.AIConfig{}, zap.NewNop())
	assert.Equal(t, defaultModel, c.Model())
}
