package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/philosophers/agora/backend/internal/adapter"
)

func newTestModel(t *testing.T, handler http.HandlerFunc) (*ChatModel, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	m, err := NewChatModel(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	return m, &hits
}

func TestGenerateSendsSystemSeparately(t *testing.T) {
	var body struct {
		Model  string `json:"model"`
		System []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}

	m, _ := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-7-sonnet-latest",
			"content":[{"type":"text","text":"Happiness is "},{"type":"text","text":"virtuous activity."}],
			"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":3,"output_tokens":4}}`))
	})

	reply, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("be aristotle"),
		schema.UserMessage("hi"),
		schema.AssistantMessage("greetings", nil),
		schema.UserMessage("What is happiness?"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Happiness is virtuous activity.", reply.Content)

	assert.Equal(t, DefaultModel, body.Model)
	require.Len(t, body.System, 1)
	assert.Equal(t, "be aristotle", body.System[0].Text)
	require.Len(t, body.Messages, 3)
	assert.Equal(t, "user", body.Messages[0].Role)
	assert.Equal(t, "assistant", body.Messages[1].Role)
}

func TestGenerateUnauthorizedSingleAttempt(t *testing.T) {
	m, hits := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	var apiErr *adapter.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode())
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestGenerateRateLimitedIsNotRetried(t *testing.T) {
	m, hits := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	})

	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	var apiErr *adapter.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode())
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}
