package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/philosophers/agora/backend/internal/model/chat"
	"github.com/philosophers/agora/backend/internal/model/persona"
	"github.com/philosophers/agora/backend/internal/service/ai"
	chatservice "github.com/philosophers/agora/backend/internal/service/chat"
	sessionService "github.com/philosophers/agora/backend/internal/service/session"
	"github.com/philosophers/agora/backend/internal/storage/memory"
)

type fakeCompleter struct {
	reply   string
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeCompleter) Complete(_ context.Context, _ persona.ID, _ chat.Conversation, _ string) (string, error) {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	return f.reply, f.err
}

func setupRouter(t *testing.T, client sessionService.Completer) (*chi.Mux, *sessionService.Session) {
	t.Helper()
	s, err := sessionService.New(context.Background(), chatservice.NewStore(memory.NewStore()), client, persona.Default(), persona.Socrates)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	r := chi.NewRouter()
	New(s).RegisterRoutes(r)
	return r, s
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeSnapshot(t *testing.T, body []byte) sessionService.Snapshot {
	t.Helper()
	var snap sessionService.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	return snap
}

func TestGetSnapshot(t *testing.T) {
	r, _ := setupRouter(t, &fakeCompleter{})

	resp := do(r, http.MethodGet, "/session", "")
	require.Equal(t, http.StatusOK, resp.Code)

	snap := decodeSnapshot(t, resp.Body.Bytes())
	assert.Equal(t, persona.Socrates, snap.Persona)
	assert.Equal(t, sessionService.Idle, snap.State)
	assert.Empty(t, snap.Messages)
}

func TestSendMessage(t *testing.T) {
	r, _ := setupRouter(t, &fakeCompleter{reply: "Virtue is knowledge."})

	resp := do(r, http.MethodPost, "/session/messages", `{"text":"What is virtue?"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var body sendResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, chat.AssistantMessage("Virtue is knowledge."), body.Message)
	assert.Empty(t, body.Error)
	assert.Equal(t, chat.Conversation{
		chat.UserMessage("What is virtue?"),
		chat.AssistantMessage("Virtue is knowledge."),
	}, body.Snapshot.Messages)
}

func TestSendMessageValidation(t *testing.T) {
	r, _ := setupRouter(t, &fakeCompleter{reply: "x"})

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/session/messages", `{"text":"   "}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/session/messages", `{`).Code)
}

func TestSendMessageCompletionFailure(t *testing.T) {
	r, _ := setupRouter(t, &fakeCompleter{err: ai.NewCompletionError(ai.ErrRateLimited, nil)})

	resp := do(r, http.MethodPost, "/session/messages", `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var body sendResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, ai.ErrRateLimited.Error(), body.Error)
	assert.Equal(t, chat.RoleAssistant, body.Message.Role)
	assert.Equal(t, ai.UserMessage(ai.NewCompletionError(ai.ErrRateLimited, nil)), body.Message.Text)
	assert.Equal(t, sessionService.Idle, body.Snapshot.State)
}

// replyUnsavedKV accepts the user turn and rejects every later write.
type replyUnsavedKV struct {
	*memory.Store
	puts int
}

func (kv *replyUnsavedKV) Put(ctx context.Context, key string, value []byte) error {
	kv.puts++
	if kv.puts > 1 {
		return errors.New("disk full")
	}
	return kv.Store.Put(ctx, key, value)
}

func TestSendMessageUnsavedReplyIsServerError(t *testing.T) {
	client := &fakeCompleter{err: ai.NewCompletionError(ai.ErrRateLimited, nil)}
	s, err := sessionService.New(context.Background(), chatservice.NewStore(&replyUnsavedKV{Store: memory.NewStore()}), client, persona.Default(), persona.Socrates)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	r := chi.NewRouter()
	New(s).RegisterRoutes(r)

	resp := do(r, http.MethodPost, "/session/messages", `{"text":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, resp.Body.String())
}

func TestSwitchPersona(t *testing.T) {
	r, _ := setupRouter(t, &fakeCompleter{})

	resp := do(r, http.MethodPut, "/session/persona", `{"personaId":"plato"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, persona.Plato, decodeSnapshot(t, resp.Body.Bytes()).Persona)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/session/persona", `{"personaId":"kant"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/session/persona", `{}`).Code)
}

func TestBusyWhileSending(t *testing.T) {
	client := &fakeCompleter{reply: "done", started: make(chan struct{}, 1), release: make(chan struct{})}
	r, s := setupRouter(t, client)

	done := make(chan int, 1)
	go func() {
		done <- do(r, http.MethodPost, "/session/messages", `{"text":"first"}`).Code
	}()
	<-client.started

	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/session/messages", `{"text":"second"}`).Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPut, "/session/persona", `{"personaId":"PLATO"}`).Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodDelete, "/session/messages", "").Code)

	close(client.release)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Len(t, s.Snapshot().Messages, 2)
}

func TestClearMessages(t *testing.T) {
	r, s := setupRouter(t, &fakeCompleter{reply: "ok"})

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/session/messages", `{"text":"hi"}`).Code)
	require.Len(t, s.Snapshot().Messages, 2)

	resp := do(r, http.MethodDelete, "/session/messages", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decodeSnapshot(t, resp.Body.Bytes()).Messages)
}

func TestWebSocketPushesSnapshots(t *testing.T) {
	r, s := setupRouter(t, &fakeCompleter{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/session/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() sessionService.Snapshot {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg struct {
			Type string                  `json:"type"`
			Data sessionService.Snapshot `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "snapshot", msg.Type)
		return msg.Data
	}

	assert.Equal(t, persona.Socrates, read().Persona)

	require.NoError(t, s.SwitchPersona(context.Background(), persona.Leibniz))
	for {
		snap := read()
		if snap.Persona == persona.Leibniz && snap.State == sessionService.Idle {
			break
		}
	}
}
