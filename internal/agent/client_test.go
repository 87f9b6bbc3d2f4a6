package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/logging"
	"relay/internal/task"
)

func TestInitiateSessionSendsCallbackAndAuth(t *testing.T) {
	var gotAuth, gotAccept string
	var gotInput initiateInput

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/initiateSessionAsync", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("input")), &gotInput))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"streamEventType\":\"complete\"}\n")
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:         srv.URL,
		CallbackBaseURL: "https://api.example.com/status",
		CallbackSecret:  "shh",
	}, logging.Nop())

	body, err := client.InitiateSession(context.Background(), SessionRequest{
		TaskID:    "t1",
		AuthToken: "tok-123",
		Input:     task.Input{Repository: "acme/widgets", Prompt: "review", Model: "m1"},
		Owner:     task.Owner{Type: task.OwnerUser, ID: "u1", UserID: "u1"},
	})
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "complete")

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "text/event-stream", gotAccept)
	assert.Equal(t, "t1", gotInput.TaskID)
	assert.Equal(t, "acme/widgets", gotInput.Repository)
	assert.Equal(t, "https://api.example.com/status/t1", gotInput.CallbackURL)
	assert.Equal(t, "shh", gotInput.CallbackHeaders["X-Internal-Secret"])
}

func TestInitiateSessionNon2xxSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "capacity exhausted", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, logging.Nop())
	_, err := client.InitiateSession(context.Background(), SessionRequest{TaskID: "t1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "capacity exhausted")
}

func TestInterruptSession(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/interruptSession", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, logging.Nop())
	require.NoError(t, client.InterruptSession(context.Background(), "s1"))
	assert.Equal(t, "s1", gotBody["sessionId"])
}

func TestInterruptSessionNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such session", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, logging.Nop())
	err := client.InterruptSession(context.Background(), "s-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
