package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := NewClient(Config{
		BaseURL:           srv.URL,
		CallTimeout:       5 * time.Second,
		MessagesPerSecond: 1000,
		Burst:             1000,
	})
	return client, srv
}

func TestSendMessageSuccess(t *testing.T) {
	var gotPath string
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":42,"chat":{"id":-100111,"type":"channel"}}}`))
	})
	defer srv.Close()

	msg, err := client.SendMessage(context.Background(), "123:abc", Params{
		"chat_id": int64(-100111),
		"text":    "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), msg.MessageID)
	assert.Equal(t, int64(-100111), msg.Chat.ID)
	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 5","parameters":{"retry_after":5}}`))
	})
	defer srv.Close()

	_, err := client.SendMessage(context.Background(), "123:abc", Params{"chat_id": int64(1), "text": "x"})
	require.Error(t, err)

	wait, ok := RetryAfterOf(err)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, wait)
	assert.False(t, IsFatal(err))
}

func TestForbiddenIsFatal(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was kicked from the channel chat"}`))
	})
	defer srv.Close()

	_, err := client.SendMessage(context.Background(), "123:abc", Params{"chat_id": int64(1), "text": "x"})
	require.Error(t, err)
	assert.True(t, IsFatal(err))

	_, rateLimited := RetryAfterOf(err)
	assert.False(t, rateLimited)
}

func TestServerErrorIsTransient(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":502,"description":"Bad Gateway"}`))
	})
	defer srv.Close()

	_, err := client.SendMessage(context.Background(), "123:abc", Params{"chat_id": int64(1), "text": "x"})
	require.Error(t, err)
	assert.False(t, IsFatal(err))

	_, rateLimited := RetryAfterOf(err)
	assert.False(t, rateLimited)
}

func TestCopyMessageReturnsNewID(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	})
	defer srv.Close()

	ref, err := client.CopyMessage(context.Background(), "123:abc", Params{
		"chat_id":      int64(-100111),
		"from_chat_id": "@source",
		"message_id":   int64(55),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), ref.MessageID)
}
