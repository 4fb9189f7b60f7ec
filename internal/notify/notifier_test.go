package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	name  string
	err   error
	calls int
	title string
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.calls++
	s.title = title
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_EventFilter(t *testing.T) {
	sender := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{sender}, []string{"deal_alert"}, testLogger())

	require.NoError(t, n.Notify(context.Background(), "deal_alert", "Deal", "msg"))
	require.NoError(t, n.Notify(context.Background(), "sweep", "Sweep", "msg"))

	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, "Deal", sender.title)
}

func TestNotifier_EmptyFilterAllowsEverything(t *testing.T) {
	sender := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "T", "m"))
	assert.Equal(t, 1, sender.calls)
}

func TestNotifier_OneBrokenSenderDoesNotBlockOthers(t *testing.T) {
	broken := &stubSender{name: "broken", err: assert.AnError}
	healthy := &stubSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, testLogger())

	err := n.Notify(context.Background(), "deal_alert", "T", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, 1, healthy.calls)
}

func TestDiscordSender_PostsWebhookPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Great deal", "m-1 at 12.5"))

	assert.Contains(t, got["content"], "**Great deal**")
	assert.Contains(t, got["content"], "m-1 at 12.5")
}

func TestDiscordSender_SurfacesHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), "T", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
