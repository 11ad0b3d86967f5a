package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu     sync.Mutex
	titles []string
	msgs   []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.msgs = append(r.msgs, message)
	return r.err
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersEvents(t *testing.T) {
	rec := &recordingSender{}
	n := NewNotifier([]Sender{rec}, []string{EventFeedDisconnected, " "}, quietLogger())

	assert.True(t, n.Notify(EventFeedDisconnected, "down", "x"))
	assert.False(t, n.Notify(EventFeedReconnecting, "retry", "x"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"down"}, rec.sent())
}

func TestNotifier_DisabledWithoutSenders(t *testing.T) {
	n := NewNotifier(nil, nil, quietLogger())
	assert.False(t, n.Enabled())
	assert.False(t, n.Notify(EventFeedConnected, "up", ""))
}

func TestNotifier_QueueFullDrops(t *testing.T) {
	n := NewNotifier([]Sender{&recordingSender{}}, nil, quietLogger())
	for i := 0; i < defaultQueueSize; i++ {
		require.True(t, n.Notify(EventFeedConnected, "up", ""))
	}
	assert.False(t, n.Notify(EventFeedConnected, "up", ""))
}

func TestNotifier_DispatchContinuesPastFailures(t *testing.T) {
	bad := &recordingSender{err: errors.New("boom")}
	good := &recordingSender{}
	n := NewNotifier([]Sender{bad, good}, nil, quietLogger())

	err := n.dispatch(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Equal(t, []string{"t"}, good.sent())
}

func TestFeedAlerts_TransitionsOnly(t *testing.T) {
	rec := &recordingSender{}
	n := NewNotifier([]Sender{rec}, []string{EventFeedConnected, EventFeedDisconnected}, quietLogger())
	alerts := NewFeedAlerts(n, "wss://feed")
	now := time.Unix(1000, 0)
	alerts.now = func() time.Time { return now }

	alerts.ConnectionState(false) // already down: no alert
	alerts.ConnectionState(true)
	alerts.ConnectionState(true)
	alerts.ConnectionState(false)
	now = now.Add(1500 * time.Millisecond)
	alerts.ConnectionState(true)
	alerts.Reconnecting(time.Second) // filtered

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.sent()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Feed connected", "Feed disconnected", "Feed connected"}, rec.sent())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "wss://feed", rec.msgs[0])
	assert.Equal(t, "wss://feed (down for 1.5s)", rec.msgs[2])
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Title", "body"))

	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "T", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 429")
}
