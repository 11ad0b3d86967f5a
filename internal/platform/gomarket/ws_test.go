package gomarket

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// fakeFeed is an httptest server that upgrades every request and runs serve
// on the connection.
type fakeFeed struct {
	srv         *httptest.Server
	connections atomic.Int32
}

func newFakeFeed(t *testing.T, serve func(conn *websocket.Conn)) *fakeFeed {
	t.Helper()
	f := &fakeFeed{}
	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.connections.Add(1)
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeFeed) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

// holdOpen blocks until the client goes away.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type recorder struct {
	mu    sync.Mutex
	books []domain.OrderbookData
}

func (r *recorder) HandleOrderbook(d domain.OrderbookData) {
	r.mu.Lock()
	r.books = append(r.books, d)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.books)
}

type countingObserver struct {
	received, dropped, reconnects atomic.Int32
}

func (o *countingObserver) MessageReceived()           { o.received.Add(1) }
func (o *countingObserver) MessageDropped()            { o.dropped.Add(1) }
func (o *countingObserver) Reconnecting(time.Duration) { o.reconnects.Add(1) }
func (o *countingObserver) ConnectionState(bool)       {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWSClient_DeliversSnapshots(t *testing.T) {
	feed := newFakeFeed(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"garbage":`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(sampleMessage))
		holdOpen(conn)
	})

	rec := &recorder{}
	obs := &countingObserver{}
	c := NewWSClient(Config{URL: feed.url()}, rec, obs, quietLogger())
	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, c.IsConnected())
	assert.True(t, c.IsHealthy(time.Second))
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, int32(1), obs.received.Load())
	assert.Equal(t, int32(1), obs.dropped.Load())

	rec.mu.Lock()
	assert.Equal(t, "BTC-USDT-SWAP", rec.books[0].Symbol)
	rec.mu.Unlock()
}

func TestWSClient_UnhealthyWhenIdle(t *testing.T) {
	feed := newFakeFeed(t, holdOpen)

	c := NewWSClient(Config{URL: feed.url()}, &recorder{}, nil, quietLogger())
	c.Start()
	defer c.Stop()

	require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.False(t, c.IsHealthy(10*time.Millisecond))
	assert.True(t, c.IsHealthy(time.Minute))
}

func TestWSClient_StopHaltsDelivery(t *testing.T) {
	feed := newFakeFeed(t, func(conn *websocket.Conn) {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(sampleMessage)); err != nil {
				return
			}
		}
	})

	rec := &recorder{}
	c := NewWSClient(Config{URL: feed.url()}, rec, nil, quietLogger())
	c.Start()
	require.Eventually(t, func() bool { return rec.count() >= 3 }, 2*time.Second, 5*time.Millisecond)

	c.Stop()
	after := rec.count()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, after, rec.count())
	assert.False(t, c.IsConnected())
	assert.False(t, c.IsHealthy(time.Minute))
	assert.Equal(t, StateIdle, c.State())

	// Repeated Stop is a no-op.
	c.Stop()
}

func TestWSClient_ReconnectsAfterDisconnect(t *testing.T) {
	feed := newFakeFeed(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(sampleMessage))
	})

	rec := &recorder{}
	obs := &countingObserver{}
	cfg := Config{URL: feed.url(), InitialBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}
	c := NewWSClient(cfg, rec, obs, quietLogger())
	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool { return feed.connections.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, rec.count(), 2)
	assert.GreaterOrEqual(t, obs.reconnects.Load(), int32(2))
	assert.LessOrEqual(t, c.ReconnectDelay(), 20*time.Millisecond)
}

func TestWSClient_DialFailureBacksOff(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	cfg := Config{URL: wsURL, InitialBackoff: time.Millisecond, MaxBackoff: 8 * time.Millisecond}
	c := NewWSClient(cfg, &recorder{}, nil, quietLogger())
	c.Start()

	require.Eventually(t, func() bool { return c.ReconnectDelay() == 8*time.Millisecond }, 2*time.Second, time.Millisecond)
	assert.False(t, c.IsConnected())

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, StateIdle, c.State())
}

func TestWSClient_StartResetsReconnectDelay(t *testing.T) {
	// A listener that never answers the handshake keeps each attempt in
	// flight for the handshake timeout.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	initial := time.Millisecond
	cfg := Config{
		URL:              "ws://" + ln.Addr().String() + "/ws",
		InitialBackoff:   initial,
		MaxBackoff:       time.Second,
		HandshakeTimeout: 50 * time.Millisecond,
	}
	c := NewWSClient(cfg, &recorder{}, nil, quietLogger())

	c.Start()
	require.Eventually(t, func() bool { return c.ReconnectDelay() >= 4*initial }, 5*time.Second, time.Millisecond)
	c.Stop()
	assert.GreaterOrEqual(t, c.ReconnectDelay(), 4*initial)

	c.Start()
	defer c.Stop()
	assert.Equal(t, initial, c.ReconnectDelay())
}

func TestFeedObservers_FanOut(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	obs := FeedObservers{a, b}

	obs.MessageReceived()
	obs.MessageDropped()
	obs.Reconnecting(time.Second)
	obs.ConnectionState(true)

	for _, o := range []*countingObserver{a, b} {
		assert.Equal(t, int32(1), o.received.Load())
		assert.Equal(t, int32(1), o.dropped.Load())
		assert.Equal(t, int32(1), o.reconnects.Load())
	}
}
