package gomarket

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	// DefaultURL is the public L2 orderbook stream for the OKX BTC-USDT swap.
	DefaultURL = "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx/BTC-USDT-SWAP"

	// DefaultMaxIdle is how long the feed may go without a message before it
	// is considered unhealthy.
	DefaultMaxIdle = 10 * time.Second

	// writeWait is the time allowed to write a control frame to the peer.
	writeWait = 5 * time.Second
)

// Config holds the connection settings for a WSClient.
type Config struct {
	URL string
	// DisplayURL is logged in place of URL. Set it to a credential-free form
	// when URL embeds secrets; empty means URL is logged as is.
	DisplayURL     string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// HandshakeTimeout bounds the dial and TLS/WebSocket handshake. Zero means
	// the dial only ends on success, failure or Stop.
	HandshakeTimeout time.Duration
}

// FeedObserver receives connection-level events. Implementations must be
// safe for concurrent use.
type FeedObserver interface {
	MessageReceived()
	MessageDropped()
	Reconnecting(delay time.Duration)
	ConnectionState(connected bool)
}

// FeedObservers fans connection events out to several observers.
type FeedObservers []FeedObserver

func (obs FeedObservers) MessageReceived() {
	for _, o := range obs {
		o.MessageReceived()
	}
}

func (obs FeedObservers) MessageDropped() {
	for _, o := range obs {
		o.MessageDropped()
	}
}

func (obs FeedObservers) Reconnecting(delay time.Duration) {
	for _, o := range obs {
		o.Reconnecting(delay)
	}
}

func (obs FeedObservers) ConnectionState(connected bool) {
	for _, o := range obs {
		o.ConnectionState(connected)
	}
}

type nopObserver struct{}

func (nopObserver) MessageReceived()           {}
func (nopObserver) MessageDropped()            {}
func (nopObserver) Reconnecting(time.Duration) {}
func (nopObserver) ConnectionState(bool)       {}

// WSClient streams L2 snapshots from a GoMarket endpoint. A single goroutine
// owns the connection: it dials, reads until the socket fails, then waits out
// the backoff and dials again until Stop is called. Every parsed snapshot is
// handed to the handler on that goroutine.
type WSClient struct {
	cfg      Config
	handler  domain.OrderbookHandler
	observer FeedObserver
	logger   *slog.Logger
	dialer   *websocket.Dialer

	mu          sync.Mutex
	running     bool
	state       State
	conn        *websocket.Conn
	lastMessage time.Time
	backoff     *Backoff

	// done is closed by Stop; loopDone is closed when the run loop exits.
	done     chan struct{}
	loopDone chan struct{}
}

// NewWSClient creates a client that delivers snapshots to handler. observer
// may be nil.
func NewWSClient(cfg Config, handler domain.OrderbookHandler, observer FeedObserver, logger *slog.Logger) *WSClient {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.DisplayURL == "" {
		cfg.DisplayURL = cfg.URL
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	dialer := &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if u, err := url.Parse(cfg.URL); err == nil && u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: u.Hostname(),
		}
	}

	return &WSClient{
		cfg:      cfg,
		handler:  handler,
		observer: observer,
		logger:   logger.With(slog.String("component", "gomarket_ws")),
		dialer:   dialer,
		backoff:  NewBackoff(cfg.InitialBackoff, cfg.MaxBackoff),
		state:    StateIdle,
	}
}

// Start launches the connection loop. It is a no-op when already running.
// The reconnect delay is reset to its initial value on every Start.
func (w *WSClient) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}
	w.running = true
	w.backoff.Reset()
	w.done = make(chan struct{})
	w.loopDone = make(chan struct{})

	w.logger.Info("starting feed", slog.String("url", w.cfg.DisplayURL))
	go w.run(w.done, w.loopDone)
}

// Stop closes the connection and waits for the loop to exit. After Stop
// returns no further snapshots are delivered. Safe to call repeatedly.
func (w *WSClient) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.done)
	conn := w.conn
	loopDone := w.loopDone
	w.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = conn.Close()
	}
	<-loopDone

	w.mu.Lock()
	w.state = StateIdle
	w.conn = nil
	w.mu.Unlock()

	w.logger.Info("feed stopped")
}

// IsConnected reports whether a live connection is established.
func (w *WSClient) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateConnected
}

// IsHealthy reports whether the feed is connected and has seen traffic within
// maxIdle. A non-positive maxIdle uses DefaultMaxIdle.
func (w *WSClient) IsHealthy(maxIdle time.Duration) bool {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateConnected && time.Since(w.lastMessage) <= maxIdle
}

// State returns the current connection state.
func (w *WSClient) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// ReconnectDelay returns the delay the next reconnect attempt will wait.
func (w *WSClient) ReconnectDelay() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.backoff.Current()
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

func (w *WSClient) run(done <-chan struct{}, loopDone chan<- struct{}) {
	defer close(loopDone)

	for {
		err := w.runConnection(done)

		select {
		case <-done:
			return
		default:
		}

		w.mu.Lock()
		delay := w.backoff.Next()
		w.state = StateBackoff
		w.mu.Unlock()

		w.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)
		w.observer.ConnectionState(false)
		w.observer.Reconnecting(delay)

		timer := time.NewTimer(delay)
		select {
		case <-done:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runConnection dials once and reads until the connection fails or done is
// closed.
func (w *WSClient) runConnection(done <-chan struct{}) error {
	w.setState(StateConnecting)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("gomarket/ws: dial: %w: %v", domain.ErrTransport, err)
	}

	w.mu.Lock()
	select {
	case <-done:
		w.mu.Unlock()
		_ = conn.Close()
		return nil
	default:
	}
	w.conn = conn
	w.state = StateConnected
	w.lastMessage = time.Now()
	w.mu.Unlock()

	w.logger.Info("feed connected", slog.String("url", w.cfg.DisplayURL))
	w.observer.ConnectionState(true)

	defer func() {
		w.mu.Lock()
		if w.conn == conn {
			w.conn = nil
		}
		w.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("gomarket/ws: read: %w: %v", domain.ErrTransport, err)
		}

		now := time.Now()
		w.mu.Lock()
		w.lastMessage = now
		w.mu.Unlock()

		book, err := ParseMessage(raw, now)
		if err != nil {
			w.observer.MessageDropped()
			w.logger.Debug("dropping malformed message", slog.String("error", err.Error()))
			continue
		}
		w.observer.MessageReceived()

		if w.handler != nil {
			w.handler.HandleOrderbook(book)
		}
	}
}

func (w *WSClient) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
