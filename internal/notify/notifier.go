// Package notify delivers operator alerts about the market data feed to chat
// channels (Telegram, Discord). Alerts are queued and sent from a worker so
// that the feed's I/O goroutine never waits on a webhook.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Event types an operator can subscribe to.
const (
	EventFeedConnected    = "feed_connected"
	EventFeedDisconnected = "feed_disconnected"
	EventFeedReconnecting = "feed_reconnecting"
)

const (
	defaultQueueSize   = 32
	defaultSendTimeout = 10 * time.Second
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

type notification struct {
	event   string
	title   string
	message string
}

// Notifier dispatches notifications to one or more Senders. Only events in
// the allowed set are queued; an empty set allows every event.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	queue   chan notification
	timeout time.Duration
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice will be forwarded by Notify.
// If events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan notification, defaultQueueSize),
		timeout: defaultSendTimeout,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify queues a notification if its event type is allowed. It never
// blocks; when the queue is full the notification is dropped and false is
// returned.
func (n *Notifier) Notify(event, title, message string) bool {
	if !n.Enabled() {
		return false
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.Debug("event filtered out", slog.String("event", event))
		return false
	}

	select {
	case n.queue <- notification{event: event, title: title, message: message}:
		return true
	default:
		n.logger.Warn("notification queue full, dropping", slog.String("event", event))
		return false
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-n.queue:
			sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
			_ = n.dispatch(sendCtx, msg.title, msg.message)
			cancel()
		}
	}
}

// dispatch sends to every sender. A single sender failure does not prevent
// delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
