package notify

import (
	"fmt"
	"sync"
	"time"
)

// FeedAlerts turns feed connection events into notifications. It implements
// gomarket.FeedObserver; per-message events are ignored.
type FeedAlerts struct {
	n      *Notifier
	source string

	mu        sync.Mutex
	connected bool
	downSince time.Time
	now       func() time.Time
}

// NewFeedAlerts creates a FeedAlerts for the feed identified by source
// (typically its URL).
func NewFeedAlerts(n *Notifier, source string) *FeedAlerts {
	return &FeedAlerts{n: n, source: source, now: time.Now}
}

func (f *FeedAlerts) MessageReceived() {}
func (f *FeedAlerts) MessageDropped()  {}

// Reconnecting alerts on every scheduled reconnect attempt.
func (f *FeedAlerts) Reconnecting(delay time.Duration) {
	f.n.Notify(EventFeedReconnecting, "Feed reconnecting",
		fmt.Sprintf("%s: next attempt in %s", f.source, delay))
}

// ConnectionState alerts on transitions only. A reconnect reports how long
// the feed was down.
func (f *FeedAlerts) ConnectionState(connected bool) {
	f.mu.Lock()
	if connected == f.connected {
		f.mu.Unlock()
		return
	}
	f.connected = connected
	now := f.now()
	var downFor time.Duration
	if connected {
		if !f.downSince.IsZero() {
			downFor = now.Sub(f.downSince)
		}
	} else {
		f.downSince = now
	}
	f.mu.Unlock()

	if !connected {
		f.n.Notify(EventFeedDisconnected, "Feed disconnected", f.source)
		return
	}
	msg := f.source
	if downFor > 0 {
		msg = fmt.Sprintf("%s (down for %s)", f.source, downFor.Round(time.Millisecond))
	}
	f.n.Notify(EventFeedConnected, "Feed connected", msg)
}
