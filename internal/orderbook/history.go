package orderbook

import "github.com/alanyoungcy/tradesim/internal/domain"

// DefaultHistoryWindow is the number of snapshots retained when no window is
// configured.
const DefaultHistoryWindow = 100

// History is a fixed-capacity FIFO of snapshots backed by a ring buffer. When
// full, pushing evicts the oldest entry. History is not safe for concurrent
// use; the Processor serialises access with its own lock.
type History struct {
	buf   []domain.OrderbookData
	start int
	size  int
}

// NewHistory returns an empty history holding at most capacity entries. A
// non-positive capacity falls back to DefaultHistoryWindow.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryWindow
	}
	return &History{buf: make([]domain.OrderbookData, capacity)}
}

// Push appends d, evicting the oldest entry if the history is full.
func (h *History) Push(d domain.OrderbookData) {
	capacity := len(h.buf)
	if h.size < capacity {
		h.buf[(h.start+h.size)%capacity] = d
		h.size++
		return
	}
	h.buf[h.start] = d
	h.start = (h.start + 1) % capacity
}

// Len returns the number of retained snapshots.
func (h *History) Len() int { return h.size }

// Cap returns the configured capacity.
func (h *History) Cap() int { return len(h.buf) }

// Snapshots returns a copy of the retained entries, oldest first.
func (h *History) Snapshots() []domain.OrderbookData {
	out := make([]domain.OrderbookData, 0, h.size)
	h.each(func(d *domain.OrderbookData) {
		out = append(out, *d)
	})
	return out
}

// MidPrices returns the mid-price of every retained snapshot that has both
// sides populated, oldest first.
func (h *History) MidPrices() []float64 {
	mids := make([]float64, 0, h.size)
	h.each(func(d *domain.OrderbookData) {
		if mid, ok := d.MidPrice(); ok {
			mids = append(mids, mid)
		}
	})
	return mids
}

func (h *History) each(fn func(*domain.OrderbookData)) {
	for i := 0; i < h.size; i++ {
		fn(&h.buf[(h.start+i)%len(h.buf)])
	}
}
