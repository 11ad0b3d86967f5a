package gomarket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DoublesUpToCap(t *testing.T) {
	b := NewBackoff(0, 0)

	for k := 0; k < 12; k++ {
		want := time.Duration(1000*(1<<k)) * time.Millisecond
		if want > DefaultMaxBackoff {
			want = DefaultMaxBackoff
		}
		assert.Equal(t, want, b.Next(), "failure %d", k)
	}
	assert.Equal(t, DefaultMaxBackoff, b.Current())
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, 50*time.Millisecond)
	b.Next()
	b.Next()
	assert.Equal(t, 40*time.Millisecond, b.Current())

	b.Reset()
	assert.Equal(t, 10*time.Millisecond, b.Current())
	assert.Equal(t, 10*time.Millisecond, b.Next())
}

func TestBackoff_MaxBelowInitial(t *testing.T) {
	b := NewBackoff(time.Second, time.Millisecond)
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, time.Second, b.Next())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "backoff", StateBackoff.String())
	assert.Equal(t, "unknown", State(42).String())
}
