package gomarket

// State is the lifecycle of the feed connection loop.
//
//	Idle -> Connecting -> Connected -> Backoff -> Connecting -> ...
//	any  -> Idle (on Stop)
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}
