package mirchat

// ConnectionState represents the lifecycle state of the real-time channel.
type ConnectionState int32

const (
	// StateIdle means no handle exists. Entered before the first connect
	// attempt and after teardown.
	StateIdle ConnectionState = iota

	// StateConnecting means a handle was created with a token attached and
	// the channel has not confirmed yet.
	StateConnecting

	// StateOpen means the channel is established and may transmit.
	StateOpen

	// StateClosed means the handle was terminated by the remote side, a
	// transport failure or an explicit replacement.
	StateClosed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Live reports whether a handle is in flight or established.
func (s ConnectionState) Live() bool {
	return s == StateConnecting || s == StateOpen
}

// Close reasons carried by StateEvent.Reason.
const (
	ReasonReplaced      = "replaced"
	ReasonRemoteClose   = "remote close"
	ReasonTransport     = "transport failure"
	ReasonDialFailed    = "dial failed"
	ReasonTeardown      = "teardown"
	ReasonInvalidTarget = "invalid channel url"
)

// StateEvent represents a state change event.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
	HandleID string // Handle that the transition applies to, empty for Idle
	Reason   string // Set when NewState is StateClosed or StateIdle
	Error    error  // Optional error that caused the state change
}
