package mirchat

// event is anything delivered to the session loop. Transport goroutines and
// timers only ever produce events; state is mutated when the loop applies them.
type event interface{ isEvent() }

// Transport events carry the handle that produced them so the loop can drop
// anything coming from a superseded handle.
type (
	handleOpened struct {
		h    *handle
		conn Conn
	}
	handleFailed struct {
		h   *handle
		err error
	}
	frameReceived struct {
		h    *handle
		data []byte
	}
	handleClosed struct {
		h   *handle
		err error
	}
	reconnectDue struct {
		seq uint64
	}
)

// Session events.
type (
	intent struct {
		fn   func()
		done chan struct{}
	}
	credentialReady struct {
		cred Credential
	}
	peersFetched struct {
		peers []Peer
	}
	visibilityChanged struct {
		foreground bool
	}
)

func (handleOpened) isEvent()      {}
func (handleFailed) isEvent()      {}
func (frameReceived) isEvent()     {}
func (handleClosed) isEvent()      {}
func (reconnectDue) isEvent()      {}
func (intent) isEvent()            {}
func (credentialReady) isEvent()   {}
func (peersFetched) isEvent()      {}
func (visibilityChanged) isEvent() {}
