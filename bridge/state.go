package bridge

// State names a position in the bridge lifecycle state machine.
type State string

const (
	// Idle is the state before the first Initialize and after
	// Shutdown.
	Idle State = "IDLE"
	// Initializing covers transport construction, before the message
	// pump is attached.
	Initializing State = "INITIALIZING"
	// Running is the normal full-duplex forwarding state.
	Running State = "RUNNING"
	// WaitingForServer is entered when the server transport closes
	// under the WaitForReconnection policy: the client transport is
	// closed and dropped, forwarding is stopped, and the bridge waits to
	// build a replacement server and client transport pair.
	WaitingForServer State = "WAITING_FOR_SERVER"
	// ShuttingDown covers transport teardown, before the state returns
	// to Idle.
	ShuttingDown State = "SHUTTING_DOWN"
)
