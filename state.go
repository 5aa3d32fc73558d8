package pasugo

// State is the connection state of a chat session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseReason records why a session reached StateClosed.
type CloseReason string

const (
	ReasonNone           CloseReason = ""
	ReasonUser           CloseReason = "user"
	ReasonDisposed       CloseReason = "disposed"
	ReasonSwitched       CloseReason = "switched"
	ReasonTaskEnded      CloseReason = "task_ended"
	ReasonAuthRejected   CloseReason = "auth_rejected"
	ReasonRejected       CloseReason = "rejected"
	ReasonConnectionLost CloseReason = "connection_lost"
	ReasonRemote         CloseReason = "remote"
)

// intentional reports whether the caller asked for the close.
func (r CloseReason) intentional() bool {
	return r == ReasonUser || r == ReasonDisposed || r == ReasonSwitched
}
