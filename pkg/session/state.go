package session

// State is the connection state of the messaging session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateRegistering
	StateConnected
	StateOffline
	StateError
	StateRegisterFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateAuthenticating:
		return "Authenticating"
	case StateRegistering:
		return "Registering"
	case StateConnected:
		return "Connected"
	case StateOffline:
		return "Offline"
	case StateError:
		return "Error"
	case StateRegisterFailed:
		return "RegisterFailed"
	default:
		return "Unknown"
	}
}

// Failed reports whether the session is down and waiting for a reconnect.
func (s State) Failed() bool {
	return s == StateError || s == StateOffline
}

// inProgress reports whether a connect attempt is running or has succeeded.
func (s State) inProgress() bool {
	switch s {
	case StateConnecting, StateAuthenticating, StateRegistering, StateConnected:
		return true
	}
	return false
}
