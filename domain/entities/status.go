package entities

// ConnectionStatus is the single authoritative health value of a live
// session. Transitions drive UI affordances.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// Valid reports whether the status is one of the defined values.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected, StatusError:
		return true
	}
	return false
}

// Terminal reports whether a session in this status requires a fresh
// connect to recover.
func (s ConnectionStatus) Terminal() bool {
	return s == StatusDisconnected || s == StatusError
}
