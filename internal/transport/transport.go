// Package transport defines the opaque real-time room contract the session
// core depends on. The coordinator never sees media internals, only
// connection state and participant presence.
package transport

import "context"

type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type Participant struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
}

type Credential struct {
	Token     string
	ServerURL string
}

// Handlers are invoked from the transport's own delivery goroutine. They
// must not block.
type Handlers struct {
	OnParticipantJoined func(Participant)
	OnParticipantLeft   func(Participant)
	OnStateChanged      func(State)
}

type Connection interface {
	State() State
	Participants() []Participant
	Disconnect() error
}

type Dialer interface {
	Dial(ctx context.Context, cred Credential, h Handlers) (Connection, error)
}
