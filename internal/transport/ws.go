package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	wsWriteTimeout = 5 * time.Second
	wsPongTimeout  = 30 * time.Second
)

// WSDialer connects to the room server named by the credential and decodes
// its presence/state frames into Handlers callbacks.
type WSDialer struct {
	dialer *websocket.Dialer
}

func NewWSDialer() *WSDialer {
	return &WSDialer{dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second}}
}

type wsFrame struct {
	Type        string       `json:"type"`
	State       string       `json:"state,omitempty"`
	Participant *Participant `json:"participant,omitempty"`
}

type wsConn struct {
	conn     *websocket.Conn
	handlers Handlers

	mu           sync.Mutex
	state        State
	participants map[string]Participant
	closed       bool
}

func (d *WSDialer) Dial(ctx context.Context, cred Credential, h Handlers) (Connection, error) {
	header := http.Header{}
	if cred.Token != "" {
		header.Set("Authorization", "Bearer "+cred.Token)
	}
	conn, resp, err := d.dialer.DialContext(ctx, cred.ServerURL, header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c := &wsConn{
		conn:         conn,
		handlers:     h,
		state:        StateConnecting,
		participants: map[string]Participant{},
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	go c.readLoop()
	return c, nil
}

func (c *wsConn) readLoop() {
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	for {
		var frame wsFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.markDisconnected()
			return
		}
		c.dispatch(frame)
	}
}

func (c *wsConn) dispatch(frame wsFrame) {
	switch frame.Type {
	case "state":
		c.setState(parseState(frame.State))
	case "participant_joined":
		if frame.Participant == nil {
			return
		}
		c.mu.Lock()
		c.participants[frame.Participant.ID] = *frame.Participant
		c.mu.Unlock()
		if c.handlers.OnParticipantJoined != nil {
			c.handlers.OnParticipantJoined(*frame.Participant)
		}
	case "participant_left":
		if frame.Participant == nil {
			return
		}
		c.mu.Lock()
		delete(c.participants, frame.Participant.ID)
		c.mu.Unlock()
		if c.handlers.OnParticipantLeft != nil {
			c.handlers.OnParticipantLeft(*frame.Participant)
		}
	default:
		log.Debug().Str("frame_type", frame.Type).Msg("ignoring unknown room frame")
	}
}

func parseState(s string) State {
	switch s {
	case "connected":
		return StateConnected
	case "disconnected":
		return StateDisconnected
	default:
		return StateConnecting
	}
}

func (c *wsConn) setState(s State) {
	c.mu.Lock()
	if c.closed || c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	if c.handlers.OnStateChanged != nil {
		c.handlers.OnStateChanged(s)
	}
}

func (c *wsConn) markDisconnected() {
	c.setState(StateDisconnected)
}

func (c *wsConn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *wsConn) Participants() []Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Participant, 0, len(c.participants))
	for _, p := range c.participants {
		out = append(out, p)
	}
	return out
}

func (c *wsConn) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateDisconnected
	c.mu.Unlock()

	deadline := time.Now().Add(wsWriteTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}
