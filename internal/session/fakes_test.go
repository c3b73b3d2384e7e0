package session

import (
	"context"
	"sync"

	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/api"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/transport"
)

// fakeBackend implements Backend with per-method hooks. Unset hooks return
// zero values and nil errors. Call counts are tracked under the mutex.
type fakeBackend struct {
	mu sync.Mutex

	tokenFn     func(api.TokenRequest) (api.Credential, error)
	balanceFn   func() (api.QuickBalance, error)
	deductFn    func(api.DeductionRequest) (api.DeductionResult, error)
	statusFn    func() (api.StatusUpdate, error)
	giftReqFn   func(api.GiftRequestBody) (api.GiftRequestResult, error)
	giftAcceptFn func(api.GiftAcceptBody) error
	giftRejectFn func(api.GiftRejectBody) error
	earningsFn  func(api.EarningsRequest) error

	tokenCalls    int
	deductCalls   int
	statusCalls   int
	acceptCalls   int
	nextCalls     int
	stopCalls     int
	earningsCalls int
	earningsReqs  []api.EarningsRequest
}

func (f *fakeBackend) Token(_ context.Context, req api.TokenRequest) (api.Credential, error) {
	f.mu.Lock()
	f.tokenCalls++
	fn := f.tokenFn
	f.mu.Unlock()
	if fn == nil {
		return api.Credential{Token: "tok", ServerURL: "wss://room.test"}, nil
	}
	return fn(req)
}

func (f *fakeBackend) QuickBalance(context.Context) (api.QuickBalance, error) {
	f.mu.Lock()
	fn := f.balanceFn
	f.mu.Unlock()
	if fn == nil {
		return api.QuickBalance{TotalCoins: 100, GiftCoins: 50, RemainingMinutes: 10}, nil
	}
	return fn()
}

func (f *fakeBackend) PeriodicDeduction(_ context.Context, req api.DeductionRequest) (api.DeductionResult, error) {
	f.mu.Lock()
	f.deductCalls++
	fn := f.deductFn
	f.mu.Unlock()
	if fn == nil {
		return api.DeductionResult{Success: true, RemainingBalance: 90, MinutesRemaining: 9}, nil
	}
	return fn(req)
}

func (f *fakeBackend) StatusUpdates(context.Context) (api.StatusUpdate, error) {
	f.mu.Lock()
	f.statusCalls++
	fn := f.statusFn
	f.mu.Unlock()
	if fn == nil {
		return api.StatusUpdate{}, nil
	}
	return fn()
}

func (f *fakeBackend) NotifyPartnerNext(context.Context, string) error {
	f.mu.Lock()
	f.nextCalls++
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) NotifyPartnerStop(context.Context, string) error {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) GiftRequest(_ context.Context, req api.GiftRequestBody) (api.GiftRequestResult, error) {
	f.mu.Lock()
	fn := f.giftReqFn
	f.mu.Unlock()
	if fn == nil {
		return api.GiftRequestResult{RequestID: req.RequestID, PriceCoins: 10, SecurityHash: "h"}, nil
	}
	return fn(req)
}

func (f *fakeBackend) GiftAccept(_ context.Context, req api.GiftAcceptBody) error {
	f.mu.Lock()
	f.acceptCalls++
	fn := f.giftAcceptFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(req)
}

func (f *fakeBackend) GiftReject(_ context.Context, req api.GiftRejectBody) error {
	f.mu.Lock()
	fn := f.giftRejectFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(req)
}

func (f *fakeBackend) ProcessSessionEarnings(_ context.Context, req api.EarningsRequest) error {
	f.mu.Lock()
	f.earningsCalls++
	f.earningsReqs = append(f.earningsReqs, req)
	fn := f.earningsFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(req)
}

func (f *fakeBackend) counts() (token, deduct, earnings int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls, f.deductCalls, f.earningsCalls
}

// fakeConn is a scriptable room connection.
type fakeConn struct {
	mu           sync.Mutex
	state        transport.State
	participants []transport.Participant
	disconnects  int
	handlers     transport.Handlers
}

func (c *fakeConn) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) Participants() []transport.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transport.Participant, len(c.participants))
	copy(out, c.participants)
	return out
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	c.disconnects++
	c.state = transport.StateDisconnected
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) connect() {
	c.mu.Lock()
	c.state = transport.StateConnected
	h := c.handlers
	c.mu.Unlock()
	if h.OnStateChanged != nil {
		h.OnStateChanged(transport.StateConnected)
	}
}

func (c *fakeConn) join(p transport.Participant) {
	c.mu.Lock()
	c.participants = append(c.participants, p)
	h := c.handlers
	c.mu.Unlock()
	if h.OnParticipantJoined != nil {
		h.OnParticipantJoined(p)
	}
}

func (c *fakeConn) leave(p transport.Participant) {
	c.mu.Lock()
	kept := c.participants[:0]
	for _, q := range c.participants {
		if q.ID != p.ID {
			kept = append(kept, q)
		}
	}
	c.participants = kept
	h := c.handlers
	c.mu.Unlock()
	if h.OnParticipantLeft != nil {
		h.OnParticipantLeft(p)
	}
}

func (c *fakeConn) drop() {
	c.mu.Lock()
	c.state = transport.StateDisconnected
	h := c.handlers
	c.mu.Unlock()
	if h.OnStateChanged != nil {
		h.OnStateChanged(transport.StateDisconnected)
	}
}

// fakeDialer hands out fakeConns and remembers them in dial order. When
// autoConnect is set, new connections come up connected with the given
// participants already in the room.
type fakeDialer struct {
	mu               sync.Mutex
	dialErr          error
	autoConnect      bool
	autoParticipants []transport.Participant
	conns            []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ transport.Credential, h transport.Handlers) (transport.Connection, error) {
	d.mu.Lock()
	if d.dialErr != nil {
		d.mu.Unlock()
		return nil, d.dialErr
	}
	conn := &fakeConn{state: transport.StateConnecting, handlers: h}
	if d.autoConnect {
		conn.state = transport.StateConnected
		conn.participants = append(conn.participants, d.autoParticipants...)
	}
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	if d.autoConnect && h.OnStateChanged != nil {
		h.OnStateChanged(transport.StateConnected)
	}
	return conn, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}
