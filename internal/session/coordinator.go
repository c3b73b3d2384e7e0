package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/api"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/registry"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/transport"
)

// Config wires a Coordinator to its collaborators.
type Config struct {
	RoomID        string
	Local         Identity
	Remote        Identity // expected partner; joins from anyone else are ignored
	Backend       Backend
	Dialer        transport.Dialer
	Registry      registry.Registry
	CostPerMinute int64
}

// Coordinator owns one session from credential acquisition to verdict. All
// mutable state sits behind one mutex; background work (meter, notifier,
// elapsed ticker) runs on a context cancelled at termination.
type Coordinator struct {
	cfg Config

	broker   *TokenBroker
	recon    *Reconnect
	detector *Detector
	meter    *Meter
	notifier *Notifier
	settler  *Settler
	gifts    *GiftFlow

	runCtx    context.Context
	runCancel context.CancelFunc

	mu            sync.Mutex
	state         State
	conn          transport.Connection
	remote        *transport.Participant
	everHadRemote bool
	remotePresent bool
	startedAt     time.Time
	elapsed       int
	balance       BalanceSnapshot
	verdict       *Verdict
	countdownEnds time.Time
	gen           int64
	connectedOnce bool
	lowBalance    bool
	watchdog      *time.Timer
	terminatedAt  time.Time
	termErr       error
}

func New(cfg Config) *Coordinator {
	runCtx, runCancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:       cfg,
		runCtx:    runCtx,
		runCancel: runCancel,
		state:     StateIdle,
		// No balance data until the first refresh lands.
		balance: BalanceSnapshot{Stale: true},
	}
	c.broker = NewTokenBroker(cfg.Backend, cfg.RoomID)
	c.recon = NewReconnect(c.broker, c.attach)
	c.detector = NewDetector(c.recon, c.remoteIsPresent, c.sawRemote, c.partnerDeclaredGone)
	c.meter = NewMeter(MeterConfig{
		RoomID:        cfg.RoomID,
		CostPerMinute: cfg.CostPerMinute,
		Backend:       cfg.Backend,
		Registry:      cfg.Registry,
		Elapsed:       c.ElapsedSeconds,
		OnDeduction:   c.applyDeduction,
		OnLowBalance:  c.setLowBalance,
		OnExhausted:   c.balanceExhausted,
	})
	c.notifier = NewNotifier(cfg.Backend, c.onNotification)
	c.settler = NewSettler(cfg.Backend)
	c.gifts = NewGiftFlow(GiftFlowConfig{
		Backend: cfg.Backend,
		RoomID:  cfg.RoomID,
		Local:   cfg.Local,
		Balance: c.Balance,
		Refresh: c.refreshBalance,
	})
	return c
}

// Start acquires credentials and connects. It returns once the dial has been
// issued; session readiness is observed through State.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrSessionTerminated
	}
	c.state = StateAcquiringToken
	gen := c.gen
	c.mu.Unlock()

	metricSessionsStarted.Add(1)
	cred, err := c.broker.Acquire(ctx)
	if err != nil {
		var ib *api.InsufficientBalanceError
		if errors.As(err, &ib) {
			c.finish(ReasonBalanceExhausted, RedirectReturnHome, 0, "")
			return err
		}
		c.terminate()
		return err
	}

	c.mu.Lock()
	if c.gen != gen || c.state == StateTerminated {
		c.mu.Unlock()
		return ErrSessionTerminated
	}
	c.state = StateConnecting
	c.watchdog = time.AfterFunc(connectTimeout, func() { c.connectExpired(gen) })
	c.mu.Unlock()

	conn, err := c.cfg.Dialer.Dial(ctx, cred, c.handlersFor(gen))
	if err != nil {
		c.mu.Lock()
		if c.watchdog != nil {
			c.watchdog.Stop()
		}
		c.mu.Unlock()
		c.finish(ReasonConnectFailed, RedirectReturnHome, 0, "")
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) handlersFor(gen int64) transport.Handlers {
	return transport.Handlers{
		OnStateChanged: func(s transport.State) {
			if c.stale(gen) {
				return
			}
			c.onTransportState(s)
		},
		OnParticipantJoined: func(p transport.Participant) {
			if c.stale(gen) {
				return
			}
			c.onRemoteJoined(p)
		},
		OnParticipantLeft: func(p transport.Participant) {
			if c.stale(gen) {
				return
			}
			c.onRemoteLeft(p)
		},
	}
}

func (c *Coordinator) stale(gen int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.gen || c.state == StateTerminated
}

func (c *Coordinator) onTransportState(s transport.State) {
	switch s {
	case transport.StateConnected:
		c.onConnected()
	case transport.StateDisconnected:
		c.mu.Lock()
		if c.state == StateConnected {
			c.state = StateReconnecting
		}
		c.mu.Unlock()
		log.Warn().Str("room", c.cfg.RoomID).Msg("transport disconnected")
		c.detector.Arm()
	}
}

func (c *Coordinator) onConnected() {
	c.mu.Lock()
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
	first := !c.connectedOnce
	c.connectedOnce = true
	c.state = StateConnected
	c.mu.Unlock()

	log.Info().Str("room", c.cfg.RoomID).Bool("initial", first).Msg("transport connected")
	if first {
		c.beginSession()
	}
}

// beginSession runs once, on the first successful connect: resume or reset
// the elapsed counter, then start the billing, polling and ticking loops.
func (c *Coordinator) beginSession() {
	resumeCtx, cancel := context.WithTimeout(c.runCtx, 3*time.Second)
	seconds, ok, err := c.cfg.Registry.LoadElapsed(resumeCtx, c.cfg.RoomID)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("room", c.cfg.RoomID).Msg("elapsed resume failed, starting fresh")
	}

	c.mu.Lock()
	c.startedAt = time.Now()
	if ok {
		c.elapsed = seconds
	}
	c.mu.Unlock()
	if ok {
		log.Info().Str("room", c.cfg.RoomID).Int("seconds", seconds).Msg("resumed elapsed counter")
	}

	go c.runElapsedTicker(c.runCtx)
	go c.meter.Run(c.runCtx)
	go c.notifier.Run(c.runCtx)
	go func() {
		if _, err := c.refreshBalance(c.runCtx); err != nil {
			log.Debug().Err(err).Msg("initial balance refresh failed")
		}
	}()
}

func (c *Coordinator) runElapsedTicker(ctx context.Context) {
	ticker := time.NewTicker(elapsedTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		c.mu.Lock()
		counting := c.state == StateConnected
		if counting {
			c.elapsed++
		}
		elapsed := c.elapsed
		c.mu.Unlock()
		if counting && elapsed%10 == 0 {
			saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := c.cfg.Registry.SaveElapsed(saveCtx, c.cfg.RoomID, elapsed); err != nil {
				log.Debug().Err(err).Msg("elapsed persist failed")
			}
			cancel()
		}
	}
}

// isPartner reports whether a room participant is the session's other party.
// The local identity never counts, and when the expected partner is known any
// other joiner (a stale ghost of a previous pairing, say) is ignored.
func (c *Coordinator) isPartner(p transport.Participant) bool {
	if p.ID == c.cfg.Local.ID {
		return false
	}
	return c.cfg.Remote.ID == "" || p.ID == c.cfg.Remote.ID
}

func (c *Coordinator) onRemoteJoined(p transport.Participant) {
	if !c.isPartner(p) {
		log.Debug().Str("room", c.cfg.RoomID).Str("participant", p.ID).Msg("ignoring unexpected participant")
		return
	}
	c.mu.Lock()
	c.remote = &p
	c.everHadRemote = true
	c.remotePresent = true
	c.mu.Unlock()
	log.Info().Str("room", c.cfg.RoomID).Str("participant", p.ID).Msg("partner joined")
	c.detector.Observe()
}

func (c *Coordinator) onRemoteLeft(p transport.Participant) {
	if !c.isPartner(p) {
		return
	}
	c.mu.Lock()
	c.remotePresent = false
	c.mu.Unlock()
	log.Info().Str("room", c.cfg.RoomID).Str("participant", p.ID).Msg("partner left room")
	c.detector.Arm()
}

func (c *Coordinator) remoteIsPresent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remotePresent && c.state == StateConnected
}

func (c *Coordinator) sawRemote() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.everHadRemote
}

// attach is the reconnection hook: dial with a fresh credential under a new
// generation, give the connection a moment to settle, and adopt it only if
// it reaches connected with the partner back in the room.
func (c *Coordinator) attach(ctx context.Context, cred transport.Credential) bool {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return false
	}
	c.gen++
	gen := c.gen
	old := c.conn
	c.mu.Unlock()

	if old != nil {
		_ = old.Disconnect()
	}
	conn, err := c.cfg.Dialer.Dial(ctx, cred, c.handlersFor(gen))
	if err != nil {
		log.Warn().Err(err).Msg("reconnect dial failed")
		return false
	}

	select {
	case <-ctx.Done():
		_ = conn.Disconnect()
		return false
	case <-time.After(reconnectSettleDelay):
	}

	if conn.State() != transport.StateConnected {
		_ = conn.Disconnect()
		return false
	}
	partnerBack := false
	for _, p := range conn.Participants() {
		if c.isPartner(p) {
			partnerBack = true
			c.onRemoteJoined(p)
		}
	}
	if !partnerBack {
		_ = conn.Disconnect()
		return false
	}

	c.mu.Lock()
	if c.gen != gen || c.state == StateTerminated {
		c.mu.Unlock()
		_ = conn.Disconnect()
		return false
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()
	return true
}

func (c *Coordinator) connectExpired(gen int64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.termErr = ErrConnectTimeout
	c.mu.Unlock()
	log.Warn().Err(ErrConnectTimeout).Str("room", c.cfg.RoomID).Msg("connection watchdog expired")
	c.finish(ReasonConnectFailed, RedirectReturnHome, 0, "")
}

func (c *Coordinator) partnerDeclaredGone() {
	c.finish(ReasonPartnerLeftSession, RedirectFindNext, verdictCountdown, "partner_left_session")
}

func (c *Coordinator) balanceExhausted() {
	c.gifts.SetDisabled(true)
	c.finish(ReasonBalanceExhausted, RedirectReturnHome, verdictCountdown, "balance_exhausted")
}

func (c *Coordinator) onNotification(n api.Notification) {
	log.Info().Str("room", c.cfg.RoomID).Str("type", n.Type).Msg("partner notification")
	switch n.Type {
	case api.NotificationPartnerWentNext:
		c.finish(ReasonPartnerWentNext, RedirectFindNext, verdictCountdown, "partner_went_next")
	case api.NotificationPartnerLeftSession:
		c.finish(ReasonPartnerLeftSession, RedirectFindNext, verdictCountdown, "partner_left_session")
	case api.NotificationCallReplaced:
		// The room now belongs to a newer mount; drop the transport before
		// anything else so two connections never share it.
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Disconnect()
		}
		c.finish(ReasonCallReplaced, RedirectFindNext, 0, "")
	default:
		log.Debug().Str("type", n.Type).Msg("unhandled notification type")
	}
}

// Skip ends the session because the local user wants the next partner.
func (c *Coordinator) Skip(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateTerminated || c.verdict != nil {
		c.mu.Unlock()
		return ErrSessionTerminated
	}
	c.mu.Unlock()

	if err := c.cfg.Backend.NotifyPartnerNext(ctx, c.cfg.RoomID); err != nil {
		log.Warn().Err(err).Msg("partner next notification failed")
	}
	c.finish(ReasonSelfInitiatedNext, RedirectFindNext, 0, "self")
	return nil
}

// End ends the session because the local user is done.
func (c *Coordinator) End(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateTerminated || c.verdict != nil {
		c.mu.Unlock()
		return ErrSessionTerminated
	}
	c.mu.Unlock()

	if err := c.cfg.Backend.NotifyPartnerStop(ctx, c.cfg.RoomID); err != nil {
		log.Warn().Err(err).Msg("partner stop notification failed")
	}
	c.finish(ReasonSelfInitiatedStop, RedirectReturnHome, 0, "self")
	return nil
}

// finish records the verdict exactly once per session, both locally and in
// the cross-mount registry, settles earnings when the ending is billable,
// and either terminates now or after the countdown.
func (c *Coordinator) finish(reason Reason, redirect RedirectAction, countdown int, endedBy string) {
	c.mu.Lock()
	if c.verdict != nil || c.state == StateTerminated {
		c.mu.Unlock()
		return
	}
	c.verdict = &Verdict{Reason: reason, Redirect: redirect, CountdownSeconds: countdown}
	if countdown > 0 {
		c.countdownEnds = time.Now().Add(time.Duration(countdown) * time.Second)
	}
	elapsed := c.elapsed
	remote := c.remote
	c.mu.Unlock()

	markCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	first, err := c.cfg.Registry.MarkVerdict(markCtx, c.cfg.RoomID)
	cancel()
	settle := first
	if err != nil {
		// A registry failure must not swallow settlement; the backend call
		// is idempotent on its side.
		log.Warn().Err(err).Str("room", c.cfg.RoomID).Msg("verdict registry mark failed")
		settle = true
	} else if !first {
		log.Debug().Str("room", c.cfg.RoomID).Msg("verdict already marked by another mount")
	}

	metricVerdicts.Add(1)
	log.Info().Str("room", c.cfg.RoomID).Str("reason", string(reason)).
		Str("redirect", string(redirect)).Int("elapsed_s", elapsed).Msg("session verdict")

	if endedBy != "" && settle {
		req := api.EarningsRequest{
			Room:            c.cfg.RoomID,
			DurationSeconds: elapsed,
			EndedBy:         endedBy,
		}
		if c.cfg.Local.Role == RoleHost {
			req.HostID = c.cfg.Local.ID
			if remote != nil {
				req.GuestID = remote.ID
			}
		} else {
			req.GuestID = c.cfg.Local.ID
			if remote != nil {
				req.HostID = remote.ID
			}
		}
		c.settler.Settle(req)
	}

	if countdown <= 0 {
		c.terminate()
		return
	}
	go c.runCountdown(countdown)
}

func (c *Coordinator) runCountdown(seconds int) {
	ticker := time.NewTicker(countdownTick)
	defer ticker.Stop()
	for remaining := seconds; remaining > 0; remaining-- {
		select {
		case <-c.runCtx.Done():
			return
		case <-ticker.C:
		}
	}
	c.terminate()
}

// terminate tears everything down. Idempotent; safe from any goroutine.
func (c *Coordinator) terminate() {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return
	}
	c.state = StateTerminated
	c.terminatedAt = time.Now()
	c.gen++
	conn := c.conn
	c.conn = nil
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
	elapsed := c.elapsed
	c.mu.Unlock()

	c.detector.Stop()
	c.runCancel()
	if conn != nil {
		_ = conn.Disconnect()
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := c.cfg.Registry.SaveElapsed(saveCtx, c.cfg.RoomID, elapsed); err != nil {
		log.Debug().Err(err).Msg("final elapsed persist failed")
	}
	cancel()
	log.Info().Str("room", c.cfg.RoomID).Int("elapsed_s", elapsed).Msg("session terminated")
}

// Close tears the session down without producing a verdict, for process
// shutdown rather than a user- or partner-driven ending.
func (c *Coordinator) Close() {
	c.terminate()
}

func (c *Coordinator) applyDeduction(res api.DeductionResult) {
	c.mu.Lock()
	c.balance.Coins = res.RemainingBalance
	c.balance.RemainingMinutes = res.MinutesRemaining
	c.balance.Stale = false
	c.mu.Unlock()
}

func (c *Coordinator) setLowBalance(active bool) {
	c.mu.Lock()
	c.lowBalance = active
	c.mu.Unlock()
	// The warning and the gift gate move together: no new gift spend while
	// the balance may not cover the next minute.
	c.gifts.SetDisabled(active)
	if active {
		log.Info().Str("room", c.cfg.RoomID).Msg("low balance warning raised, gift flow disabled")
	} else {
		log.Info().Str("room", c.cfg.RoomID).Msg("low balance warning cleared, gift flow enabled")
	}
}

func (c *Coordinator) refreshBalance(ctx context.Context) (BalanceSnapshot, error) {
	qb, err := c.cfg.Backend.QuickBalance(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.balance.Stale = true
		return c.balance, err
	}
	c.balance = BalanceSnapshot{
		Coins:            qb.TotalCoins,
		GiftCoins:        qb.GiftCoins,
		RemainingMinutes: qb.RemainingMinutes,
	}
	bal := c.balance
	go c.meter.ObserveMinutes(qb.RemainingMinutes)
	if qb.ShouldEndSession {
		go c.balanceExhausted()
	}
	return bal, nil
}

// --- read surface ---

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) RemoteParticipant() *transport.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return nil
	}
	p := *c.remote
	return &p
}

func (c *Coordinator) ElapsedSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

func (c *Coordinator) Balance() BalanceSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance
}

func (c *Coordinator) LowBalanceWarning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lowBalance
}

// Verdict returns a copy with the countdown adjusted for elapsed wall time,
// or nil while the session is live.
func (c *Coordinator) Verdict() *Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.verdict == nil {
		return nil
	}
	v := *c.verdict
	if v.CountdownSeconds > 0 {
		remaining := int(time.Until(c.countdownEnds).Round(time.Second) / time.Second)
		if remaining < 0 {
			remaining = 0
		}
		v.CountdownSeconds = remaining
	}
	return &v
}

// Gifts exposes the session's gift flow.
func (c *Coordinator) Gifts() *GiftFlow {
	return c.gifts
}

func (c *Coordinator) LocalRole() Role {
	return c.cfg.Local.Role
}

// Err returns the fatal error that ended the session, if any. Today that is
// only ErrConnectTimeout from the connect watchdog.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.termErr
}

// TerminatedSince reports when the session terminated, zero while live.
func (c *Coordinator) TerminatedSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminatedAt
}
