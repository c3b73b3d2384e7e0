package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/api"
)

type GiftState string

const (
	GiftPending  GiftState = "pending"
	GiftAccepted GiftState = "accepted"
	GiftRejected GiftState = "rejected"
	GiftExpired  GiftState = "expired"
)

func (s GiftState) terminal() bool { return s != GiftPending }

// giftRequest carries one gift offer through its lifetime. Its mutex is held
// across the settling network call so duplicate accepts serialize instead of
// racing.
type giftRequest struct {
	mu           sync.Mutex
	id           string
	giftID       string
	senderID     string
	recipientID  string
	message      string
	securityHash string
	price        int64
	state        GiftState
	createdAt    time.Time
}

// GiftInfo is an immutable view of a gift request.
type GiftInfo struct {
	RequestID   string    `json:"requestId"`
	GiftID      string    `json:"giftId"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Message     string    `json:"message,omitempty"`
	PriceCoins  int64     `json:"priceCoins"`
	State       GiftState `json:"state"`
}

// GiftFlow escrows gift offers between the two participants. Requests are
// created by the host, settled by the guest, and every settlement path is
// idempotent: a gift can debit coins at most once no matter how many times
// accept is pressed.
type GiftFlow struct {
	backend Backend
	roomID  string
	local   Identity

	balance func() BalanceSnapshot
	refresh func(ctx context.Context) (BalanceSnapshot, error)

	mu       sync.Mutex
	disabled bool
	requests map[string]*giftRequest
}

type GiftFlowConfig struct {
	Backend Backend
	RoomID  string
	Local   Identity
	Balance func() BalanceSnapshot
	Refresh func(ctx context.Context) (BalanceSnapshot, error)
}

func NewGiftFlow(cfg GiftFlowConfig) *GiftFlow {
	return &GiftFlow{
		backend:  cfg.Backend,
		roomID:   cfg.RoomID,
		local:    cfg.Local,
		balance:  cfg.Balance,
		refresh:  cfg.Refresh,
		requests: make(map[string]*giftRequest),
	}
}

// SetDisabled gates gift creation, typically from a remote feature flag.
// Requests already pending may still settle.
func (g *GiftFlow) SetDisabled(disabled bool) {
	g.mu.Lock()
	g.disabled = disabled
	g.mu.Unlock()
}

// Request offers a gift to the guest. Host only.
func (g *GiftFlow) Request(ctx context.Context, giftID, recipientID, message string) (GiftInfo, error) {
	if g.local.Role != RoleHost {
		return GiftInfo{}, ErrRoleNotAllowed
	}
	g.mu.Lock()
	if g.disabled {
		g.mu.Unlock()
		return GiftInfo{}, ErrGiftsDisabled
	}
	g.mu.Unlock()

	id := NewID()
	res, err := g.backend.GiftRequest(ctx, api.GiftRequestBody{
		Room:        g.roomID,
		RequestID:   id,
		GiftID:      giftID,
		SenderID:    g.local.ID,
		RecipientID: recipientID,
		Message:     message,
	})
	if err != nil {
		return GiftInfo{}, err
	}
	if res.RequestID != "" {
		id = res.RequestID
	}
	req := &giftRequest{
		id:           id,
		giftID:       giftID,
		senderID:     g.local.ID,
		recipientID:  recipientID,
		message:      message,
		securityHash: res.SecurityHash,
		price:        res.PriceCoins,
		state:        GiftPending,
		createdAt:    time.Now(),
	}
	g.mu.Lock()
	g.requests[id] = req
	g.mu.Unlock()
	log.Info().Str("request", id).Str("gift", giftID).Int64("price", res.PriceCoins).
		Msg("gift requested")
	return req.info(), nil
}

// Send is the guest's direct path: register the gift and immediately settle
// it through the same accept flow, so both paths share one debit guard.
func (g *GiftFlow) Send(ctx context.Context, giftID, recipientID, message string) (GiftInfo, error) {
	if g.local.Role != RoleGuest {
		return GiftInfo{}, ErrRoleNotAllowed
	}
	g.mu.Lock()
	if g.disabled {
		g.mu.Unlock()
		return GiftInfo{}, ErrGiftsDisabled
	}
	g.mu.Unlock()

	id := NewID()
	res, err := g.backend.GiftRequest(ctx, api.GiftRequestBody{
		Room:        g.roomID,
		RequestID:   id,
		GiftID:      giftID,
		SenderID:    g.local.ID,
		RecipientID: recipientID,
		Message:     message,
	})
	if err != nil {
		return GiftInfo{}, err
	}
	if res.RequestID != "" {
		id = res.RequestID
	}
	req := &giftRequest{
		id:           id,
		giftID:       giftID,
		senderID:     g.local.ID,
		recipientID:  recipientID,
		message:      message,
		securityHash: res.SecurityHash,
		price:        res.PriceCoins,
		state:        GiftPending,
		createdAt:    time.Now(),
	}
	g.mu.Lock()
	g.requests[id] = req
	g.mu.Unlock()

	if err := g.Accept(ctx, id); err != nil {
		return req.info(), err
	}
	return req.info(), nil
}

// Accept settles a pending gift, debiting the payer. Safe to call any number
// of times; only the first effective call charges.
func (g *GiftFlow) Accept(ctx context.Context, requestID string) error {
	req := g.lookup(requestID)
	if req == nil {
		return ErrGiftNotFound
	}

	req.mu.Lock()
	defer req.mu.Unlock()
	if req.state.terminal() {
		return nil
	}

	// Local short-circuit: a balance the cache already knows is short never
	// reaches the network.
	if bal := g.balance(); !bal.Stale && bal.GiftCoins < req.price {
		return ErrInsufficientGiftCoins
	}

	before := g.balance()
	err := g.backend.GiftAccept(ctx, api.GiftAcceptBody{
		RequestID:    req.id,
		SecurityHash: req.securityHash,
	})
	switch {
	case err == nil:
		req.state = GiftAccepted
		metricGiftAccepts.Add(1)
		g.refreshQuiet(ctx)
		log.Info().Str("request", req.id).Msg("gift accepted")
		return nil

	case errors.Is(err, api.ErrAlreadyProcessed), errors.Is(err, api.ErrNotFound):
		// The backend has already settled this request; converge.
		metricGiftDuplicates.Add(1)
		req.state = GiftAccepted
		g.refreshQuiet(ctx)
		return nil
	}

	var ib *api.InsufficientBalanceError
	if errors.As(err, &ib) {
		g.refreshQuiet(ctx)
		return err
	}
	var ve *api.ValidationError
	if errors.As(err, &ve) {
		return err
	}

	// Ambiguous outcome: the request may or may not have debited. Wait for
	// the backend to settle, then let the balance decide.
	log.Warn().Err(err).Str("request", req.id).Msg("gift accept outcome unknown, reconciling")
	select {
	case <-ctx.Done():
		return ErrGiftOutcomeUnknown
	case <-time.After(giftReconcileDelay):
	}
	after, rerr := g.refresh(ctx)
	if rerr == nil && !before.Stale && after.GiftCoins <= before.GiftCoins-req.price {
		req.state = GiftAccepted
		metricGiftAccepts.Add(1)
		log.Info().Str("request", req.id).Msg("gift accept reconciled as charged")
		return nil
	}
	return ErrGiftOutcomeUnknown
}

// Reject declines a pending gift. Idempotent like Accept.
func (g *GiftFlow) Reject(ctx context.Context, requestID string) error {
	req := g.lookup(requestID)
	if req == nil {
		return ErrGiftNotFound
	}

	req.mu.Lock()
	defer req.mu.Unlock()
	if req.state.terminal() {
		return nil
	}

	err := g.backend.GiftReject(ctx, api.GiftRejectBody{RequestID: req.id})
	if err != nil && !errors.Is(err, api.ErrAlreadyProcessed) && !errors.Is(err, api.ErrNotFound) {
		return err
	}
	req.state = GiftRejected
	log.Info().Str("request", req.id).Msg("gift rejected")
	return nil
}

// ExpireStale marks pending requests past their TTL as expired and returns
// how many changed.
func (g *GiftFlow) ExpireStale() int {
	cutoff := time.Now().Add(-giftPendingTTL)
	var stale []*giftRequest
	g.mu.Lock()
	for _, req := range g.requests {
		stale = append(stale, req)
	}
	g.mu.Unlock()

	expired := 0
	for _, req := range stale {
		req.mu.Lock()
		if req.state == GiftPending && req.createdAt.Before(cutoff) {
			req.state = GiftExpired
			expired++
		}
		req.mu.Unlock()
	}
	if expired > 0 {
		log.Debug().Int("count", expired).Msg("expired stale gift requests")
	}
	return expired
}

// Pending returns the non-terminal gift requests, oldest first not
// guaranteed.
func (g *GiftFlow) Pending() []GiftInfo {
	g.mu.Lock()
	reqs := make([]*giftRequest, 0, len(g.requests))
	for _, req := range g.requests {
		reqs = append(reqs, req)
	}
	g.mu.Unlock()

	var out []GiftInfo
	for _, req := range reqs {
		req.mu.Lock()
		if req.state == GiftPending {
			out = append(out, req.infoLocked())
		}
		req.mu.Unlock()
	}
	return out
}

func (g *GiftFlow) lookup(id string) *giftRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[id]
}

func (g *GiftFlow) refreshQuiet(ctx context.Context) {
	if _, err := g.refresh(ctx); err != nil {
		log.Debug().Err(err).Msg("balance refresh after gift settlement failed")
	}
}

func (r *giftRequest) info() GiftInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infoLocked()
}

func (r *giftRequest) infoLocked() GiftInfo {
	return GiftInfo{
		RequestID:   r.id,
		GiftID:      r.giftID,
		SenderID:    r.senderID,
		RecipientID: r.recipientID,
		Message:     r.message,
		PriceCoins:  r.price,
		State:       r.state,
	}
}
