package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/api"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/registry"
)

// Meter charges one minute of coins for every completed minute of session
// time. It only runs while it owns the room's ledger lock, so remounted
// meters for the same room can never double-charge.
type Meter struct {
	roomID  string
	owner   string
	cost    int64
	backend Backend
	reg     registry.Registry

	elapsed      func() int
	onDeduction  func(api.DeductionResult)
	onLowBalance func(active bool)
	onExhausted  func()

	warnMu sync.Mutex
	warned bool
}

type MeterConfig struct {
	RoomID        string
	CostPerMinute int64
	Backend       Backend
	Registry      registry.Registry

	Elapsed      func() int
	OnDeduction  func(api.DeductionResult)
	OnLowBalance func(active bool)
	OnExhausted  func()
}

func NewMeter(cfg MeterConfig) *Meter {
	return &Meter{
		roomID:       cfg.RoomID,
		owner:        NewID(),
		cost:         cfg.CostPerMinute,
		backend:      cfg.Backend,
		reg:          cfg.Registry,
		elapsed:      cfg.Elapsed,
		onDeduction:  cfg.OnDeduction,
		onLowBalance: cfg.OnLowBalance,
		onExhausted:  cfg.OnExhausted,
	}
}

// Run blocks until ctx is cancelled, the lock is lost, or the balance is
// exhausted. A meter that cannot win the ledger lock does not run at all.
func (m *Meter) Run(ctx context.Context) {
	ok, err := m.reg.AcquireLock(ctx, m.roomID, m.owner, ledgerLockTTL)
	if err != nil {
		log.Error().Err(err).Str("room", m.roomID).Msg("ledger lock acquisition failed")
		return
	}
	if !ok {
		log.Info().Str("room", m.roomID).Msg("another meter owns the room ledger, standing down")
		return
	}
	defer func() {
		_ = m.reg.ReleaseLock(context.Background(), m.roomID, m.owner)
	}()

	ticker := time.NewTicker(meterTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.tick(ctx) {
				return
			}
		}
	}
}

func (m *Meter) tick(ctx context.Context) bool {
	if ok, err := m.reg.RenewLock(ctx, m.roomID, m.owner, ledgerLockTTL); err == nil && !ok {
		log.Warn().Str("room", m.roomID).Msg("ledger lock lost, stopping meter")
		return false
	}

	completed := m.elapsed() / billingGranularity
	cursor, err := m.reg.LastDeductedMinute(ctx, m.roomID)
	if err != nil {
		log.Warn().Err(err).Str("room", m.roomID).Msg("ledger cursor read failed")
		return true
	}
	if completed <= cursor {
		return true
	}

	// Charge exactly one minute per tick, advancing the cursor before the
	// call and rolling back on failure. A timing irregularity can therefore
	// cost at most one minute either way.
	next := cursor + 1
	if err := m.reg.SetLastDeductedMinute(ctx, m.roomID, next); err != nil {
		log.Warn().Err(err).Str("room", m.roomID).Msg("ledger cursor advance failed")
		return true
	}
	res, err := m.backend.PeriodicDeduction(ctx, api.DeductionRequest{
		Room:                   m.roomID,
		SessionDurationSeconds: m.elapsed(),
		CoinsAmount:            m.cost,
		Reason:                 "per_minute",
	})
	if err != nil {
		metricDeductionErrors.Add(1)
		var ib *api.InsufficientBalanceError
		if errors.As(err, &ib) {
			log.Info().Str("room", m.roomID).Msg("balance exhausted during deduction")
			m.onExhausted()
			return false
		}
		// Validation and transient failures retry on the next tick. An
		// undercharge is acceptable, a false termination is not.
		if rbErr := m.reg.SetLastDeductedMinute(ctx, m.roomID, cursor); rbErr != nil {
			log.Error().Err(rbErr).Str("room", m.roomID).Msg("ledger cursor rollback failed")
		}
		log.Warn().Err(err).Str("room", m.roomID).Int("minute", next).Msg("deduction failed, will retry")
		return true
	}

	metricDeductions.Add(1)
	if m.onDeduction != nil {
		m.onDeduction(res)
	}
	m.ObserveMinutes(res.MinutesRemaining)
	if res.MinutesRemaining <= 0 || res.ShouldEndSession {
		m.onExhausted()
		return false
	}
	return true
}

// ObserveMinutes feeds a remaining-minutes reading into the low-balance
// warning. The warning fires once at the threshold and re-arms only above a
// slightly higher value so it cannot flicker near the boundary.
func (m *Meter) ObserveMinutes(minutes int) {
	m.warnMu.Lock()
	var fire, clear bool
	if minutes <= lowBalanceWarnAt && !m.warned {
		m.warned = true
		fire = true
	} else if minutes > lowBalanceRearmAbove && m.warned {
		m.warned = false
		clear = true
	}
	m.warnMu.Unlock()

	if m.onLowBalance == nil {
		return
	}
	if fire {
		m.onLowBalance(true)
	} else if clear {
		m.onLowBalance(false)
	}
}
