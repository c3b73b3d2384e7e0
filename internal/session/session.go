// Package session implements the lifecycle of a paid two-party real-time
// session: credential bring-up, presence tracking with grace windows,
// bounded reconnection, per-minute metered billing, partner-action polling,
// gift transactions and earnings settlement.
package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/api"
)

type State int

const (
	StateIdle State = iota
	StateAcquiringToken
	StateConnecting
	StateConnected
	StateReconnecting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringToken:
		return "acquiring_token"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

type Identity struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName"`
}

// BalanceSnapshot is a cache of the backend's authoritative balance. Stale
// marks a snapshot whose last refresh failed; financial decisions must not
// trust it.
type BalanceSnapshot struct {
	Coins            int64 `json:"coins"`
	GiftCoins        int64 `json:"giftCoins"`
	RemainingMinutes int   `json:"remainingMinutes"`
	Stale            bool  `json:"stale"`
}

// Backend is the slice of the billing/notification API the session core
// consumes. *api.Client satisfies it.
type Backend interface {
	Token(ctx context.Context, req api.TokenRequest) (api.Credential, error)
	QuickBalance(ctx context.Context) (api.QuickBalance, error)
	PeriodicDeduction(ctx context.Context, req api.DeductionRequest) (api.DeductionResult, error)
	StatusUpdates(ctx context.Context) (api.StatusUpdate, error)
	NotifyPartnerNext(ctx context.Context, room string) error
	NotifyPartnerStop(ctx context.Context, room string) error
	GiftRequest(ctx context.Context, req api.GiftRequestBody) (api.GiftRequestResult, error)
	GiftAccept(ctx context.Context, req api.GiftAcceptBody) error
	GiftReject(ctx context.Context, req api.GiftRejectBody) error
	ProcessSessionEarnings(ctx context.Context, req api.EarningsRequest) error
}

// Timing knobs. Vars rather than consts so tests can shorten them.
var (
	elapsedTickInterval  = time.Second
	meterTickInterval    = 5 * time.Second
	ledgerLockTTL        = 30 * time.Second
	pollBaseInterval     = 2 * time.Second
	pollMaxInterval      = 10 * time.Second
	pollBackoffStep      = time.Second
	graceWindow          = 40 * time.Second
	confirmWindow        = 5 * time.Second
	connectTimeout       = 30 * time.Second
	tokenRetryDelay      = 2 * time.Second
	reconnectBaseDelay   = 2 * time.Second
	reconnectSettleDelay = time.Second
	countdownTick        = time.Second
	settleTimeout        = 5 * time.Second
	giftReconcileDelay   = 2 * time.Second
	giftPendingTTL       = 2 * time.Minute
)

const (
	maxTokenAttempts     = 3
	maxReconnectAttempts = 3
	billingGranularity   = 60
	lowBalanceWarnAt     = 2
	lowBalanceRearmAbove = 3
	verdictCountdown     = 5
)

var (
	ulidEntropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	ulidEntropyMu sync.Mutex
)

func NewID() string {
	ulidEntropyMu.Lock()
	defer ulidEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}
