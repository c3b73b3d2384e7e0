// Package registry holds the per-room state that must outlive a single
// coordinator mount: the billing ledger lock and cursor, the verdict-once
// flag, and the persisted elapsed-seconds counter.
package registry

import (
	"context"
	"time"
)

// ElapsedStaleAfter bounds how old a persisted elapsed counter may be before
// a new mount starts from zero instead of resuming.
const ElapsedStaleAfter = 24 * time.Hour

type Registry interface {
	// AcquireLock takes the room's deduction lock for owner, compare-and-set
	// against empty or expired. Re-acquiring with the same owner succeeds.
	AcquireLock(ctx context.Context, room, owner string, ttl time.Duration) (bool, error)
	RenewLock(ctx context.Context, room, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, room, owner string) error

	LastDeductedMinute(ctx context.Context, room string) (int, error)
	SetLastDeductedMinute(ctx context.Context, room string, minute int) error

	// MarkVerdict returns true for the first caller per room; every later
	// caller gets false.
	MarkVerdict(ctx context.Context, room string) (bool, error)

	LoadElapsed(ctx context.Context, room string) (seconds int, ok bool, err error)
	SaveElapsed(ctx context.Context, room string, seconds int) error
}
