package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/api"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/transport"
)

// TokenBroker acquires short-lived room credentials. Insufficient balance is
// never retried; rate limiting is retried a bounded number of times with a
// fixed backoff and then surfaced as transient.
type TokenBroker struct {
	backend Backend
	roomID  string
}

func NewTokenBroker(backend Backend, roomID string) *TokenBroker {
	return &TokenBroker{backend: backend, roomID: roomID}
}

func (b *TokenBroker) Acquire(ctx context.Context) (transport.Credential, error) {
	var lastErr error
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		cred, err := b.backend.Token(ctx, api.TokenRequest{Room: b.roomID})
		if err == nil {
			return transport.Credential{Token: cred.Token, ServerURL: cred.ServerURL}, nil
		}

		var ib *api.InsufficientBalanceError
		if errors.As(err, &ib) {
			return transport.Credential{}, err
		}
		var rl *api.RateLimitedError
		if !errors.As(err, &rl) {
			return transport.Credential{}, err
		}

		lastErr = err
		log.Warn().Str("room", b.roomID).Int("attempt", attempt+1).
			Dur("retry_after", rl.RetryAfter).Msg("token acquisition rate limited")
		select {
		case <-ctx.Done():
			return transport.Credential{}, ctx.Err()
		case <-time.After(tokenRetryDelay):
		}
	}
	return transport.Credential{}, fmt.Errorf("%w: %v", api.ErrTransient, lastErr)
}
