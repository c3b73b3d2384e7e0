package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/transport"
)

// Reconnect runs bounded fresh-credential reattach cycles with exponential
// backoff. Concurrent callers share the in-flight sequence and its result.
type Reconnect struct {
	broker *TokenBroker
	attach func(ctx context.Context, cred transport.Credential) bool
	group  singleflight.Group
}

func NewReconnect(broker *TokenBroker, attach func(context.Context, transport.Credential) bool) *Reconnect {
	return &Reconnect{broker: broker, attach: attach}
}

func (r *Reconnect) TryReconnect(ctx context.Context) bool {
	v, _, _ := r.group.Do("reconnect", func() (any, error) {
		delay := reconnectBaseDelay
		for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
			metricReconnectAttempts.Add(1)
			cred, err := r.broker.Acquire(ctx)
			if err != nil {
				log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect credential acquisition failed")
			} else if r.attach(ctx, cred) {
				metricReconnectSuccesses.Add(1)
				log.Info().Int("attempt", attempt).Msg("reconnected")
				return true, nil
			}
			if attempt == maxReconnectAttempts {
				break
			}
			select {
			case <-ctx.Done():
				return false, nil
			case <-time.After(delay):
			}
			delay *= 2
		}
		log.Warn().Int("attempts", maxReconnectAttempts).Msg("reconnection attempts exhausted")
		return false, nil
	})
	ok, _ := v.(bool)
	return ok
}
