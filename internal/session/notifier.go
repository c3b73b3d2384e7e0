package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/api"
)

// Notifier polls the backend for partner actions. Empty polls stretch the
// interval additively up to a cap; any delivered notification snaps it back
// to the base.
type Notifier struct {
	backend        Backend
	onNotification func(api.Notification)
}

func NewNotifier(backend Backend, onNotification func(api.Notification)) *Notifier {
	return &Notifier{backend: backend, onNotification: onNotification}
}

func (n *Notifier) Run(ctx context.Context) {
	interval := pollBaseInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		metricPolls.Add(1)
		upd, err := n.backend.StatusUpdates(ctx)
		switch {
		case err != nil:
			// Poll failures are routine; the next cycle retries.
			log.Debug().Err(err).Msg("status poll failed")
		case upd.HasNotifications && upd.Notification != nil:
			interval = pollBaseInterval
			n.onNotification(*upd.Notification)
		default:
			metricPollsEmpty.Add(1)
			if interval < pollMaxInterval {
				interval += pollBackoffStep
				if interval > pollMaxInterval {
					interval = pollMaxInterval
				}
			}
		}
		timer.Reset(interval)
	}
}
