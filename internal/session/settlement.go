package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/api"
)

// Settler reports final session earnings. Settlement is fire-and-forget: it
// must never delay the verdict, and a failure is the backend's reconciliation
// problem, not the session's.
type Settler struct {
	backend Backend
}

func NewSettler(backend Backend) *Settler {
	return &Settler{backend: backend}
}

func (s *Settler) Settle(req api.EarningsRequest) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
		defer cancel()
		if err := s.backend.ProcessSessionEarnings(ctx, req); err != nil {
			log.Warn().Err(err).Str("room", req.Room).Str("ended_by", req.EndedBy).
				Msg("earnings settlement failed")
			return
		}
		log.Info().Str("room", req.Room).Int("duration_s", req.DurationSeconds).
			Str("ended_by", req.EndedBy).Msg("session earnings settled")
	}()
}
