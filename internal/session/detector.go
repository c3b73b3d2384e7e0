package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Reconnector is consulted right before a partner-left declaration; a true
// result resurrects the session instead.
type Reconnector interface {
	TryReconnect(ctx context.Context) bool
}

type detectorPhase int

const (
	phasePresent detectorPhase = iota
	phaseGrace
	phaseConfirm
	phaseDeclared
)

// Detector decides whether the remote participant has truly left. Presence
// loss first opens a long grace window (tab-hidden and reload survive it),
// then a short confirm window to reject flaps, then a reconnection attempt,
// and only then the declaration.
type Detector struct {
	reconnector Reconnector
	presence    func() bool
	hadRemote   func() bool
	onDeclared  func()

	mu           sync.Mutex
	gen          int64
	armed        bool
	phase        detectorPhase
	stopped      bool
	graceTimer   *time.Timer
	confirmTimer *time.Timer
}

func NewDetector(rec Reconnector, presence, hadRemote func() bool, onDeclared func()) *Detector {
	return &Detector{
		reconnector: rec,
		presence:    presence,
		hadRemote:   hadRemote,
		onDeclared:  onDeclared,
	}
}

// Arm starts the grace window. Arming while armed, stopped, or before any
// remote participant was ever seen is a no-op.
func (d *Detector) Arm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.armed {
		return
	}
	if !d.hadRemote() {
		return
	}
	d.armed = true
	d.phase = phaseGrace
	gen := d.gen
	d.graceTimer = time.AfterFunc(graceWindow, func() { d.graceExpired(gen) })
	log.Debug().Msg("presence detector armed")
}

// Observe reports the remote participant as seen. Any pending windows are
// cancelled and the machine returns to present.
func (d *Detector) Observe() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.resetLocked()
}

func (d *Detector) resetLocked() {
	d.gen++
	d.armed = false
	d.phase = phasePresent
	if d.graceTimer != nil {
		d.graceTimer.Stop()
		d.graceTimer = nil
	}
	if d.confirmTimer != nil {
		d.confirmTimer.Stop()
		d.confirmTimer = nil
	}
}

func (d *Detector) graceExpired(gen int64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen || d.phase != phaseGrace {
		d.mu.Unlock()
		return
	}
	if d.presence() {
		d.resetLocked()
		d.mu.Unlock()
		return
	}
	d.phase = phaseConfirm
	d.confirmTimer = time.AfterFunc(confirmWindow, func() { d.confirmExpired(gen) })
	d.mu.Unlock()
}

func (d *Detector) confirmExpired(gen int64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen || d.phase != phaseConfirm {
		d.mu.Unlock()
		return
	}
	if d.presence() {
		d.resetLocked()
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	// Reconnection runs outside the lock; it can take many seconds.
	if d.reconnector != nil && d.reconnector.TryReconnect(context.Background()) {
		d.mu.Lock()
		if gen == d.gen {
			d.resetLocked()
		}
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	if d.stopped || gen != d.gen || d.phase != phaseConfirm {
		d.mu.Unlock()
		return
	}
	d.phase = phaseDeclared
	d.armed = false
	d.mu.Unlock()
	log.Info().Msg("partner declared gone after grace, confirm and reconnection")
	if d.onDeclared != nil {
		d.onDeclared()
	}
}

func (d *Detector) currentPhase() detectorPhase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}
