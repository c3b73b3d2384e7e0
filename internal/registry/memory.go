package registry

import (
	"context"
	"sync"
	"time"
)

type lockEntry struct {
	owner     string
	expiresAt time.Time
}

type elapsedEntry struct {
	seconds int
	savedAt time.Time
}

// Memory is the single-process Registry. State survives coordinator
// remounts but not a process restart.
type Memory struct {
	mu       sync.Mutex
	locks    map[string]lockEntry
	cursors  map[string]int
	verdicts map[string]bool
	elapsed  map[string]elapsedEntry
}

func NewMemory() *Memory {
	return &Memory{
		locks:    map[string]lockEntry{},
		cursors:  map[string]int{},
		verdicts: map[string]bool{},
		elapsed:  map[string]elapsedEntry{},
	}
}

func (m *Memory) AcquireLock(_ context.Context, room, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if cur, ok := m.locks[room]; ok && cur.owner != owner && cur.expiresAt.After(now) {
		return false, nil
	}
	m.locks[room] = lockEntry{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (m *Memory) RenewLock(_ context.Context, room, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.locks[room]
	if !ok || cur.owner != owner {
		return false, nil
	}
	cur.expiresAt = time.Now().Add(ttl)
	m.locks[room] = cur
	return true, nil
}

func (m *Memory) ReleaseLock(_ context.Context, room, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.locks[room]; ok && cur.owner == owner {
		delete(m.locks, room)
	}
	return nil
}

func (m *Memory) LastDeductedMinute(_ context.Context, room string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[room], nil
}

func (m *Memory) SetLastDeductedMinute(_ context.Context, room string, minute int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[room] = minute
	return nil
}

func (m *Memory) MarkVerdict(_ context.Context, room string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.verdicts[room] {
		return false, nil
	}
	m.verdicts[room] = true
	return true, nil
}

func (m *Memory) LoadElapsed(_ context.Context, room string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.elapsed[room]
	if !ok {
		return 0, false, nil
	}
	if time.Since(e.savedAt) > ElapsedStaleAfter {
		delete(m.elapsed, room)
		return 0, false, nil
	}
	return e.seconds, true, nil
}

func (m *Memory) SaveElapsed(_ context.Context, room string, seconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elapsed[room] = elapsedEntry{seconds: seconds, savedAt: time.Now()}
	return nil
}
