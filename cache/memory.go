/*
Package cache provides sales.Cache backends.

BACKENDS:
  Memory: Process-local map with per-entry expiry. Default.
  Redis:  Shared across instances, expiry handled by Redis (SET ... EX).

ENTRY LIFECYCLE:
  An entry is written once, whole, and served until its TTL elapses. There
  is no invalidation on new payments.

JANITOR:
  Expired memory entries are invisible to Get immediately, but their
  memory is only reclaimed by Sweep. Janitor runs Sweep on an interval so
  the key space stays bounded by the queries seen within one TTL.

SEE ALSO:
  - sales/aggregator.go: Cache lookaside
*/
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/anyx/sales-engine/sales"
)

// =============================================================================
// MEMORY CACHE
// =============================================================================

type entry struct {
	resp      sales.SalesResponse
	expiresAt time.Time
}

// Memory is an in-process TTL cache. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

// NewMemoryWithClock is NewMemory with an injectable clock, for tests.
func NewMemoryWithClock(now func() time.Time) *Memory {
	m := NewMemory()
	m.now = now
	return m
}

// Get returns a copy of the stored response if it has not expired.
func (m *Memory) Get(_ context.Context, key string) (sales.SalesResponse, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || !m.now().Before(e.expiresAt) {
		return sales.SalesResponse{}, false, nil
	}
	return copyResponse(e.resp), true, nil
}

// Set stores a copy of resp under key. A non-positive ttl stores nothing.
func (m *Memory) Set(_ context.Context, key string, resp sales.SalesResponse, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	e := entry{resp: copyResponse(resp), expiresAt: m.now().Add(ttl)}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func copyResponse(r sales.SalesResponse) sales.SalesResponse {
	lines := make([]sales.SaleLine, len(r.Lines))
	copy(lines, r.Lines)
	return sales.SalesResponse{Lines: lines}
}

// =============================================================================
// JANITOR - Periodic sweep of expired entries
// =============================================================================

// Janitor sweeps a Memory cache in the background.
type Janitor struct {
	Cache    *Memory
	Interval time.Duration
	Logger   zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewJanitor(c *Memory, interval time.Duration, logger zerolog.Logger) *Janitor {
	return &Janitor{
		Cache:    c,
		Interval: interval,
		Logger:   logger,
	}
}

// Start begins sweeping. A non-positive interval disables the janitor.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.Interval <= 0 {
		j.Logger.Info().Msg("cache janitor disabled")
		return
	}
	if j.ticker != nil {
		return
	}

	j.ticker = time.NewTicker(j.Interval)
	j.stop = make(chan struct{})
	j.wg.Add(1)

	go j.run()

	j.Logger.Info().Dur("interval", j.Interval).Msg("cache janitor started")
}

// Stop stops the janitor and waits for the running sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ticker != nil {
		j.ticker.Stop()
		close(j.stop)
		j.wg.Wait()
		j.ticker = nil
		j.Logger.Info().Msg("cache janitor stopped")
	}
}

func (j *Janitor) run() {
	defer j.wg.Done()

	for {
		select {
		case <-j.ticker.C:
			if n := j.Cache.Sweep(); n > 0 {
				j.Logger.Debug().Int("removed", n).Int("remaining", j.Cache.Len()).Msg("swept expired sales statements")
			}
		case <-j.stop:
			return
		}
	}
}
