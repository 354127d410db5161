// Package cache provides the TTL cache the report service reads through and
// the billing service invalidates. It is always passed in as a collaborator.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/medledger/medledger/internal/platform/clock"
)

// ReportGroup prefixes every financial report entry. Ledger writes drop the
// whole group.
const ReportGroup = "report:"

// Store is a byte-valued cache with prefix-group invalidation.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	// InvalidateGroup drops every key starting with prefix and returns how
	// many entries were removed. Every call advances Generation.
	InvalidateGroup(prefix string) int
	// Generation counts invalidations so far.
	Generation() uint64
	// SetIfGeneration stores value only if no invalidation happened since
	// gen was read, and reports whether it did.
	SetIfGeneration(key string, value []byte, ttl time.Duration, gen uint64) bool
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is a thread-safe in-memory Store with lazy expiration.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	gen     uint64
	clock   clock.Clock
}

// NewMemory creates an empty cache. A nil clock means the system clock.
func NewMemory(c clock.Clock) *Memory {
	if c == nil {
		c = clock.System()
	}
	return &Memory{entries: make(map[string]*entry), clock: c}
}

// Get returns a copy of the cached value. Expired entries are deleted and
// reported as a miss.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !m.clock.Now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur == e {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, true
}

// Set stores a copy of value for ttl. A non-positive ttl is a no-op.
func (m *Memory) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(key, value, ttl)
}

func (m *Memory) SetIfGeneration(key string, value []byte, ttl time.Duration, gen uint64) bool {
	if ttl <= 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return false
	}
	m.put(key, value, ttl)
	return true
}

func (m *Memory) put(key string, value []byte, ttl time.Duration) {
	data := make([]byte, len(value))
	copy(data, value)
	m.entries[key] = &entry{data: data, expiresAt: m.clock.Now().Add(ttl)}
}

func (m *Memory) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

func (m *Memory) InvalidateGroup(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	n := 0
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// StartCleanup periodically removes expired entries until ctx is done.
func (m *Memory) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Memory) sweep() {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(string) ([]byte, bool)         { return nil, false }
func (Nop) Set(string, []byte, time.Duration) {}
func (Nop) InvalidateGroup(string) int        { return 0 }
func (Nop) Generation() uint64                { return 0 }

func (Nop) SetIfGeneration(string, []byte, time.Duration, uint64) bool { return false }
