package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hydrostack/hydrostack/pkg/types"
)

// Entry is a station status together with the time it was last received.
type Entry struct {
	Status    types.StationStatus
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory status store, keyed by station name.
// Run periodically evicts stations that have not reported within the TTL.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the staleness window.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put stores or replaces the status for st.Station.
func (s *Store) Put(st types.StationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[st.Station] = &Entry{Status: st, UpdatedAt: s.now()}
}

// PutReading folds a single reading into its station's latest status so
// readings published between status reports are visible. A station not
// yet seen gets a status holding only the reading.
func (s *Store) PutReading(r types.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[r.Station]
	if !ok {
		e = &Entry{Status: types.StationStatus{Station: r.Station}}
		s.data[r.Station] = e
	}
	readings := make(map[string]types.Reading, len(e.Status.Readings)+1)
	for k, v := range e.Status.Readings {
		readings[k] = v
	}
	readings[r.Label] = r
	e.Status.Readings = readings
	e.UpdatedAt = s.now()
}

// Get returns a copy of the entry for station. The entry may be stale.
func (s *Store) Get(station string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[station]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Fresh reports whether e was updated within the TTL.
func (s *Store) Fresh(e Entry) bool {
	return e.UpdatedAt.After(s.now().Add(-s.ttl))
}

// List returns the live entries sorted by station name. Stale entries that
// have not yet been evicted are excluded.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status.Station < out[j].Status.Station })
	return out
}

// Count returns the number of entries held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries older than now minus TTL and returns how many.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run evicts stale entries every half TTL (minimum 1 second) until ctx is
// cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Info("store: evicted silent stations", "count", n)
			}
		}
	}
}
