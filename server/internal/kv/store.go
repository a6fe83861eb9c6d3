package kv

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/vidfetch/vidfetch/server/internal"
)

// In-Memory Thread-Safe progress registry.
//
// Entries of running downloads live in a plain map and are never evicted.
// Once a download reaches a terminal status its entry is moved into an
// expirable LRU, bounded by size and retention.
type Store struct {
	mu       sync.RWMutex
	table    map[string]*internal.ProgressRecord
	finished *expirable.LRU[string, internal.ProgressRecord]
}

// NewStore creates a registry. maxFinished <= 0 keeps every finished entry,
// retention <= 0 keeps them forever.
func NewStore(maxFinished int, retention time.Duration) *Store {
	return &Store{
		table: make(map[string]*internal.ProgressRecord),
		finished: expirable.NewLRU(maxFinished, func(id string, _ internal.ProgressRecord) {
			slog.Debug("evicted finished download", slog.String("id", id))
		}, retention),
	}
}

// Insert registers a new handle, it must be called before the handle is handed out.
func (s *Store) Insert(id string, rec internal.ProgressRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Status.IsTerminal() {
		s.finished.Add(id, rec)
		return
	}

	r := rec
	s.table[id] = &r
}

// Get a copy of the progress record given its id.
func (s *Store) Get(id string) (internal.ProgressRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.table[id]; ok {
		return *rec, true
	}

	return s.finished.Get(id)
}

// Update applies fn to the record of id. Changes that would move the
// lifecycle backwards or touch a terminal record are discarded.
// The returned record is the stored state after the update.
func (s *Store) Update(id string, fn func(*internal.ProgressRecord)) (internal.ProgressRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.table[id]
	if !ok {
		// either unknown or already terminal
		rec, _ := s.finished.Peek(id)
		return rec, false
	}

	next := *current
	fn(&next)

	if next.Status != current.Status && !current.Status.CanAdvanceTo(next.Status) {
		slog.Warn("discarded illegal progress transition",
			slog.String("id", id),
			slog.String("from", string(current.Status)),
			slog.String("to", string(next.Status)),
		)
		return *current, false
	}

	switch next.Status {
	case internal.StatusCompleted:
		next.Percent = 100
	case internal.StatusError:
		next.Percent = current.Percent
	default:
		next.Percent = min(max(next.Percent, current.Percent), 99)
	}

	if next.Status.IsTerminal() {
		s.finished.Add(id, next)
		delete(s.table, id)
		return next, true
	}

	*current = next
	return next, true
}

// Keys of the downloads still running.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.table))
	for id := range s.table {
		keys = append(keys, id)
	}
	return keys
}

// Active is the number of downloads not yet in a terminal status.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table)
}
