package cache

import (
	"sync"
	"time"

	"github.com/pfrederiksen/pokertour/internal/logger"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

// DefaultTTL is how long an aggregated result stays fresh
const DefaultTTL = 30 * time.Minute

// Status is the outcome of a cache lookup
type Status int

const (
	StatusMiss Status = iota
	StatusHit
	StatusExpired
)

// String returns the metric label for a lookup outcome
func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusExpired:
		return "expired"
	default:
		return "miss"
	}
}

// Entry is one stored result. Entries are replaced, never mutated.
type Entry struct {
	Key         string                  `json:"key"`
	Tournaments []tournament.Tournament `json:"tournaments"`
	CreatedAt   time.Time               `json:"created_at"`
	ExpiresAt   time.Time               `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at now
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Persister keeps entries across process restarts
type Persister interface {
	Load() ([]Entry, error)
	Save(entry Entry) error
	Delete(key string) error
	Clear() error
}

// Store is a TTL cache of aggregated results. All operations are thread-safe.
type Store struct {
	mu        sync.Mutex
	entries   map[string]Entry
	ttl       time.Duration
	persister Persister
	log       *logger.Logger
	now       func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithTTL sets the entry lifetime
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPersister attaches a backing store
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithLogger sets the logger used for persistence failures
func WithLogger(log *logger.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store with the default 30 minute TTL
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]Entry),
		ttl:     DefaultTTL,
		log:     logger.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured entry lifetime
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get looks up key. A live entry returns StatusHit. An expired entry is removed and
// returned once with StatusExpired; later lookups miss.
func (s *Store) Get(key string) (Entry, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return Entry{}, StatusMiss
	}

	if entry.Expired(s.now()) {
		delete(s.entries, key)
		s.persistDelete(key)
		return copyEntry(entry), StatusExpired
	}

	return copyEntry(entry), StatusHit
}

// Put stores tournaments under key with a fresh TTL, superseding any previous entry
func (s *Store) Put(key string, tournaments []tournament.Tournament) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := Entry{
		Key:         key,
		Tournaments: copyTournaments(tournaments),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	s.entries[key] = entry

	if s.persister != nil {
		if err := s.persister.Save(entry); err != nil {
			s.log.Warn("cache persist failed", logger.Fields{"key": key, "error": err.Error()})
		}
	}

	return copyEntry(entry)
}

// Invalidate removes the entry for key
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists {
		return
	}
	delete(s.entries, key)
	s.persistDelete(key)
}

// Clear removes every entry
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Entry)
	if s.persister != nil {
		if err := s.persister.Clear(); err != nil {
			s.log.Warn("cache clear failed", logger.Fields{"error": err.Error()})
		}
	}
}

// CleanExpired removes expired entries and returns how many were dropped
func (s *Store) CleanExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.now()
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			s.persistDelete(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Restore loads live entries from the persister. Expired entries are skipped.
// Returns the number of entries restored.
func (s *Store) Restore() (int, error) {
	if s.persister == nil {
		return 0, nil
	}

	entries, err := s.persister.Load()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	restored := 0
	for _, entry := range entries {
		if entry.Key == "" || entry.Expired(now) {
			continue
		}
		s.entries[entry.Key] = copyEntry(entry)
		restored++
	}
	return restored, nil
}

// persistDelete must be called with s.mu held
func (s *Store) persistDelete(key string) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Delete(key); err != nil {
		s.log.Warn("cache persist delete failed", logger.Fields{"key": key, "error": err.Error()})
	}
}

func copyEntry(e Entry) Entry {
	e.Tournaments = copyTournaments(e.Tournaments)
	return e
}

func copyTournaments(ts []tournament.Tournament) []tournament.Tournament {
	if ts == nil {
		return []tournament.Tournament{}
	}
	out := make([]tournament.Tournament, len(ts))
	copy(out, ts)
	return out
}
