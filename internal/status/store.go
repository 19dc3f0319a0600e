package status

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/metrics"
)

var (
	ErrUnknownBuild      = ferrors.InternalError("unknown build id").Build()
	ErrDuplicateBuild    = ferrors.InternalError("duplicate build id").Build()
	ErrTerminal          = ferrors.InternalError("build already terminal").Build()
	ErrIllegalTransition = ferrors.InternalError("illegal status transition").Build()
	ErrBuildNotFound     = ferrors.NotFoundError("build not found").Build()
)

// StoreConfig configures a Store.
type StoreConfig struct {
	Clock clockwork.Clock

	// MaxRecords caps the number of terminal records kept. When exceeded the
	// oldest terminal records are evicted. Records still in progress are never
	// evicted. Zero disables the cap.
	MaxRecords int

	Recorder metrics.Recorder
}

// Store is a concurrency-safe mapping from build id to build record.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*Record
	order    []string
	clock    clockwork.Clock
	max      int
	recorder metrics.Recorder
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	if cfg.MaxRecords < 0 {
		cfg.MaxRecords = 0
	}
	return &Store{
		records:  make(map[string]*Record),
		clock:    cfg.Clock,
		max:      cfg.MaxRecords,
		recorder: cfg.Recorder,
	}
}

// Create adds a new record in the pending state.
func (s *Store) Create(id string, meta Meta) (Record, error) {
	if id == "" {
		return Record{}, ferrors.InternalError("build id is required").Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; exists {
		return Record{}, ErrDuplicateBuild.WithContext("build_id", id)
	}

	now := s.clock.Now()
	rec := &Record{
		ID:          id,
		Status:      StatusPending,
		Root:        meta.Root,
		TriggerID:   meta.TriggerID,
		Commit:      meta.Commit,
		CreatedAt:   now,
		UpdatedAt:   now,
		Transitions: []Transition{{Status: StatusPending, At: now}},
	}
	s.records[id] = rec
	s.order = append(s.order, id)
	return rec.clone(), nil
}

// Transition moves a record to a new status. reason is recorded only when the
// new status is failed.
func (s *Store) Transition(id string, to Status, reason string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrUnknownBuild.WithContext("build_id", id)
	}
	if rec.Status.IsTerminal() {
		return Record{}, ErrTerminal.
			WithContext("build_id", id).
			WithContext("status", string(rec.Status)).
			WithContext("requested", string(to))
	}
	if !rec.Status.CanTransition(to) {
		return Record{}, ErrIllegalTransition.
			WithContext("build_id", id).
			WithContext("from", string(rec.Status)).
			WithContext("to", string(to))
	}

	now := s.clock.Now()
	rec.Status = to
	rec.UpdatedAt = now
	rec.Transitions = append(rec.Transitions, Transition{Status: to, At: now})
	if to == StatusFailed {
		rec.FailureReason = reason
	}
	if to.IsTerminal() {
		rec.FinishedAt = &now
	}
	out := rec.clone()

	if to.IsTerminal() {
		s.enforceCapLocked()
	}
	return out, nil
}

// Annotate records image and commit details on a running build.
func (s *Store) Annotate(id string, a Annotations) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrUnknownBuild.WithContext("build_id", id)
	}
	if rec.Status.IsTerminal() {
		return Record{}, ErrTerminal.WithContext("build_id", id)
	}
	if a.Image != "" {
		rec.Image = a.Image
	}
	if a.Commit != "" {
		rec.Commit = a.Commit
	}
	rec.UpdatedAt = s.clock.Now()
	return rec.clone(), nil
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrBuildNotFound.WithContext("build_id", id)
	}
	return rec.clone(), nil
}

// List returns a point-in-time snapshot of all records in creation order.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].clone())
	}
	return out
}

// Snapshot returns a point-in-time copy of the store keyed by build id.
func (s *Store) Snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec.clone()
	}
	return out
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Sweep evicts terminal records that finished more than maxAge ago and
// returns how many were removed.
func (s *Store) Sweep(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-maxAge)
	return s.evictLocked(func(rec *Record) bool {
		return rec.FinishedAt != nil && rec.FinishedAt.Before(cutoff)
	}, -1)
}

func (s *Store) enforceCapLocked() {
	if s.max == 0 {
		return
	}
	terminal := 0
	for _, rec := range s.records {
		if rec.Status.IsTerminal() {
			terminal++
		}
	}
	if excess := terminal - s.max; excess > 0 {
		s.evictLocked(func(rec *Record) bool { return rec.Status.IsTerminal() }, excess)
	}
}

// evictLocked removes up to limit records matching fn, oldest first. A negative
// limit removes every match.
func (s *Store) evictLocked(fn func(*Record) bool, limit int) int {
	removed := 0
	s.order = slices.DeleteFunc(s.order, func(id string) bool {
		if limit >= 0 && removed >= limit {
			return false
		}
		if fn(s.records[id]) {
			delete(s.records, id)
			removed++
			return true
		}
		return false
	})
	if removed > 0 {
		s.recorder.AddRecordsEvicted(removed)
		slog.Debug("Evicted build records", slog.Int("count", removed), slog.Int("remaining", len(s.order)))
	}
	return removed
}
