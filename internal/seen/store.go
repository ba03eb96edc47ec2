// Package seen tracks which listings have already been notified.
package seen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sniper_bot/internal/model"
)

// Default windows.
const (
	DefaultRetention    = 24 * time.Hour
	DefaultRecentWindow = time.Hour
)

// Repository persists seen records.
type Repository interface {
	LoadSeen(ctx context.Context) ([]model.SeenRecord, error)
	SaveSeen(ctx context.Context, rec model.SeenRecord) error
	DeleteSeen(ctx context.Context, ids ...string) error
	ClearSeen(ctx context.Context) error
}

// Options configures a Store. Zero values select the defaults.
type Options struct {
	Retention    time.Duration
	RecentWindow time.Duration
	Now          func() time.Time
}

// Stats counts live records.
type Stats struct {
	Total  int
	Recent int
}

// Store is a time-windowed set of seen listing ids backed by a Repository.
// Records older than the retention window are treated as absent.
type Store struct {
	repo      Repository
	retention time.Duration
	recent    time.Duration
	now       func() time.Time
	log       *slog.Logger

	mu      sync.RWMutex
	records map[string]model.SeenRecord
}

// Open loads the persisted records. A repository that cannot be read is
// logged and the store starts empty.
func Open(ctx context.Context, repo Repository, opts Options, log *slog.Logger) *Store {
	s := &Store{
		repo:      repo,
		retention: opts.Retention,
		recent:    opts.RecentWindow,
		now:       opts.Now,
		log:       log,
		records:   make(map[string]model.SeenRecord),
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.recent <= 0 {
		s.recent = DefaultRecentWindow
	}
	if s.now == nil {
		s.now = time.Now
	}

	recs, err := repo.LoadSeen(ctx)
	if err != nil {
		log.Error("seen store unreadable, starting empty", "error", err)
		return s
	}

	now := s.now()
	expired := 0
	for _, r := range recs {
		if r.ID == "" {
			continue
		}
		if s.expired(r, now) {
			expired++
			continue
		}
		s.records[r.ID] = r
	}
	log.Info("seen store loaded", "records", len(s.records), "expired", expired)
	return s
}

func (s *Store) expired(r model.SeenRecord, now time.Time) bool {
	return now.Sub(r.FirstSeenAt) > s.retention
}

// IsNew reports whether id has no live record. An expired record is evicted
// and the id counts as new again.
func (s *Store) IsNew(ctx context.Context, id string) bool {
	now := s.now()

	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return true
	}
	if !s.expired(rec, now) {
		return false
	}

	s.mu.Lock()
	// Record may have been refreshed since the read lock was released.
	rec, ok = s.records[id]
	if ok && !s.expired(rec, now) {
		s.mu.Unlock()
		return false
	}
	delete(s.records, id)
	s.mu.Unlock()

	if err := s.repo.DeleteSeen(ctx, id); err != nil {
		s.log.Warn("evict seen record", "listing_id", id, "error", err)
	}
	return true
}

// Record marks id as seen now. An existing record is refreshed. The in-memory
// state is updated even if persisting fails; the error is returned for logging.
func (s *Store) Record(ctx context.Context, id, title string, price decimal.Decimal) error {
	rec := model.SeenRecord{
		ID:          id,
		FirstSeenAt: s.now(),
		Title:       title,
		Price:       price,
	}

	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()

	if err := s.repo.SaveSeen(ctx, rec); err != nil {
		return fmt.Errorf("persist seen record %s: %w", id, err)
	}
	return nil
}

// Cleanup evicts every expired record and returns how many were removed.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	var ids []string
	for id, r := range s.records {
		if s.expired(r, now) {
			ids = append(ids, id)
			delete(s.records, id)
		}
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.repo.DeleteSeen(ctx, ids...); err != nil {
		return len(ids), fmt.Errorf("delete expired records: %w", err)
	}
	return len(ids), nil
}

// Stats counts live records and those seen within the recent window.
func (s *Store) Stats() Stats {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	for _, r := range s.records {
		if s.expired(r, now) {
			continue
		}
		st.Total++
		if now.Sub(r.FirstSeenAt) < s.recent {
			st.Recent++
		}
	}
	return st
}

// Clear forgets every record.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	clear(s.records)
	s.mu.Unlock()

	if err := s.repo.ClearSeen(ctx); err != nil {
		return fmt.Errorf("clear seen records: %w", err)
	}
	return nil
}
