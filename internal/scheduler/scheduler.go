// Package scheduler runs the polling loop: search, filter, deduplicate, notify.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"sniper_bot/internal/filter"
	"sniper_bot/internal/model"
	"sniper_bot/internal/seen"
)

// Loop defaults.
const (
	DefaultPauseTick     = 5 * time.Second
	DefaultBackoffTick   = 5 * time.Second
	DefaultBackoffDelay  = 30 * time.Second
	DefaultSearchTimeout = 45 * time.Second
	DefaultNotifyTimeout = 60 * time.Second
	// DefaultNotifyGap keeps well under Telegram's per-chat message rate.
	DefaultNotifyGap = 50 * time.Millisecond
)

// Controls is the part of the control surface the loop reads and reports to.
type Controls interface {
	Refresh(ctx context.Context)
	Snapshot() model.RuntimeState
	Policy() model.FilterPolicy
	SetBackoff(until time.Time)
	SetState(s model.LoopState)
}

// SeenStore deduplicates notified listings.
type SeenStore interface {
	IsNew(ctx context.Context, id string) bool
	Record(ctx context.Context, id, title string, price decimal.Decimal) error
	Cleanup(ctx context.Context) (int, error)
	Stats() seen.Stats
}

// History stores sent notifications.
type History interface {
	AddNotification(ctx context.Context, n *model.Notification) error
}

// Config holds the loop's search terms and timings. Zero durations select the defaults.
type Config struct {
	Terms         []string
	BackoffDelay  time.Duration
	SearchTimeout time.Duration
	NotifyTimeout time.Duration
	PauseTick     time.Duration
	BackoffTick   time.Duration
	NotifyGap     time.Duration
}

func (c Config) withDefaults() Config {
	setDefault(&c.BackoffDelay, DefaultBackoffDelay)
	setDefault(&c.SearchTimeout, DefaultSearchTimeout)
	setDefault(&c.NotifyTimeout, DefaultNotifyTimeout)
	setDefault(&c.PauseTick, DefaultPauseTick)
	setDefault(&c.BackoffTick, DefaultBackoffTick)
	if c.NotifyGap < 0 {
		c.NotifyGap = 0
	} else if c.NotifyGap == 0 {
		c.NotifyGap = DefaultNotifyGap
	}
	return c
}

func setDefault(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

// Scheduler repeatedly searches the marketplace and notifies about new listings
// that pass the active filter policy.
type Scheduler struct {
	cfg      Config
	controls Controls
	seen     SeenStore
	searcher model.Searcher
	notifier model.Notifier
	history  History
	now      func() time.Time
	log      *slog.Logger
}

// New creates a Scheduler. history may be nil.
func New(cfg Config, controls Controls, seenStore SeenStore, searcher model.Searcher, notifier model.Notifier, history History, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		controls: controls,
		seen:     seenStore,
		searcher: searcher,
		notifier: notifier,
		history:  history,
		now:      time.Now,
		log:      log,
	}
}

// Run starts the loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		wait := s.step(ctx)
		if ctx.Err() != nil {
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce runs a single cycle regardless of pause and backoff state.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

// step does one unit of loop work and returns how long to wait before the next.
func (s *Scheduler) step(ctx context.Context) time.Duration {
	s.controls.Refresh(ctx)
	st := s.controls.Snapshot()

	if st.Paused {
		s.controls.SetState(model.StateIdle)
		return s.cfg.PauseTick
	}
	if wait, ok := s.backoffWait(st); ok {
		s.controls.SetState(model.StateBackoff)
		return wait
	}

	s.controls.SetState(model.StatePolling)
	if err := s.runCycle(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("poll cycle", "error", err)
	}

	// Read after the cycle so interval changes made meanwhile apply to this sleep.
	st = s.controls.Snapshot()
	if wait, ok := s.backoffWait(st); ok {
		s.controls.SetState(model.StateBackoff)
		return wait
	}
	return st.PollInterval
}

func (s *Scheduler) backoffWait(st model.RuntimeState) (time.Duration, bool) {
	remaining := st.BackoffUntil.Sub(s.now())
	if remaining <= 0 {
		return 0, false
	}
	return min(remaining, s.cfg.BackoffTick), true
}

func (s *Scheduler) runCycle(ctx context.Context) error {
	if n, err := s.seen.Cleanup(ctx); err != nil {
		s.log.Warn("cleanup seen records", "error", err)
	} else if n > 0 {
		s.log.Debug("expired seen records removed", "count", n)
	}
	st := s.seen.Stats()
	s.log.Info("poll cycle started", "terms", len(s.cfg.Terms), "seen_total", st.Total, "seen_recent", st.Recent)

	sess, err := s.searcher.OpenSession(ctx)
	if err != nil {
		s.backoffIfRateLimited(err)
		return fmt.Errorf("open search session: %w", err)
	}
	defer sess.Close()

	listings, err := s.searchAll(ctx, sess)
	if err != nil {
		return err
	}

	policy := s.controls.Policy()
	results := make([]model.FilterResult, len(listings))
	for i, l := range listings {
		results[i] = filter.Evaluate(l, policy)
		if !results[i].Passed {
			s.log.Debug("listing rejected", "listing_id", l.ID, "reasons", results[i].Reasons)
		}
	}
	ranked := filter.RankScored(listings, results)

	sent := 0
	for _, sc := range ranked {
		if ctx.Err() != nil {
			break
		}
		if !s.seen.IsNew(ctx, sc.Listing.ID) {
			continue
		}
		if sent > 0 {
			s.pause(ctx, s.cfg.NotifyGap)
		}
		s.deliver(ctx, sc)
		sent++
	}

	s.log.Info("poll cycle finished", "found", len(listings), "passed", len(ranked), "notified", sent)
	return nil
}

// searchAll runs every term and merges the results by listing id, keeping the
// first occurrence. A rate-limit signal stops the search and starts a backoff.
func (s *Scheduler) searchAll(ctx context.Context, sess model.SearchSession) ([]model.Listing, error) {
	var merged []model.Listing
	ids := make(map[string]struct{})

	for _, term := range s.cfg.Terms {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		searchCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
		found, err := sess.Search(searchCtx, term)
		cancel()
		if err != nil {
			if s.backoffIfRateLimited(err) {
				return nil, fmt.Errorf("search %q: %w", term, err)
			}
			s.log.Warn("search term failed", "term", term, "error", err)
			continue
		}

		for _, l := range found {
			if _, dup := ids[l.ID]; dup {
				continue
			}
			ids[l.ID] = struct{}{}
			merged = append(merged, l)
		}
		s.log.Debug("search term done", "term", term, "found", len(found))
	}
	return merged, nil
}

// deliver notifies about one listing and records it. The listing is recorded
// even when the notification fails so a broken chat cannot cause a resend storm.
func (s *Scheduler) deliver(ctx context.Context, sc filter.Scored) {
	l := sc.Listing

	notifyCtx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	delivery, notifyErr := s.notifier.Notify(notifyCtx, l)
	cancel()
	if notifyErr != nil {
		s.log.Error("notify", "listing_id", l.ID, "error", notifyErr)
	} else {
		s.log.Info("listing notified", "listing_id", l.ID, "title", l.Title, "score", sc.Result.Score, "delivery", delivery)
	}

	// Shutdown must not lose the record of something already sent.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.seen.Record(persistCtx, l.ID, l.Title, l.Price); err != nil {
		s.log.Error("record seen listing", "listing_id", l.ID, "error", err)
	}

	if s.history == nil {
		return
	}
	n := &model.Notification{
		ListingID: l.ID,
		Title:     l.Title,
		Price:     l.Price,
		Currency:  l.Currency,
		Score:     sc.Result.Score,
		Delivery:  delivery,
		SentAt:    s.now().UTC(),
	}
	if notifyErr != nil {
		n.Error = notifyErr.Error()
	}
	if err := s.history.AddNotification(persistCtx, n); err != nil {
		s.log.Error("add notification history", "listing_id", l.ID, "error", err)
	}
}

func (s *Scheduler) backoffIfRateLimited(err error) bool {
	if !model.IsRateLimited(err) {
		return false
	}
	delay := s.cfg.BackoffDelay
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > delay {
		delay = httpErr.RetryAfter
	}
	until := s.now().Add(delay)
	s.controls.SetBackoff(until)
	s.log.Warn("rate limited, backing off", "until", until, "error", err)
	return true
}

func (s *Scheduler) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
