// Package control holds the runtime state of the bot and the operations
// operators use to steer it. State is persisted as JSON documents so that
// restarts and other processes observe the same settings.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sniper_bot/internal/filter"
	"sniper_bot/internal/model"
	"sniper_bot/internal/seen"
	"sniper_bot/internal/storage"
)

const (
	keyRuntime = "runtime"
	keyPolicy  = "policy"
)

// BlobStore persists named JSON documents.
type BlobStore interface {
	GetBlob(ctx context.Context, key string) ([]byte, error)
	PutBlob(ctx context.Context, key string, value []byte) error
}

// SeenCounter reports seen-store statistics.
type SeenCounter interface {
	Stats() seen.Stats
}

// Defaults are used when nothing has been persisted yet.
type Defaults struct {
	Policy       model.FilterPolicy
	PollInterval time.Duration
}

type runtimeDoc struct {
	Paused         bool  `json:"paused"`
	PollIntervalMs int64 `json:"poll_interval_ms"`
}

// Controller owns the bot runtime state and the active filter policy.
type Controller struct {
	blobs  BlobStore
	policy *filter.Policy
	seen   SeenCounter
	log    *slog.Logger

	// writeMu orders mutate-then-persist sequences and guards reported.
	writeMu sync.Mutex
	// reported holds the last logged problem per document key.
	reported map[string]string
	// restoredPolicy is set when New found a stored policy.
	restoredPolicy bool

	mu           sync.RWMutex
	paused       bool
	pollInterval time.Duration
	backoffUntil time.Time
	state        model.LoopState
}

// New builds a Controller from persisted state, falling back to defaults.
// Unreadable documents are logged and ignored.
func New(ctx context.Context, blobs BlobStore, defaults Defaults, counter SeenCounter, log *slog.Logger) *Controller {
	c := &Controller{
		blobs:        blobs,
		policy:       filter.NewPolicy(defaults.Policy),
		seen:         counter,
		log:          log,
		pollInterval: defaults.PollInterval,
		state:        model.StatePolling,
		reported:     make(map[string]string),
	}

	if doc, ok := c.loadRuntime(ctx, slog.LevelError); ok {
		c.paused = doc.Paused
		c.pollInterval = time.Duration(doc.PollIntervalMs) * time.Millisecond
		log.Info("restored runtime state", "paused", c.paused, "poll_interval", c.pollInterval)
	}
	if p, ok := c.loadPolicy(ctx, slog.LevelError); ok {
		_ = c.policy.Replace(p)
		c.restoredPolicy = true
		log.Info("restored filter policy")
	}
	return c
}

// PolicyRestored reports whether the startup policy came from storage rather
// than from the defaults passed to New.
func (c *Controller) PolicyRestored() bool {
	return c.restoredPolicy
}

// Pause stops polling until Resume is called.
func (c *Controller) Pause(ctx context.Context) error {
	return c.mutateRuntime(ctx, func() { c.paused = true })
}

// Resume re-enables polling.
func (c *Controller) Resume(ctx context.Context) error {
	return c.mutateRuntime(ctx, func() { c.paused = false })
}

// SetPollInterval changes the wait between poll cycles. It applies at the next sleep.
func (c *Controller) SetPollInterval(ctx context.Context, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("poll interval must not be negative, got %s", d)
	}
	return c.mutateRuntime(ctx, func() { c.pollInterval = d })
}

// UpdatePolicy merges patch into the active policy and persists the result.
func (c *Controller) UpdatePolicy(ctx context.Context, patch model.PolicyPatch) (model.FilterPolicy, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	p, err := c.policy.Update(patch)
	if err != nil {
		return p, fmt.Errorf("update policy: %w", err)
	}
	return p, c.savePolicy(ctx, p)
}

// ReplacePolicy installs p as the active policy and persists it.
func (c *Controller) ReplacePolicy(ctx context.Context, p model.FilterPolicy) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.policy.Replace(p); err != nil {
		return fmt.Errorf("replace policy: %w", err)
	}
	return c.savePolicy(ctx, p)
}

// Policy returns the active policy snapshot.
func (c *Controller) Policy() model.FilterPolicy {
	return c.policy.Load()
}

// PollInterval returns the current wait between cycles.
func (c *Controller) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pollInterval
}

// Snapshot returns a copy of the runtime state.
func (c *Controller) Snapshot() model.RuntimeState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return model.RuntimeState{
		Paused:       c.paused,
		PollInterval: c.pollInterval,
		BackoffUntil: c.backoffUntil,
	}
}

// SetBackoff suspends polling until the given time. Only the polling loop calls it.
func (c *Controller) SetBackoff(until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backoffUntil = until
}

// SetState records what the polling loop is doing, for Stats.
func (c *Controller) SetState(s model.LoopState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Stats combines seen-store counts with the runtime state.
func (c *Controller) Stats() model.Stats {
	var st seen.Stats
	if c.seen != nil {
		st = c.seen.Stats()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return model.Stats{
		Total:          st.Total,
		Recent:         st.Recent,
		Paused:         c.paused,
		PollIntervalMs: c.pollInterval.Milliseconds(),
		BackoffUntil:   c.backoffUntil,
		State:          c.state,
	}
}

// Refresh picks up documents written by other processes. Unreadable
// documents are logged and the current values are kept.
func (c *Controller) Refresh(ctx context.Context) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if doc, ok := c.loadRuntime(ctx, slog.LevelWarn); ok {
		interval := time.Duration(doc.PollIntervalMs) * time.Millisecond
		c.mu.Lock()
		if c.paused != doc.Paused || c.pollInterval != interval {
			c.log.Info("runtime state changed", "paused", doc.Paused, "poll_interval", interval)
		}
		c.paused = doc.Paused
		c.pollInterval = interval
		c.mu.Unlock()
	}
	if p, ok := c.loadPolicy(ctx, slog.LevelWarn); ok {
		_ = c.policy.Replace(p)
	}
}

func (c *Controller) mutateRuntime(ctx context.Context, mutate func()) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	mutate()
	doc := runtimeDoc{Paused: c.paused, PollIntervalMs: c.pollInterval.Milliseconds()}
	c.mu.Unlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode runtime state: %w", err)
	}
	if err := c.blobs.PutBlob(ctx, keyRuntime, data); err != nil {
		return fmt.Errorf("save runtime state: %w", err)
	}
	return nil
}

func (c *Controller) savePolicy(ctx context.Context, p model.FilterPolicy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	if err := c.blobs.PutBlob(ctx, keyPolicy, data); err != nil {
		return fmt.Errorf("save policy: %w", err)
	}
	return nil
}

func (c *Controller) loadRuntime(ctx context.Context, level slog.Level) (runtimeDoc, bool) {
	var doc runtimeDoc
	if !c.loadDoc(ctx, keyRuntime, &doc, level) {
		return doc, false
	}
	if doc.PollIntervalMs < 0 {
		c.report(ctx, level, keyRuntime, "ignoring runtime state with negative poll interval",
			fmt.Errorf("poll_interval_ms %d", doc.PollIntervalMs))
		return doc, false
	}
	delete(c.reported, keyRuntime)
	return doc, true
}

func (c *Controller) loadPolicy(ctx context.Context, level slog.Level) (model.FilterPolicy, bool) {
	var p model.FilterPolicy
	if !c.loadDoc(ctx, keyPolicy, &p, level) {
		return p, false
	}
	if err := p.Validate(); err != nil {
		c.report(ctx, level, keyPolicy, "ignoring invalid stored policy", err)
		return p, false
	}
	delete(c.reported, keyPolicy)
	return p, true
}

func (c *Controller) loadDoc(ctx context.Context, key string, v any, level slog.Level) bool {
	data, err := c.blobs.GetBlob(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		c.report(ctx, level, key, "read stored document", err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.report(ctx, level, key, "stored document is corrupt, using current values", err)
		return false
	}
	return true
}

// report logs a problem with a stored document unless the same problem was
// already logged for that key.
func (c *Controller) report(ctx context.Context, level slog.Level, key, msg string, err error) {
	problem := msg + ": " + err.Error()
	if c.reported[key] == problem {
		return
	}
	c.reported[key] = problem
	c.log.Log(ctx, level, msg, "key", key, "error", err)
}
