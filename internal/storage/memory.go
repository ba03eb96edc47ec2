package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"sniper_bot/internal/model"
)

// Memory is a non-persistent Storage used for dry runs.
type Memory struct {
	mu            sync.Mutex
	seen          map[string]model.SeenRecord
	blobs         map[string][]byte
	notifications []model.Notification
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		seen:  make(map[string]model.SeenRecord),
		blobs: make(map[string][]byte),
	}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) LoadSeen(_ context.Context) ([]model.SeenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]model.SeenRecord, 0, len(m.seen))
	for _, r := range m.seen {
		recs = append(recs, r)
	}
	slices.SortFunc(recs, func(a, b model.SeenRecord) int { return a.FirstSeenAt.Compare(b.FirstSeenAt) })
	return recs, nil
}

func (m *Memory) SaveSeen(_ context.Context, rec model.SeenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[rec.ID] = rec
	return nil
}

func (m *Memory) DeleteSeen(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.seen, id)
	}
	return nil
}

func (m *Memory) ClearSeen(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.seen)
	return nil
}

func (m *Memory) GetBlob(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

func (m *Memory) PutBlob(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = slices.Clone(value)
	return nil
}

func (m *Memory) AddNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	n.ID = int64(len(m.notifications) + 1)
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, limit int) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for i := len(m.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.notifications[i])
	}
	return out, nil
}
