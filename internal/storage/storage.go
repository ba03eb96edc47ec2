// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"sniper_bot/internal/model"
)

// ErrNotFound is returned by GetBlob for a missing key.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	LoadSeen(ctx context.Context) ([]model.SeenRecord, error)
	SaveSeen(ctx context.Context, rec model.SeenRecord) error
	DeleteSeen(ctx context.Context, ids ...string) error
	ClearSeen(ctx context.Context) error

	GetBlob(ctx context.Context, key string) ([]byte, error)
	PutBlob(ctx context.Context, key string, value []byte) error

	AddNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, limit int) ([]model.Notification, error)

	Close() error
}
