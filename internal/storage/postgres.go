package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sniper_bot/internal/model"
)

// Postgres implements Storage on a PostgreSQL connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database at connStr and creates missing tables.
func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Postgres{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS seen_items (
			id            TEXT PRIMARY KEY,
			title         TEXT NOT NULL DEFAULT '',
			price         TEXT NOT NULL DEFAULT '0',
			first_seen_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_seen_items_first_seen_at ON seen_items (first_seen_at)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id         BIGSERIAL PRIMARY KEY,
			listing_id TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			price      TEXT NOT NULL DEFAULT '0',
			currency   TEXT NOT NULL DEFAULT '',
			score      INT NOT NULL DEFAULT 0,
			delivery   TEXT NOT NULL DEFAULT '',
			error      TEXT NOT NULL DEFAULT '',
			sent_at    TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases all pool connections.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// LoadSeen returns every stored seen record.
func (s *Postgres) LoadSeen(ctx context.Context) ([]model.SeenRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, price, first_seen_at FROM seen_items ORDER BY first_seen_at`)
	if err != nil {
		return nil, fmt.Errorf("query seen items: %w", err)
	}
	defer rows.Close()

	var recs []model.SeenRecord
	for rows.Next() {
		var rec model.SeenRecord
		var price string
		var firstSeen int64
		if err := rows.Scan(&rec.ID, &rec.Title, &price, &firstSeen); err != nil {
			return nil, fmt.Errorf("scan seen item: %w", err)
		}
		rec.Price = parsePrice(price)
		rec.FirstSeenAt = time.UnixMilli(firstSeen).UTC()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SaveSeen inserts a record or refreshes an existing one.
func (s *Postgres) SaveSeen(ctx context.Context, rec model.SeenRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO seen_items (id, title, price, first_seen_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET title = $2, price = $3, first_seen_at = $4`,
		rec.ID, rec.Title, rec.Price.String(), rec.FirstSeenAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save seen item: %w", err)
	}
	return nil
}

// DeleteSeen removes the given records.
func (s *Postgres) DeleteSeen(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM seen_items WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete seen items: %w", err)
	}
	return nil
}

// ClearSeen removes all seen records.
func (s *Postgres) ClearSeen(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM seen_items`); err != nil {
		return fmt.Errorf("clear seen items: %w", err)
	}
	return nil
}

// GetBlob returns the value stored under key, or ErrNotFound.
func (s *Postgres) GetBlob(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %s: %w", key, err)
	}
	return []byte(value), nil
}

// PutBlob replaces the value stored under key.
func (s *Postgres) PutBlob(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now()`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}

// AddNotification appends a history row and populates its ID.
func (s *Postgres) AddNotification(ctx context.Context, n *model.Notification) error {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO notifications (listing_id, title, price, currency, score, delivery, error, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		n.ListingID, n.Title, n.Price.String(), n.Currency, n.Score, string(n.Delivery), n.Error, n.SentAt,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the most recent history rows, newest first.
func (s *Postgres) ListNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, listing_id, title, price, currency, score, delivery, error, sent_at
		 FROM notifications ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var price, delivery string
		if err := rows.Scan(&n.ID, &n.ListingID, &n.Title, &price, &n.Currency, &n.Score, &delivery, &n.Error, &n.SentAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Price = parsePrice(price)
		n.Delivery = model.Delivery(delivery)
		n.SentAt = n.SentAt.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}
