package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"sniper_bot/internal/model"
	"sniper_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A pool of :memory: connections would be a pool of separate databases.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// LoadSeen returns every stored seen record.
func (s *SQLite) LoadSeen(ctx context.Context) ([]model.SeenRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, price, first_seen_at FROM seen_items ORDER BY first_seen_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query seen items: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (s *SQLite) SaveSeen(ctx context.Context, rec model.SeenRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO seen_items (id, title, price, first_seen_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   price = excluded.price,
		   first_seen_at = excluded.first_seen_at`,
		rec.ID, rec.Title, rec.Price.String(), rec.FirstSeenAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save seen item: %w", err)
	}
	return nil
}

// DeleteSeen removes the given records in one transaction.
func (s *SQLite) DeleteSeen(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM seen_items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete seen item: %w", err)
		}
	}
	return tx.Commit()
}

// ClearSeen removes all seen records.
func (s *SQLite) ClearSeen(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM seen_items`); err != nil {
		return fmt.Errorf("clear seen items: %w", err)
	}
	return nil
}

// GetBlob returns the value stored under key, or ErrNotFound.
func (s *SQLite) GetBlob(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %s: %w", key, err)
	}
	return []byte(value), nil
}

// PutBlob replaces the value stored under key.
func (s *SQLite) PutBlob(ctx context.Context, key string, value []byte) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), now,
	)
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}

// AddNotification appends a history row and populates its ID.
func (s *SQLite) AddNotification(ctx context.Context, n *model.Notification) error {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (listing_id, title, price, currency, score, delivery, error, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ListingID, n.Title, n.Price.String(), n.Currency, n.Score, string(n.Delivery), n.Error,
		n.SentAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	n.ID = id
	return nil
}

// ListNotifications returns the most recent history rows, newest first.
func (s *SQLite) ListNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, listing_id, title, price, currency, score, delivery, error, sent_at
		 FROM notifications ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var price, delivery, sentAt string
		if err := rows.Scan(&n.ID, &n.ListingID, &n.Title, &price, &n.Currency, &n.Score, &delivery, &n.Error, &sentAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Price = parsePrice(price)
		n.Delivery = model.Delivery(delivery)
		n.SentAt, _ = time.Parse(timeLayout, sentAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// parsePrice reads a stored price; the value is informational so garbage reads as zero.
func parsePrice(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
