package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"

	"sniper_bot/internal/model"
)

var ignoreNotificationID = cmpopts.IgnoreFields(model.Notification{}, "ID")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	out := map[string]Storage{
		"sqlite": newTestDB(t),
		"memory": NewMemory(),
	}
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		pg, err := NewPostgres(context.Background(), url)
		if err != nil {
			t.Fatalf("new postgres: %v", err)
		}
		ctx := context.Background()
		for _, q := range []string{`DELETE FROM seen_items`, `DELETE FROM settings`, `DELETE FROM notifications`} {
			if _, err := pg.pool.Exec(ctx, q); err != nil {
				t.Fatalf("reset postgres: %v", err)
			}
		}
		t.Cleanup(func() { _ = pg.Close() })
		out["postgres"] = pg
	}
	return out
}

func TestSeenRoundTrip(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			recs := []model.SeenRecord{
				{ID: "100", Title: "Nike Air", Price: decimal.RequireFromString("35.5"), FirstSeenAt: base},
				{ID: "200", Title: "Levi's 501", Price: decimal.RequireFromString("20"), FirstSeenAt: base.Add(time.Minute)},
			}
			for _, r := range recs {
				if err := s.SaveSeen(ctx, r); err != nil {
					t.Fatalf("save: %v", err)
				}
			}

			got, err := s.LoadSeen(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if diff := cmp.Diff(recs, got); diff != "" {
				t.Errorf("LoadSeen mismatch (-want +got):\n%s", diff)
			}

			// Saving an existing id refreshes it.
			refreshed := recs[0]
			refreshed.FirstSeenAt = base.Add(time.Hour)
			if err := s.SaveSeen(ctx, refreshed); err != nil {
				t.Fatalf("save again: %v", err)
			}
			if err := s.DeleteSeen(ctx, "200"); err != nil {
				t.Fatalf("delete: %v", err)
			}

			got, err = s.LoadSeen(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if diff := cmp.Diff([]model.SeenRecord{refreshed}, got); diff != "" {
				t.Errorf("LoadSeen after refresh mismatch (-want +got):\n%s", diff)
			}

			if err := s.ClearSeen(ctx); err != nil {
				t.Fatalf("clear: %v", err)
			}
			got, err = s.LoadSeen(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("expected empty store after clear, got %d records", len(got))
			}
		})
	}
}

func TestBlobs(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.GetBlob(ctx, "runtime"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := s.PutBlob(ctx, "runtime", []byte(`{"paused":true}`)); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := s.PutBlob(ctx, "runtime", []byte(`{"paused":false}`)); err != nil {
				t.Fatalf("put again: %v", err)
			}

			got, err := s.GetBlob(ctx, "runtime")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if diff := cmp.Diff(`{"paused":false}`, string(got)); diff != "" {
				t.Errorf("GetBlob mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	sent := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			in := []model.Notification{
				{ListingID: "1", Title: "first", Price: decimal.RequireFromString("10"), Currency: "EUR", Score: 80, Delivery: model.DeliveryAlbum, SentAt: sent},
				{ListingID: "2", Title: "second", Price: decimal.RequireFromString("12.5"), Currency: "EUR", Score: 60, Delivery: model.DeliveryText, Error: "boom", SentAt: sent.Add(time.Second)},
				{ListingID: "3", Title: "third", Price: decimal.RequireFromString("7"), Currency: "EUR", Score: 70, Delivery: model.DeliveryPhoto, SentAt: sent.Add(2 * time.Second)},
			}
			for i := range in {
				if err := s.AddNotification(ctx, &in[i]); err != nil {
					t.Fatalf("add: %v", err)
				}
				if in[i].ID == 0 {
					t.Fatal("expected non-zero ID")
				}
			}

			got, err := s.ListNotifications(ctx, 2)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			want := []model.Notification{in[2], in[1]}
			if diff := cmp.Diff(want, got, ignoreNotificationID); diff != "" {
				t.Errorf("ListNotifications mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewSQLiteOnDisk(t *testing.T) {
	path := t.TempDir() + "/data/bot.db"
	s, err := Open(context.Background(), "", path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.PutBlob(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = s.Close()

	s, err = Open(context.Background(), "", path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()

	got, err := s.GetBlob(context.Background(), "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff("v", string(got)); diff != "" {
		t.Errorf("GetBlob after reopen mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenReplacesCorruptDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "bot.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	garbage := bytes.Repeat([]byte("not a sqlite database "), 64)
	if err := os.WriteFile(path, garbage, 0o600); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	s, err := Open(ctx, "", path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open corrupt database: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	recs, err := s.LoadSeen(ctx)
	if err != nil {
		t.Fatalf("load seen: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty store, got %d records", len(recs))
	}
	rec := model.SeenRecord{ID: "1", Title: "Nike", Price: decimal.RequireFromString("10"), FirstSeenAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	if err := s.SaveSeen(ctx, rec); err != nil {
		t.Fatalf("save seen: %v", err)
	}

	moved, err := filepath.Glob(path + ".corrupt-*")
	if err != nil || len(moved) != 1 {
		t.Fatalf("expected one quarantined file, got %v (err %v)", moved, err)
	}
	data, err := os.ReadFile(moved[0]) //nolint:gosec // path comes from the test's temp dir
	if err != nil {
		t.Fatalf("read quarantined file: %v", err)
	}
	if diff := cmp.Diff(garbage, data); diff != "" {
		t.Errorf("quarantined contents mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenKeepsOtherErrors(t *testing.T) {
	dir := t.TempDir()
	// A directory at the database path is not corruption and must not be moved.
	path := filepath.Join(dir, "bot.db")
	if err := os.Mkdir(path, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := Open(context.Background(), "", path, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("expected error")
	}
	if moved, _ := filepath.Glob(path + ".corrupt-*"); len(moved) != 0 {
		t.Errorf("unexpected quarantine: %v", moved)
	}
}
