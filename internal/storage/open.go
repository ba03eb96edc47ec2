package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Open picks PostgreSQL when databaseURL is set and SQLite at databasePath otherwise.
// A SQLite file that is not a readable database is moved aside and replaced
// by a fresh one.
func Open(ctx context.Context, databaseURL, databasePath string, log *slog.Logger) (Storage, error) {
	if databaseURL != "" {
		return NewPostgres(ctx, databaseURL)
	}

	if dir := filepath.Dir(databasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	s, err := NewSQLite(databasePath)
	if err == nil {
		return s, nil
	}
	if !isCorrupt(err) {
		return nil, err
	}

	moved, mvErr := quarantine(databasePath, time.Now())
	if mvErr != nil {
		return nil, errors.Join(err, mvErr)
	}
	log.Error("database file is corrupt, starting with an empty store",
		"path", databasePath, "moved_to", moved, "error", err)
	s, err = NewSQLite(databasePath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func isCorrupt(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
			return true
		}
	}
	// goose does not always keep the driver error in the chain.
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}

// quarantine renames path and its WAL sidecars to <path>.corrupt-<ts>.
func quarantine(path string, now time.Time) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stat corrupt database: %w", err)
	}
	target := path + ".corrupt-" + now.UTC().Format("20060102T150405")
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("move corrupt database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+suffix, target+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("move corrupt database%s: %w", suffix, err)
		}
	}
	return target, nil
}
