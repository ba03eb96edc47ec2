package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"sniper_bot/internal/model"
	"sniper_bot/internal/storage"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "bot.db")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "1")
	t.Setenv("KEYWORDS", "nike")
	t.Setenv("DATABASE_PATH", dbPath)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POLICY_FILE", "")
	return dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPauseResumeInterval(t *testing.T) {
	setupEnv(t)

	if _, err := run(t, "pause"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := run(t, "interval", "90s"); err != nil {
		t.Fatalf("interval: %v", err)
	}

	out, err := run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"paused", "1m30s", "[nike]"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "resume"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	out, err = run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "running") {
		t.Errorf("expected running state:\n%s", out)
	}
}

func TestIntervalRejectsGarbage(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "interval", "soon"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := run(t, "interval", "-5s"); err == nil {
		t.Fatal("expected error for negative interval")
	}
}

func TestPolicySetAndUnset(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "policy", "set", "--max-price", "25", "--brands", "nike,adidas", "--require-image=false")
	if err != nil {
		t.Fatalf("policy set: %v", err)
	}
	for _, want := range []string{`"max_price": "25"`, `"adidas"`, `"require_image": false`} {
		if !strings.Contains(out, want) {
			t.Errorf("policy output missing %s:\n%s", want, out)
		}
	}

	out, err = run(t, "policy", "unset", model.FieldAllowedBrands)
	if err != nil {
		t.Fatalf("policy unset: %v", err)
	}
	if strings.Contains(out, "allowed_brands") {
		t.Errorf("brands should be unset:\n%s", out)
	}

	if _, err := run(t, "policy", "set"); err == nil {
		t.Error("expected error when no fields are given")
	}
	if _, err := run(t, "policy", "set", "--min-price", "100"); err == nil {
		t.Error("expected error for min price above max price")
	}
	if _, err := run(t, "policy", "unset", "colour"); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestHistoryAndSeenClear(t *testing.T) {
	dbPath := setupEnv(t)
	ctx := context.Background()

	store, err := storage.NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	_ = store.SaveSeen(ctx, model.SeenRecord{ID: "a", FirstSeenAt: time.Now()})
	_ = store.AddNotification(ctx, &model.Notification{ListingID: "a", Title: "Nike Air", Currency: "EUR", Score: 80, Delivery: model.DeliveryAlbum})
	_ = store.Close()

	out, err := run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "Nike Air") || !strings.Contains(out, "album") {
		t.Errorf("unexpected history output:\n%s", out)
	}

	out, err = run(t, "seen", "clear")
	if err != nil {
		t.Fatalf("seen clear: %v", err)
	}
	if diff := cmp.Diff("cleared 1 seen listings\n", out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{in: "1500", want: 1500 * time.Millisecond},
		{in: "2m", want: 2 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseInterval(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
