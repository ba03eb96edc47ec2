package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"sniper_bot/internal/model"
)

var allVars = []string{
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "DATABASE_PATH", "DATABASE_URL", "LOG_LEVEL", "LOG_FORMAT",
	"BRANDS", "KEYWORDS", "KEYWORD", "MARKETPLACE_BASE_URL", "SEARCH_SOURCE", "SEARCH_FEED_URL",
	"POLL_INTERVAL_MS", "BACKOFF_DELAY_MS", "RETENTION_WINDOW", "RECENT_WINDOW", "SEARCH_TIMEOUT",
	"NOTIFY_TIMEOUT", "REQUEST_INTERVAL", "MAX_PRICE", "MIN_PRICE", "MAX_AGE_MINUTES", "SIZES",
	"CONDITIONS", "EXCLUDE_BRANDS", "EXCLUDE_KEYWORDS", "EXCLUDE_CONDITIONS", "REQUIRE_IMAGE", "POLICY_FILE",
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intp(n int) *int { return &n }

func defaultConfig() *Config {
	return &Config{
		TelegramBotToken:   "tok",
		TelegramChatID:     123,
		DatabasePath:       "./data/bot.db",
		LogLevel:           "info",
		LogFormat:          "text",
		SearchTerms:        []string{"giacca"},
		MarketplaceBaseURL: "https://www.vinted.it",
		SearchSource:       SourceCatalog,
		PollInterval:       time.Minute,
		BackoffDelay:       30 * time.Second,
		RetentionWindow:    24 * time.Hour,
		RecentWindow:       time.Hour,
		SearchTimeout:      45 * time.Second,
		NotifyTimeout:      time.Minute,
		RequestInterval:    2 * time.Second,
		Policy: model.FilterPolicy{
			MaxPrice:      dec("40"),
			MaxAgeMinutes: intp(60),
			RequireImage:  true,
		},
	}
}

func TestLoad(t *testing.T) {
	base := map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "TELEGRAM_CHAT_ID": "123", "KEYWORD": "giacca"}

	tests := []struct {
		name    string
		env     map[string]string
		want    func() *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{"TELEGRAM_CHAT_ID": "1", "KEYWORD": "x"},
			wantErr: true,
		},
		{
			name:    "missing chat id",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "KEYWORD": "x"},
			wantErr: true,
		},
		{
			name:    "invalid chat id",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "TELEGRAM_CHAT_ID": "abc", "KEYWORD": "x"},
			wantErr: true,
		},
		{
			name:    "missing search terms",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "TELEGRAM_CHAT_ID": "1"},
			wantErr: true,
		},
		{
			name: "defaults applied",
			env:  base,
			want: defaultConfig,
		},
		{
			name: "brands become search terms and allowed brands",
			env:  merge(base, map[string]string{"BRANDS": "Nike, Adidas", "KEYWORDS": "ignored"}),
			want: func() *Config {
				c := defaultConfig()
				c.SearchTerms = []string{"Nike", "Adidas"}
				c.Policy.AllowedBrands = []string{"Nike", "Adidas"}
				return c
			},
		},
		{
			name: "all values set",
			env: merge(base, map[string]string{
				"KEYWORDS":           "borsa  vintage",
				"DATABASE_URL":       "postgres://localhost/sniper",
				"LOG_LEVEL":          "debug",
				"LOG_FORMAT":         "json",
				"SEARCH_SOURCE":      "feed",
				"SEARCH_FEED_URL":    "https://example.com/rss?q=%s",
				"POLL_INTERVAL_MS":   "15000",
				"BACKOFF_DELAY_MS":   "5000",
				"RETENTION_WINDOW":   "48h",
				"REQUEST_INTERVAL":   "500ms",
				"MAX_PRICE":          "25.5",
				"MIN_PRICE":          "5",
				"MAX_AGE_MINUTES":    "30",
				"SIZES":              "M,L",
				"EXCLUDE_KEYWORDS":   "rotto,difetto",
				"EXCLUDE_CONDITIONS": "satisfactory",
				"REQUIRE_IMAGE":      "false",
				"POLICY_FILE":        "/etc/sniper/policy.yaml",
			}),
			want: func() *Config {
				c := defaultConfig()
				c.SearchTerms = []string{"borsa", "vintage"}
				c.DatabaseURL = "postgres://localhost/sniper"
				c.LogLevel = "debug"
				c.LogFormat = "json"
				c.SearchSource = SourceFeed
				c.SearchFeedURL = "https://example.com/rss?q=%s"
				c.PollInterval = 15 * time.Second
				c.BackoffDelay = 5 * time.Second
				c.RetentionWindow = 48 * time.Hour
				c.RequestInterval = 500 * time.Millisecond
				c.PolicyFile = "/etc/sniper/policy.yaml"
				c.Policy = model.FilterPolicy{
					AllowedSizes:       []string{"M", "L"},
					ExcludedKeywords:   []string{"rotto", "difetto"},
					ExcludedConditions: []string{"satisfactory"},
					MinPrice:           dec("5"),
					MaxPrice:           dec("25.5"),
					MaxAgeMinutes:      intp(30),
				}
				return c
			},
		},
		{
			name:    "feed source without template",
			env:     merge(base, map[string]string{"SEARCH_SOURCE": "feed"}),
			wantErr: true,
		},
		{
			name:    "unknown source",
			env:     merge(base, map[string]string{"SEARCH_SOURCE": "browser"}),
			wantErr: true,
		},
		{
			name:    "invalid interval",
			env:     merge(base, map[string]string{"POLL_INTERVAL_MS": "soon"}),
			wantErr: true,
		},
		{
			name:    "min price above max price",
			env:     merge(base, map[string]string{"MIN_PRICE": "50"}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range allVars {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("expected ErrInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "nike, adidas ,", want: []string{"nike", "adidas"}},
		{in: "nike adidas\tpuma", want: []string{"nike", "adidas", "puma"}},
		{in: "new balance, dr martens", want: []string{"new balance", "dr martens"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseList(tt.in)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write policy file: %v", err)
		}
		return path
	}
	t.Setenv("SNIPER_TEST_BRAND", "carhartt")

	t.Run("valid", func(t *testing.T) {
		path := write("policy.yaml", `
allowed_brands: [nike, "${SNIPER_TEST_BRAND}"]
excluded_keywords: [rotto]
max_price: 35.5
max_age_minutes: 20
`)
		got, err := LoadPolicyFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := model.FilterPolicy{
			AllowedBrands:    []string{"nike", "carhartt"},
			ExcludedKeywords: []string{"rotto"},
			MaxPrice:         dec("35.5"),
			MaxAgeMinutes:    intp(20),
			RequireImage:     true,
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("LoadPolicyFile mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("require image disabled", func(t *testing.T) {
		got, err := LoadPolicyFile(write("noimg.yaml", "require_image: false\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.RequireImage {
			t.Error("expected require_image false")
		}
	})

	t.Run("invalid bounds", func(t *testing.T) {
		if _, err := LoadPolicyFile(write("bad.yaml", "min_price: 10\nmax_price: 5\n")); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		if _, err := LoadPolicyFile(write("broken.yaml", "allowed_brands: [nike\n")); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadPolicyFile(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Fatal("expected error")
		}
	})
}

func merge(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
