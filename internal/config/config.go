// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sniper_bot/internal/model"
)

// ErrInvalid marks configuration problems that must stop the bot before it starts.
var ErrInvalid = errors.New("invalid configuration")

const (
	SourceCatalog = "catalog"
	SourceFeed    = "feed"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	TelegramChatID   int64
	DatabasePath     string
	// DatabaseURL selects PostgreSQL instead of the SQLite file when set.
	DatabaseURL string
	LogLevel    string
	LogFormat   string

	SearchTerms        []string
	MarketplaceBaseURL string
	SearchSource       string
	SearchFeedURL      string

	PollInterval    time.Duration
	BackoffDelay    time.Duration
	RetentionWindow time.Duration
	RecentWindow    time.Duration
	SearchTimeout   time.Duration
	NotifyTimeout   time.Duration
	RequestInterval time.Duration

	// Policy is the filter policy used until one is persisted.
	Policy     model.FilterPolicy
	// PolicyFile is read at startup like Policy, so a persisted policy still
	// wins over it. SIGHUP applies the file over the persisted one.
	PolicyFile string
}

var whitespace = regexp.MustCompile(`\s+`)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("%w: TELEGRAM_BOT_TOKEN is required", ErrInvalid)
	}

	rawChatID := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID"))
	if rawChatID == "" {
		return nil, fmt.Errorf("%w: TELEGRAM_CHAT_ID is required", ErrInvalid)
	}
	chatID, err := strconv.ParseInt(rawChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid TELEGRAM_CHAT_ID %q", ErrInvalid, rawChatID)
	}

	cfg := &Config{
		TelegramBotToken:   token,
		TelegramChatID:     chatID,
		DatabasePath:       envOrDefault("DATABASE_PATH", "./data/bot.db"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "text"),
		MarketplaceBaseURL: envOrDefault("MARKETPLACE_BASE_URL", "https://www.vinted.it"),
		SearchSource:       strings.ToLower(envOrDefault("SEARCH_SOURCE", SourceCatalog)),
		SearchFeedURL:      os.Getenv("SEARCH_FEED_URL"),
		PolicyFile:         os.Getenv("POLICY_FILE"),
	}

	// BRANDS searches by brand and only accepts those brands; otherwise the
	// keywords are plain search terms.
	brands := ParseList(os.Getenv("BRANDS"))
	if len(brands) > 0 {
		cfg.SearchTerms = brands
		cfg.Policy.AllowedBrands = brands
	} else {
		kw := os.Getenv("KEYWORDS")
		if strings.TrimSpace(kw) == "" {
			kw = os.Getenv("KEYWORD")
		}
		cfg.SearchTerms = ParseList(kw)
	}
	if len(cfg.SearchTerms) == 0 {
		return nil, fmt.Errorf("%w: BRANDS or KEYWORDS is required", ErrInvalid)
	}

	switch cfg.SearchSource {
	case SourceCatalog:
	case SourceFeed:
		if strings.Count(cfg.SearchFeedURL, "%s") != 1 {
			return nil, fmt.Errorf("%w: SEARCH_FEED_URL must contain one %%s for the search term", ErrInvalid)
		}
	default:
		return nil, fmt.Errorf("%w: unknown SEARCH_SOURCE %q", ErrInvalid, cfg.SearchSource)
	}

	durations := []struct {
		dst  *time.Duration
		key  string
		def  time.Duration
		inMs bool
	}{
		{&cfg.PollInterval, "POLL_INTERVAL_MS", 60 * time.Second, true},
		{&cfg.BackoffDelay, "BACKOFF_DELAY_MS", 30 * time.Second, true},
		{&cfg.RetentionWindow, "RETENTION_WINDOW", 24 * time.Hour, false},
		{&cfg.RecentWindow, "RECENT_WINDOW", time.Hour, false},
		{&cfg.SearchTimeout, "SEARCH_TIMEOUT", 45 * time.Second, false},
		{&cfg.NotifyTimeout, "NOTIFY_TIMEOUT", 60 * time.Second, false},
		{&cfg.RequestInterval, "REQUEST_INTERVAL", 2 * time.Second, false},
	}
	for _, d := range durations {
		v, err := envDuration(d.key, d.def, d.inMs)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if err := loadPolicy(&cfg.Policy); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadPolicy(p *model.FilterPolicy) error {
	maxPrice, err := envDecimal("MAX_PRICE", "40")
	if err != nil {
		return err
	}
	p.MaxPrice = maxPrice

	if p.MinPrice, err = envDecimal("MIN_PRICE", ""); err != nil {
		return err
	}

	age, err := envInt("MAX_AGE_MINUTES", 60)
	if err != nil {
		return err
	}
	p.MaxAgeMinutes = &age

	p.AllowedSizes = ParseList(os.Getenv("SIZES"))
	p.AllowedConditions = ParseList(os.Getenv("CONDITIONS"))
	p.ExcludedBrands = ParseList(os.Getenv("EXCLUDE_BRANDS"))
	p.ExcludedKeywords = ParseList(os.Getenv("EXCLUDE_KEYWORDS"))
	p.ExcludedConditions = ParseList(os.Getenv("EXCLUDE_CONDITIONS"))

	p.RequireImage = true
	if raw := os.Getenv("REQUIRE_IMAGE"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%w: invalid REQUIRE_IMAGE %q", ErrInvalid, raw)
		}
		p.RequireImage = b
	}

	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// ParseList splits on commas when the value has any, and on whitespace otherwise.
// Empty entries are dropped.
func ParseList(raw string) []string {
	var parts []string
	if strings.Contains(raw, ",") {
		parts = strings.Split(raw, ",")
	} else {
		parts = whitespace.Split(raw, -1)
	}

	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration reads a Go duration, or whole milliseconds when inMs is set.
func envDuration(key string, def time.Duration, inMs bool) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	if inMs {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms < 0 {
			return 0, fmt.Errorf("%w: invalid %s %q", ErrInvalid, key, raw)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrInvalid, key, raw)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrInvalid, key, raw)
	}
	return n, nil
}

// envDecimal returns nil when the variable and def are both empty.
func envDecimal(key, def string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(envOrDefault(key, def))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q", ErrInvalid, key, raw)
	}
	return &d, nil
}
