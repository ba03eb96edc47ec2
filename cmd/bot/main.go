package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sniper_bot/internal/bot"
	"sniper_bot/internal/config"
	"sniper_bot/internal/control"
	"sniper_bot/internal/fetcher"
	"sniper_bot/internal/model"
	"sniper_bot/internal/scheduler"
	"sniper_bot/internal/seen"
	"sniper_bot/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "run a single poll cycle and exit")
	dryRun := flag.Bool("dry-run", false, "log notifications instead of sending them and keep state in memory")
	flag.Parse()

	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.PolicyFile != "" {
		p, err := config.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			log.Error("load policy file", "path", cfg.PolicyFile, "error", err)
			os.Exit(1)
		}
		cfg.Policy = p
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store storage.Storage
	if *dryRun {
		store = storage.NewMemory()
	} else {
		store, err = storage.Open(ctx, cfg.DatabaseURL, cfg.DatabasePath, log)
		if err != nil {
			log.Error("open database", "path", cfg.DatabasePath, "error", err)
			os.Exit(1)
		}
	}
	defer func() { _ = store.Close() }()

	seenStore := seen.Open(ctx, store, seen.Options{
		Retention:    cfg.RetentionWindow,
		RecentWindow: cfg.RecentWindow,
	}, log)
	ctrl := control.New(ctx, store, control.Defaults{
		Policy:       cfg.Policy,
		PollInterval: cfg.PollInterval,
	}, seenStore, log)
	if cfg.PolicyFile != "" && ctrl.PolicyRestored() {
		log.Warn("stored filter policy overrides POLICY_FILE; send SIGHUP to apply the file",
			"path", cfg.PolicyFile)
	}

	searcher, err := newSearcher(cfg, log)
	if err != nil {
		log.Error("create searcher", "error", err)
		os.Exit(1)
	}

	var (
		notifier model.Notifier = bot.LogNotifier{Log: log}
		tg       *bot.Bot
	)
	if !*dryRun {
		tg, err = bot.New(cfg.TelegramBotToken, cfg.TelegramChatID, &http.Client{Timeout: 30 * time.Second}, log)
		if err != nil {
			log.Error("create bot", "error", err)
			os.Exit(1)
		}
		notifier = tg
	}

	sched := scheduler.New(scheduler.Config{
		Terms:         cfg.SearchTerms,
		BackoffDelay:  cfg.BackoffDelay,
		SearchTimeout: cfg.SearchTimeout,
		NotifyTimeout: cfg.NotifyTimeout,
	}, ctrl, seenStore, searcher, notifier, store, log)

	if *once {
		if err := sched.RunOnce(ctx); err != nil {
			log.Error("poll cycle", "error", err)
		}
		return
	}

	if cfg.PolicyFile != "" {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go reloadPolicyOnHangup(ctx, hup, cfg.PolicyFile, ctrl, log)
	}

	log.Info("starting bot",
		"terms", cfg.SearchTerms,
		"source", cfg.SearchSource,
		"poll_interval", ctrl.PollInterval(),
		"paused", ctrl.Snapshot().Paused,
		"dry_run", *dryRun,
	)
	if tg != nil {
		tg.SendSystemMessage(fmt.Sprintf("avviato. Ricerca: %s", strings.Join(cfg.SearchTerms, ", ")))
	}

	sched.Run(ctx)

	if tg != nil {
		tg.SendSystemMessage("arrestato.")
	}
	log.Info("bot stopped")
}

func newSearcher(cfg *config.Config, log *slog.Logger) (model.Searcher, error) {
	if cfg.SearchSource == config.SourceFeed {
		f, err := fetcher.NewFeedSearcher(&http.Client{Timeout: cfg.SearchTimeout}, cfg.SearchFeedURL, log)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	c, err := fetcher.New(cfg.MarketplaceBaseURL, fetcher.Options{RequestInterval: cfg.RequestInterval}, log)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// reloadPolicyOnHangup re-reads the policy file on every SIGHUP and applies it.
func reloadPolicyOnHangup(ctx context.Context, hup <-chan os.Signal, path string, ctrl *control.Controller, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			p, err := config.LoadPolicyFile(path)
			if err != nil {
				log.Error("reload policy file", "path", path, "error", err)
				continue
			}
			if err := ctrl.ReplacePolicy(ctx, p); err != nil {
				log.Error("apply policy file", "path", path, "error", err)
				continue
			}
			log.Info("policy reloaded", "path", path)
		}
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
