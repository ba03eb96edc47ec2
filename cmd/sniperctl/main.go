package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sniper_bot/internal/config"
	"sniper_bot/internal/control"
	"sniper_bot/internal/seen"
	"sniper_bot/internal/storage"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	dbPath      string
	databaseURL string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "sniperctl",
		Short: "Control a running sniper bot",
		Long: "sniperctl reads and changes the state the sniper bot persists: pause state, poll interval,\n" +
			"filter policy, seen listings and notification history. The bot picks up changes on its next tick.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "path to sqlite database (default: DATABASE_PATH)")
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL URL (default: DATABASE_URL)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log diagnostics to stderr")

	root.AddCommand(
		newStatusCmd(opts),
		newPauseCmd(opts),
		newResumeCmd(opts),
		newIntervalCmd(opts),
		newPolicyCmd(opts),
		newSeenCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

// env is the bot state opened for one command.
type env struct {
	cfg   *config.Config
	store storage.Storage
	seen  *seen.Store
	ctrl  *control.Controller
	out   io.Writer
}

// open loads the bot configuration and opens its database. The configuration
// supplies the defaults the bot itself would start from.
func open(cmd *cobra.Command, opts *globalOptions) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.dbPath != "" {
		cfg.DatabasePath = opts.dbPath
	}
	if opts.databaseURL != "" {
		cfg.DatabaseURL = opts.databaseURL
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	ctx := cmd.Context()
	store, err := storage.Open(ctx, cfg.DatabaseURL, cfg.DatabasePath, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	seenStore := seen.Open(ctx, store, seen.Options{Retention: cfg.RetentionWindow, RecentWindow: cfg.RecentWindow}, log)
	ctrl := control.New(ctx, store, control.Defaults{Policy: cfg.Policy, PollInterval: cfg.PollInterval}, seenStore, log)
	return &env{cfg: cfg, store: store, seen: seenStore, ctrl: ctrl, out: cmd.OutOrStdout()}, nil
}

func (e *env) Close() {
	_ = e.store.Close()
}

// withEnv adapts a command body that needs the opened bot state.
func withEnv(opts *globalOptions, fn func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := open(cmd, opts)
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(cmd, args, e)
	}
}
