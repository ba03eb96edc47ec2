package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pause state, poll interval and seen listing counts",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(_ *cobra.Command, _ []string, e *env) error {
			st := e.ctrl.Stats()
			state := "running"
			if st.Paused {
				state = "paused"
			}
			fmt.Fprintf(e.out, "state:          %s\n", state)
			fmt.Fprintf(e.out, "poll interval:  %s\n", time.Duration(st.PollIntervalMs)*time.Millisecond)
			fmt.Fprintf(e.out, "seen listings:  %d (%d recent)\n", st.Total, st.Recent)
			fmt.Fprintf(e.out, "search terms:   %v\n", e.cfg.SearchTerms)
			return nil
		}),
	}
}

func newPauseCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Stop polling until resumed",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(cmd *cobra.Command, _ []string, e *env) error {
			if err := e.ctrl.Pause(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(e.out, "paused")
			return nil
		}),
	}
}

func newResumeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume polling",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(cmd *cobra.Command, _ []string, e *env) error {
			if err := e.ctrl.Resume(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(e.out, "resumed")
			return nil
		}),
	}
}

func newIntervalCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "interval <duration>",
		Short: "Set the wait between poll cycles",
		Long:  "Set the wait between poll cycles, as a duration (90s, 2m) or in milliseconds.",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(opts, func(cmd *cobra.Command, args []string, e *env) error {
			d, err := parseInterval(args[0])
			if err != nil {
				return err
			}
			if err := e.ctrl.SetPollInterval(cmd.Context(), d); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "poll interval set to %s\n", d)
			return nil
		}),
	}
}

// parseInterval accepts a Go duration or a bare number of milliseconds.
func parseInterval(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}
