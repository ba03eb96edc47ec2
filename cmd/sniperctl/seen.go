package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSeenCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seen",
		Short: "Manage the seen listing store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget every seen listing",
		Long:  "Forget every seen listing. A running bot keeps its in-memory set until it restarts.",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(cmd *cobra.Command, _ []string, e *env) error {
			before := e.seen.Stats().Total
			if err := e.seen.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "cleared %d seen listings\n", before)
			return nil
		}),
	})
	return cmd
}
