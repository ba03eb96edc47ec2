package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent notifications, newest first",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of notifications to show")

	cmd.RunE = withEnv(opts, func(cmd *cobra.Command, _ []string, e *env) error {
		notes, err := e.store.ListNotifications(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("list notifications: %w", err)
		}
		if len(notes) == 0 {
			fmt.Fprintln(e.out, "no notifications yet")
			return nil
		}

		w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SENT\tLISTING\tPRICE\tSCORE\tDELIVERY\tTITLE")
		for _, n := range notes {
			delivery := string(n.Delivery)
			if n.Error != "" {
				delivery = "failed: " + n.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s %s\t%d\t%s\t%s\n",
				n.SentAt.Local().Format("2006-01-02 15:04"), n.ListingID,
				n.Price.StringFixed(2), n.Currency, n.Score, delivery, n.Title)
		}
		return w.Flush()
	})
	return cmd
}
