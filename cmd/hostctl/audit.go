package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCmd(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the sync audit trail",
	}
	cmd.AddCommand(newAuditStatsCmd(e))
	return cmd
}

func newAuditStatsCmd(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show daily sync totals per account and endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			days, err := cmd.Flags().GetInt("days")
			if err != nil {
				return err
			}
			if days <= 0 {
				return errors.New("--days must be positive")
			}
			since := e.now().AddDate(0, 0, -(days - 1))

			return withStore(cmd, e, func(ctx context.Context, s store) error {
				stats, err := s.DailyStats(ctx, since)
				if err != nil {
					return err
				}
				accounts, err := s.ListAccounts(ctx)
				if err != nil {
					return err
				}
				names := make(map[string]string, len(accounts))
				for _, a := range accounts {
					names[a.ID] = a.Identifier
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DAY\tACCOUNT\tENDPOINT\tREQUESTS\tERRORS\tROWS\tLAST SEEN")
				for _, st := range stats {
					account, ok := names[st.AccountID]
					if !ok {
						account = st.AccountID
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
						st.Day.Format("2006-01-02"), account, st.Endpoint,
						st.Requests, st.Errors, st.RowsServed, st.LastSeen.UTC().Format(time.TimeOnly))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Int("days", 7, "Number of days to report, today included")
	return cmd
}
