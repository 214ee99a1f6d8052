package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/store"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show key and download counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				stats, err := a.keys.Stats(ctx)
				if err != nil {
					return fmt.Errorf("read stats: %w", err)
				}
				w := cmd.OutOrStdout()
				if jsonOutput {
					return writeJSON(w, stats)
				}
				fmt.Fprintf(w, "Total keys:  %d\n", stats.Total)
				fmt.Fprintf(w, "Active:      %d\n", stats.Active)
				fmt.Fprintf(w, "Revoked:     %d\n", stats.Revoked)
				fmt.Fprintf(w, "Downloads:   %d\n", stats.Downloads)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newLogsCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the newest audit log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				entries, err := a.keys.RecentLogs(ctx, limit)
				if err != nil {
					return fmt.Errorf("read audit log: %w", err)
				}
				w := cmd.OutOrStdout()
				if jsonOutput {
					if entries == nil {
						entries = []model.LogEntry{}
					}
					return writeJSON(w, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(w, "The audit log is empty.")
					return nil
				}
				fmt.Fprintf(w, "%-20s %-16s %-24s %-24s %s\n", "TIME", "ACTION", "KEY", "FILE", "IP")
				for _, e := range entries {
					file := orDash(e.Filename)
					if e.Detail != nil {
						file = "count=" + *e.Detail
					}
					fmt.Fprintf(w, "%-20s %-16s %-24s %-24s %s\n",
						e.Timestamp.Local().Format(time.DateTime), e.Action, orDash(e.Key), file, orDash(e.IP))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultLogLimit, "Maximum number of entries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
