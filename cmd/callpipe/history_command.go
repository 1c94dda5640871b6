package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"callpipe/internal/api"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		status  string
		limit   int
		clear   bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished task attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				if clear {
					removed, err := client.ClearHistory(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Removed %d history entries\n", removed)
					return nil
				}

				entries, err := client.History(cmd.Context(), status, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.HistoryResponse{Entries: entries})
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No history")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					detail := e.RemoteArtifactID
					if e.ErrorMessage != "" {
						detail = e.ErrorMessage
					}
					rows = append(rows, []string{
						formatDisplayTime(e.FinishedAt),
						shortID(e.TaskID),
						fmt.Sprintf("%d", e.Attempt),
						e.Artifact,
						formatStatusLabel(e.Status),
						formatDuration(e.DurationSeconds),
						truncate(detail, 48),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Finished", "ID", "Attempt", "File", "Status", "Duration", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show entries with this status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&clear, "clear", false, "Delete all history entries")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
