package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"callpipe/internal/api"
	"callpipe/internal/metrics"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, endpoint, and task status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				if jsonOut {
					return wrapDialError(err, client.BaseURL())
				}
				p := statusPrinter{out: out, colorize: isTerminal(out)}
				p.section("Daemon")
				p.line("Daemon", levelError, "not reachable at "+client.BaseURL())
				return nil
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			printStatus(out, status, isTerminal(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func printStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	p := statusPrinter{out: out, colorize: colorize}
	p.section("Daemon")
	if status.Running {
		p.line("Daemon", levelOK, fmt.Sprintf("running (pid %d)", status.PID))
	} else {
		p.line("Daemon", levelWarn, "stopping")
	}
	p.line("API", levelInfo, status.APIBind)
	p.line("History", levelInfo, status.HistoryDBPath)
	p.line("Event subscribers", levelInfo, fmt.Sprintf("%d", status.EventSubscribers))
	p.gap()

	p.section("Preflight")
	for _, check := range status.Checks {
		p.line(check.Name, checkResultLevel(check), check.Detail)
	}
	p.gap()

	p.section("Tasks")
	p.note(summaryLine(status.Summary))

	if rows := buildMetricRows(status.Metrics); len(rows) > 0 {
		p.gap()
		p.section("Metrics")
		fmt.Fprintln(out, renderTable([]string{"Metric", "Attributes", "Value"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight}))
	}
}

// checkResultLevel downgrades failed endpoint checks to warnings; the daemon
// keeps running without them.
func checkResultLevel(check api.CheckResult) checkLevel {
	switch {
	case check.Passed:
		return levelOK
	case check.Kind == "endpoint":
		return levelWarn
	default:
		return levelError
	}
}

func buildMetricRows(samples []metrics.Sample) [][]string {
	sorted := append([]metrics.Sample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	rows := make([][]string, 0, len(sorted))
	for _, s := range sorted {
		rows = append(rows, []string{
			strings.TrimPrefix(s.Name, "callpipe."),
			s.Attributes,
			strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.3f", s.Value), "0"), "."),
		})
	}
	return rows
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.TestNotification(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}
}
