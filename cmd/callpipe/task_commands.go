package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"callpipe/internal/api"
)

type actionOutcome string

const (
	outcomeDone      actionOutcome = "done"
	outcomeNotFound  actionOutcome = "not_found"
	outcomeAmbiguous actionOutcome = "ambiguous"
	outcomeRejected  actionOutcome = "rejected"
)

type actionResult struct {
	ID      string        `json:"id"`
	Outcome actionOutcome `json:"outcome"`
	Status  string        `json:"status,omitempty"`
	Message string        `json:"message,omitempty"`
}

type taskAction struct {
	use   string
	short string
	verb  string
	call  func(*api.Client, context.Context, string) (api.Task, error)
}

func newTaskActionCommands(ctx *commandContext) []*cobra.Command {
	actions := []taskAction{
		{use: "pause", short: "Pause in-flight uploads", verb: "paused", call: (*api.Client).Pause},
		{use: "resume", short: "Resume paused uploads", verb: "resumed", call: (*api.Client).Resume},
		{use: "cancel", short: "Cancel tasks", verb: "cancelled", call: (*api.Client).Cancel},
		{use: "retry", short: "Retry tasks whose upload failed", verb: "retried", call: (*api.Client).Retry},
	}
	cmds := make([]*cobra.Command, 0, len(actions))
	for _, action := range actions {
		cmds = append(cmds, newTaskActionCommand(ctx, action))
	}
	return cmds
}

func newTaskActionCommand(ctx *commandContext, action taskAction) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   action.use + " <id>...",
		Short: action.short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				results, err := runAction(cmd.Context(), client, args, action)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, map[string]any{"items": results})
				}
				printActionResults(cmd.OutOrStdout(), action.verb, results)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// runAction applies action to each id and records a per-id outcome. Only
// transport failures abort the loop.
func runAction(ctx context.Context, client *api.Client, args []string, action taskAction) ([]actionResult, error) {
	tasks, err := client.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]actionResult, 0, len(args))
	for _, arg := range args {
		id, outcome := resolveTaskID(tasks.Tasks, arg)
		if outcome != outcomeDone {
			results = append(results, actionResult{ID: arg, Outcome: outcome})
			continue
		}
		task, err := action.call(client, ctx, id)
		switch {
		case err == nil:
			results = append(results, actionResult{ID: id, Outcome: outcomeDone, Status: task.Status})
		case api.IsStatus(err, http.StatusNotFound):
			results = append(results, actionResult{ID: id, Outcome: outcomeNotFound})
		case api.IsStatus(err, http.StatusConflict):
			results = append(results, actionResult{ID: id, Outcome: outcomeRejected, Message: err.Error()})
		default:
			return nil, err
		}
	}
	return results, nil
}

// resolveTaskID accepts a full id or a unique prefix of one.
func resolveTaskID(tasks []api.Task, arg string) (string, actionOutcome) {
	arg = strings.TrimSpace(arg)
	var match string
	for _, task := range tasks {
		if task.ID == arg {
			return task.ID, outcomeDone
		}
		if arg != "" && strings.HasPrefix(task.ID, arg) {
			if match != "" {
				return "", outcomeAmbiguous
			}
			match = task.ID
		}
	}
	if match == "" {
		return arg, outcomeNotFound
	}
	return match, outcomeDone
}

func printActionResults(out io.Writer, verb string, results []actionResult) {
	for _, r := range results {
		switch r.Outcome {
		case outcomeDone:
			fmt.Fprintf(out, "Task %s %s (%s)\n", shortID(r.ID), verb, formatStatusLabel(r.Status))
		case outcomeNotFound:
			fmt.Fprintf(out, "Task %s not found\n", r.ID)
		case outcomeAmbiguous:
			fmt.Fprintf(out, "Task prefix %s matches more than one task\n", r.ID)
		case outcomeRejected:
			fmt.Fprintf(out, "Task %s not %s: %s\n", shortID(r.ID), verb, r.Message)
		}
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks held by the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.ListTasks(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Tasks) == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "File", "Status", "Progress", "Transferred", "ETA", "Destination"},
					buildTaskRows(resp.Tasks),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				fmt.Fprintln(out, summaryLine(resp.Summary))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				list, err := client.ListTasks(cmd.Context())
				if err != nil {
					return err
				}
				id, outcome := resolveTaskID(list.Tasks, args[0])
				switch outcome {
				case outcomeNotFound:
					return fmt.Errorf("task %s not found", args[0])
				case outcomeAmbiguous:
					return fmt.Errorf("task prefix %s matches more than one task", args[0])
				}
				task, err := client.GetTask(cmd.Context(), id)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, task)
				}
				printTaskDetail(cmd.OutOrStdout(), task)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func printTaskDetail(out io.Writer, task api.Task) {
	line := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(out, "%-14s %s\n", label+":", value)
	}
	line("ID", task.ID)
	line("Batch", task.BatchID)
	line("File", task.Artifact)
	line("Status", formatStatusLabel(task.Status))
	line("Progress", fmt.Sprintf("%s %s", progressBar(task.ProgressPercent, 20), formatPercent(task.ProgressPercent)))
	line("Transferred", formatTransfer(task.TransferredBytes, task.TotalBytes))
	line("ETA", formatETA(task.ETASeconds))
	line("Destination", task.Destination)
	line("Checklist", task.Checklist)
	line("Model", task.Model)
	line("Auto process", yesNo(task.AutoProcess))
	line("Remote ID", task.RemoteArtifactID)
	line("Attempt", fmt.Sprintf("%d", task.Attempt))
	line("Failure", task.FailureKind)
	line("Error", task.ErrorMessage)
	line("Created", formatDisplayTime(task.CreatedAt))
	line("Updated", formatDisplayTime(task.UpdatedAt))
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished tasks (or every task with --all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				removed, err := client.Clear(cmd.Context(), all)
				if err != nil {
					return err
				}
				label := "finished tasks"
				if all {
					label = "tasks"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s\n", removed, label)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Cancel and remove every task, including active ones")
	return cmd
}

func newProgressCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show overall progress across tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Progress(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Overall %s %s\n", progressBar(resp.Percent, 30), formatPercent(resp.Percent))
				fmt.Fprintln(out, summaryLine(resp.Summary))
				if rows := buildCountRows(resp.Counts); len(rows) > 0 {
					fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
