package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"callpipe/internal/api"
)

var errWaitDone = errors.New("all tasks finished")

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		destination string
		checklist   string
		model       string
		noProcess   bool
		wait        bool
		jsonOut     bool
	)

	cmd := &cobra.Command{
		Use:   "submit <file>...",
		Short: "Upload recordings as one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := make([]string, 0, len(args))
			for _, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}
				paths = append(paths, abs)
			}
			req := api.SubmitRequest{
				Paths:       paths,
				Destination: destination,
				Checklist:   checklist,
				Model:       model,
			}
			if cmd.Flags().Changed("no-process") {
				autoProcess := !noProcess
				req.AutoProcess = &autoProcess
			}

			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !wait {
					if jsonOut {
						return writeJSON(cmd, resp)
					}
					for i, id := range resp.TaskIDs {
						fmt.Fprintf(out, "Queued %s as %s\n", filepath.Base(args[i]), id)
					}
					return nil
				}
				tasks, err := waitForTasks(cmd.Context(), client, resp.TaskIDs, out)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.TaskListResponse{Tasks: tasks, Summary: summarize(tasks)})
				}
				return failedError(tasks)
			})
		},
	}

	cmd.Flags().StringVarP(&destination, "destination", "d", "", "Destination project (defaults to defaults.destination)")
	cmd.Flags().StringVar(&checklist, "checklist", "", "Checklist to analyze against")
	cmd.Flags().StringVar(&model, "model", "", "Processing model")
	cmd.Flags().BoolVar(&noProcess, "no-process", false, "Upload only, skip remote processing")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow progress until every task finishes")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// waitForTasks follows the event stream until every id is terminal. On a
// terminal it redraws one line per task; otherwise it prints each final state.
func waitForTasks(ctx context.Context, client *api.Client, ids []string, out io.Writer) ([]api.Task, error) {
	order := make(map[string]int, len(ids))
	for i, id := range ids {
		order[id] = i
	}
	tasks := make([]api.Task, len(ids))
	reported := make([]bool, len(ids))
	interactive := isTerminal(out)
	drawn := false

	err := client.StreamEvents(ctx, func(ev api.Event) error {
		if ev.Task == nil {
			return nil
		}
		idx, ok := order[ev.Task.ID]
		if !ok {
			return nil
		}
		if ev.Type == api.EventTypeTaskRemoved {
			return fmt.Errorf("task %s was removed while waiting", ev.Task.ID)
		}
		if ev.Task.Version < tasks[idx].Version {
			return nil
		}
		tasks[idx] = *ev.Task

		if interactive {
			if drawn {
				fmt.Fprintf(out, "\x1b[%dA", len(tasks))
			}
			for _, task := range tasks {
				fmt.Fprintf(out, "\x1b[2K%s\n", formatTaskLine(task))
			}
			drawn = true
		} else if isTerminalStatus(ev.Task.Status) && !reported[idx] {
			reported[idx] = true
			fmt.Fprintln(out, formatTaskLine(*ev.Task))
		}

		for _, task := range tasks {
			if !isTerminalStatus(task.Status) {
				return nil
			}
		}
		return errWaitDone
	})
	if errors.Is(err, errWaitDone) {
		return tasks, nil
	}
	return tasks, err
}

func isTerminalStatus(status string) bool {
	switch status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

func summarize(tasks []api.Task) api.Summary {
	s := api.Summary{Total: len(tasks)}
	for _, task := range tasks {
		switch task.Status {
		case "completed":
			s.Completed++
		case "failed":
			s.Failed++
		case "cancelled":
			s.Cancelled++
		default:
			s.Active++
		}
	}
	return s
}

func failedError(tasks []api.Task) error {
	failed := summarize(tasks).Failed
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d task(s) failed", failed)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
