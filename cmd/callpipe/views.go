package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"callpipe/internal/api"
)

const shortIDLength = 8

var titleCaser = cases.Title(language.Und)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func buildTaskRows(tasks []api.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			shortID(task.ID),
			task.Artifact,
			formatStatusLabel(task.Status),
			formatPercent(task.ProgressPercent),
			formatTransfer(task.TransferredBytes, task.TotalBytes),
			formatETA(task.ETASeconds),
			task.Destination,
		})
	}
	return rows
}

func buildCountRows(counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for key, n := range counts {
		if n > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", counts[key])})
	}
	return rows
}

func summaryLine(s api.Summary) string {
	return fmt.Sprintf("%d total, %d active, %d completed, %d failed, %d cancelled",
		s.Total, s.Active, s.Completed, s.Failed, s.Cancelled)
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

func formatTransfer(sent, total int64) string {
	if total <= 0 {
		return "-"
	}
	return fmt.Sprintf("%s / %s", humanize.IBytes(uint64(max(sent, 0))), humanize.IBytes(uint64(total)))
}

func formatETA(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	d := time.Duration(*seconds * float64(time.Second)).Round(time.Second)
	if d <= 0 {
		return "<1s"
	}
	return d.String()
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return time.Duration(seconds * float64(time.Second)).Round(time.Second).String()
}

func formatDisplayTime(value string) string {
	t, err := api.ParseTime(strings.TrimSpace(value))
	if err != nil || t.IsZero() {
		return value
	}
	return t.Local().Format("2006-01-02 15:04")
}

// shortID trims a task id for table output. Commands accept either form.
func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

func progressBar(p float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(p / 100 * float64(width))
	filled = min(max(filled, 0), width)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func formatTaskLine(task api.Task) string {
	line := fmt.Sprintf("%-24s %-13s %s %6s", truncate(task.Artifact, 24), formatStatusLabel(task.Status),
		progressBar(task.ProgressPercent, 20), formatPercent(task.ProgressPercent))
	if task.ETASeconds != nil {
		line += "  eta " + formatETA(task.ETASeconds)
	}
	if task.ErrorMessage != "" {
		line += "  " + task.ErrorMessage
	}
	return line
}

func truncate(value string, width int) string {
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	if width <= 1 {
		return string(runes[:width])
	}
	return string(runes[:width-1]) + "…"
}
