package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"callpipe/internal/config"
)

const userAgent = "Callpipe-Go/0.1.0"

// Event enumerates the notifications callpipe can send.
type Event string

const (
	EventTaskFailed     Event = "task_failed"
	EventBatchCompleted Event = "batch_completed"
	EventTest           Event = "test"
)

// Payload carries event-specific values.
type Payload map[string]any

// Service publishes notification events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventTaskFailed:     cfg.Notifications.TaskFailed,
			EventBatchCompleted: cfg.Notifications.BatchCompleted,
			EventTest:           true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, p Payload) error {
	if !n.enabled[event] {
		return nil
	}
	var data payload
	switch event {
	case EventTaskFailed:
		data = formatTaskFailed(p)
	case EventBatchCompleted:
		data = formatBatchCompleted(p)
	case EventTest:
		data = payload{
			title:    "Callpipe - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"callpipe", "test"},
			priority: "low",
		}
	default:
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, data)
}

func formatTaskFailed(p Payload) payload {
	artifact := strings.TrimSpace(stringValue(p, "artifact"))
	if artifact == "" {
		artifact = "unknown file"
	}
	reason := strings.TrimSpace(stringValue(p, "error"))
	if reason == "" {
		reason = "unknown"
	}
	var builder strings.Builder
	builder.WriteString("❌ ")
	builder.WriteString(artifact)
	if stage := strings.TrimSpace(stringValue(p, "stage")); stage != "" {
		builder.WriteString(" failed during ")
		builder.WriteString(stage)
	} else {
		builder.WriteString(" failed")
	}
	builder.WriteString(": ")
	builder.WriteString(reason)
	return payload{
		title:    "Callpipe - Upload Failed",
		message:  builder.String(),
		tags:     []string{"callpipe", "task", "failed"},
		priority: "high",
	}
}

func formatBatchCompleted(p Payload) payload {
	completed := intValue(p, "completed")
	failed := intValue(p, "failed")
	cancelled := intValue(p, "cancelled")
	destination := strings.TrimSpace(stringValue(p, "destination"))

	title := "Callpipe - Batch Complete"
	message := fmt.Sprintf("✅ %d file(s) processed", completed)
	if failed > 0 || cancelled > 0 {
		title = "Callpipe - Batch Complete (with errors)"
		message = fmt.Sprintf("Batch finished: %d completed, %d failed, %d cancelled", completed, failed, cancelled)
	}
	if destination != "" {
		message = fmt.Sprintf("%s\nDestination: %s", message, destination)
	}
	return payload{
		title:   title,
		message: message,
		tags:    []string{"callpipe", "batch", "completed"},
	}
}

func stringValue(p Payload, key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intValue(p Payload, key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
