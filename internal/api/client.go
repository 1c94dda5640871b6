package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"callpipe/internal/metrics"
)

// ErrUnavailable is returned when the daemon cannot be reached.
var ErrUnavailable = errors.New("daemon unavailable")

// APIError carries a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Event is a decoded websocket message. Task is set for task events and
// Batch for batch.finished.
type Event struct {
	Type  string
	Task  *Task
	Batch *BatchFinished
}

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the daemon listening on bind (host:port or a
// full URL). A non-empty token is sent as a bearer credential.
func NewClient(bind, token string, timeout time.Duration) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: base, token: strings.TrimSpace(token), http: &http.Client{Timeout: timeout}}
}

// BaseURL returns the daemon URL the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit creates one task per path.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var resp SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/tasks", req, &resp)
	return resp, err
}

// ListTasks returns every task with the aggregate summary.
func (c *Client) ListTasks(ctx context.Context) (TaskListResponse, error) {
	var resp TaskListResponse
	err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &resp)
	return resp, err
}

// GetTask returns one task.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp TaskResponse
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &resp)
	return resp.Task, err
}

// Pause pauses an in-flight transfer.
func (c *Client) Pause(ctx context.Context, id string) (Task, error) {
	return c.action(ctx, id, "pause")
}

// Resume continues a paused transfer.
func (c *Client) Resume(ctx context.Context, id string) (Task, error) {
	return c.action(ctx, id, "resume")
}

// Cancel stops a task.
func (c *Client) Cancel(ctx context.Context, id string) (Task, error) {
	return c.action(ctx, id, "cancel")
}

// Retry restarts a task whose transfer failed.
func (c *Client) Retry(ctx context.Context, id string) (Task, error) {
	return c.action(ctx, id, "retry")
}

// Clear removes finished tasks, or every task when all is set.
func (c *Client) Clear(ctx context.Context, all bool) (int64, error) {
	scope := "completed"
	if all {
		scope = "all"
	}
	var resp ClearResponse
	err := c.do(ctx, http.MethodDelete, "/api/tasks?scope="+scope, nil, &resp)
	return resp.Removed, err
}

// Progress returns the global progress view.
func (c *Client) Progress(ctx context.Context) (ProgressResponse, error) {
	var resp ProgressResponse
	err := c.do(ctx, http.MethodGet, "/api/progress", nil, &resp)
	return resp, err
}

// History returns recorded attempts, most recent first. Empty status and
// zero limit apply no filter.
func (c *Client) History(ctx context.Context, status string, limit int) ([]HistoryEntry, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/history"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var resp HistoryResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Entries, err
}

// ClearHistory deletes all recorded attempts.
func (c *Client) ClearHistory(ctx context.Context) (int64, error) {
	var resp ClearResponse
	err := c.do(ctx, http.MethodDelete, "/api/history", nil, &resp)
	return resp.Removed, err
}

// Status returns daemon runtime information.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp)
	return resp, err
}

// Metrics returns the current metric samples.
func (c *Client) Metrics(ctx context.Context) ([]metrics.Sample, error) {
	var resp MetricsResponse
	err := c.do(ctx, http.MethodGet, "/api/metrics", nil, &resp)
	return resp.Metrics, err
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (NotificationTestResponse, error) {
	var resp NotificationTestResponse
	err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &resp)
	return resp, err
}

// StreamEvents subscribes to live events and calls fn for each one until ctx
// ends, the daemon closes the stream, or fn returns an error.
func (c *Client) StreamEvents(ctx context.Context, fn func(Event) error) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/events"
	var opts *websocket.DialOptions
	if c.token != "" {
		opts = &websocket.DialOptions{HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.token}}}
	}
	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		ev, err := decodeEvent(data)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return err
		}
	}
}

func decodeEvent(data []byte) (Event, error) {
	var raw struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	ev := Event{Type: raw.Type}
	switch raw.Type {
	case EventTypeTaskUpdated, EventTypeTaskRemoved:
		var task Task
		if err := json.Unmarshal(raw.Payload, &task); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", raw.Type, err)
		}
		ev.Task = &task
	case EventTypeBatchFinished:
		var batch BatchFinished
		if err := json.Unmarshal(raw.Payload, &batch); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", raw.Type, err)
		}
		ev.Batch = &batch
	}
	return ev, nil
}

func (c *Client) action(ctx context.Context, id, action string) (Task, error) {
	var resp TaskResponse
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/"+action, nil, &resp)
	return resp.Task, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var payload errorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
