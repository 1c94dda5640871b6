package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"callpipe/internal/config"
	"callpipe/internal/services"
)

const stageName = "poll"

// Remote stage names reported by the processing endpoint.
const (
	StageQueued       = "queued"
	StageProcessing   = "processing"
	StageTranscribing = "transcribing"
	StageAnalyzing    = "analyzing"
	StageCompleted    = "completed"
	StageFailed       = "failed"
)

// HTTPDoer describes the HTTP client used by the processing client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Status is one status report for a remote artifact.
type Status struct {
	Stage    string
	Progress *float64
	Error    string
}

// StatusSource is the contract consumed by the poller.
type StatusSource interface {
	GetStatus(ctx context.Context, remoteID string) (Status, error)
}

// Client queries the processing-status endpoint.
type Client struct {
	baseURL string
	token   string
	client  HTTPDoer
}

// NewClient constructs a processing client. Timeouts are enforced per query by
// the caller's context.
func NewClient(baseURL, token string, doer HTTPDoer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  doer,
	}
}

// NewFromConfig builds a client from the [processing] section.
func NewFromConfig(cfg *config.Config) *Client {
	return NewClient(cfg.Processing.BaseURL, cfg.Processing.APIToken, nil)
}

// BaseURL returns the endpoint root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetStatus fetches {base}/api/v1/files/{remoteID}/status.
func (c *Client) GetStatus(ctx context.Context, remoteID string) (Status, error) {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return Status{}, services.Wrap(services.ErrValidation, stageName, "get status", "remote artifact id is required", nil)
	}
	endpoint := fmt.Sprintf("%s/api/v1/files/%s/status", c.baseURL, url.PathEscape(remoteID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Status{}, services.Wrap(services.ErrConfiguration, stageName, "build request", "", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Status{}, services.Wrap(services.ErrTimeout, stageName, "get status", remoteID, err)
		}
		return Status{}, services.Wrap(services.ErrTransient, stageName, "get status", remoteID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("processing returned %d", resp.StatusCode)
		if detail := services.ResponseDetail(resp.Body); detail != "" {
			msg += ": " + detail
		}
		if resp.StatusCode == http.StatusNotFound {
			return Status{}, services.Wrap(services.ErrNotFound, stageName, "get status", msg, nil)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return Status{}, services.Wrap(services.ErrTransient, stageName, "get status", msg, nil)
		}
		return Status{}, services.Wrap(services.ErrExternal, stageName, "get status", msg, nil)
	}

	var payload struct {
		Stage    string   `json:"stage"`
		Status   string   `json:"status"`
		Progress *float64 `json:"progress"`
		Percent  *float64 `json:"progress_percent"`
		Error    string   `json:"error"`
		Message  string   `json:"error_message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return Status{}, services.Wrap(services.ErrExternal, stageName, "decode response", "", err)
	}
	status := Status{
		Stage:    strings.ToLower(strings.TrimSpace(payload.Stage)),
		Progress: payload.Progress,
		Error:    strings.TrimSpace(payload.Error),
	}
	if status.Stage == "" {
		status.Stage = strings.ToLower(strings.TrimSpace(payload.Status))
	}
	if status.Progress == nil {
		status.Progress = payload.Percent
	}
	if status.Error == "" {
		status.Error = strings.TrimSpace(payload.Message)
	}
	if status.Stage == "" {
		return Status{}, services.Wrap(services.ErrExternal, stageName, "decode response", "response did not include a stage", nil)
	}
	return status, nil
}

var _ StatusSource = (*Client)(nil)
