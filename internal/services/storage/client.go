package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"

	"callpipe/internal/config"
	"callpipe/internal/services"
)

const stageName = "transfer"

// HTTPDoer describes the HTTP client used by the storage client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// UploadRequest describes one artifact upload. Body is read exactly once.
type UploadRequest struct {
	Destination string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
	Fields      map[string]string
}

// UploadResult carries the identifier the remote service assigned.
type UploadResult struct {
	RemoteID string
}

// Uploader is the storage contract consumed by the transfer channel.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (UploadResult, error)
}

// Client talks to the storage endpoint over HTTP.
type Client struct {
	baseURL string
	token   string
	client  HTTPDoer
}

// NewClient constructs a storage client. A nil doer uses a client without an
// overall timeout since uploads of large files can legitimately run for hours.
func NewClient(baseURL, token string, doer HTTPDoer) *Client {
	if doer == nil {
		doer = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  doer,
	}
}

// NewFromConfig builds a client from the [storage] section.
func NewFromConfig(cfg *config.Config) *Client {
	return NewClient(cfg.Storage.BaseURL, cfg.Storage.APIToken, nil)
}

// BaseURL returns the endpoint root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Upload streams the artifact to {base}/api/v1/projects/{destination}/files.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if strings.TrimSpace(req.Destination) == "" {
		return UploadResult{}, services.Wrap(services.ErrValidation, stageName, "upload", "destination is required", nil)
	}
	if req.Body == nil {
		return UploadResult{}, services.Wrap(services.ErrValidation, stageName, "upload", "body is required", nil)
	}
	endpoint := fmt.Sprintf("%s/api/v1/projects/%s/files", c.baseURL, url.PathEscape(req.Destination))

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, req))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return UploadResult{}, services.Wrap(services.ErrConfiguration, stageName, "build request", "", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return UploadResult{}, ctxErr
		}
		return UploadResult{}, services.Wrap(services.ErrTransient, stageName, "upload", req.FileName, err)
	}
	defer resp.Body.Close()

	if err := classifyResponse(resp); err != nil {
		return UploadResult{}, err
	}

	var payload struct {
		ID     string `json:"id"`
		FileID string `json:"file_id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return UploadResult{}, services.Wrap(services.ErrExternal, stageName, "decode response", "", err)
	}
	remoteID := strings.TrimSpace(payload.ID)
	if remoteID == "" {
		remoteID = strings.TrimSpace(payload.FileID)
	}
	if remoteID == "" {
		return UploadResult{}, services.Wrap(services.ErrExternal, stageName, "decode response", "response did not include an artifact id", nil)
	}
	return UploadResult{RemoteID: remoteID}, nil
}

func writeMultipart(mw *multipart.Writer, req UploadRequest) error {
	keys := make([]string, 0, len(req.Fields))
	for k := range req.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, req.Fields[k]); err != nil {
			return err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.FileName))
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, req.Body); err != nil {
		return err
	}
	return mw.Close()
}

func classifyResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	detail := services.ResponseDetail(resp.Body)
	msg := fmt.Sprintf("storage returned %d", resp.StatusCode)
	if detail != "" {
		msg += ": " + detail
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, stageName, "upload", msg, nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, stageName, "upload", msg, nil)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, stageName, "upload", msg, nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return services.Wrap(services.ErrValidation, stageName, "upload", msg, nil)
	default:
		return services.Wrap(services.ErrTransient, stageName, "upload", msg, nil)
	}
}

// CheckDestination confirms the destination project exists on the storage endpoint.
func (c *Client) CheckDestination(ctx context.Context, destination string) error {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return services.Wrap(services.ErrValidation, stageName, "resolve destination", "destination is required", nil)
	}
	endpoint := fmt.Sprintf("%s/api/v1/projects/%s", c.baseURL, url.PathEscape(destination))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "build request", "", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "resolve destination", destination, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return services.Wrap(services.ErrNotFound, stageName, "resolve destination", fmt.Sprintf("project %q does not exist", destination), nil)
	}
	return classifyResponse(resp)
}

var _ Uploader = (*Client)(nil)
