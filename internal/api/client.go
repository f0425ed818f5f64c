package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oshiro-ai/hotaru/internal/model"
	"github.com/oshiro-ai/hotaru/internal/telemetry"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the dashboard API (e.g. "http://localhost:8080").
	BaseURL string

	// Token is an opaque bearer token forwarded on every request. The client
	// never inspects or validates it.
	Token string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to the default HTTP client only. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client fetches emission and notification snapshots and issues the
// best-effort notification mutations. All methods are safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  httpClient,
	}, nil
}

// EmissionQuery scopes a RecentEmissions snapshot. Empty fields are omitted
// from the request.
type EmissionQuery struct {
	OrgID     string
	ProjectID string
	IssueID   string
	SourceID  string
	Limit     int
}

// RecentEmissions fetches a point-in-time snapshot of emissions. Individual
// records that fail validation are dropped (and counted), never fatal: one
// malformed producer must not blank the whole feed.
func (c *Client) RecentEmissions(ctx context.Context, q EmissionQuery) ([]model.Emission, error) {
	params := url.Values{}
	params.Set("org_id", q.OrgID)
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.ProjectID != "" {
		params.Set("project_id", q.ProjectID)
	}
	if q.IssueID != "" {
		params.Set("issue_id", q.IssueID)
	}
	if q.SourceID != "" {
		params.Set("source_id", q.SourceID)
	}

	var body struct {
		Items []any `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/emissions/recent?"+params.Encode(), &body); err != nil {
		return nil, err
	}
	emissions, dropped := model.ParseEmissions(body.Items)
	for reason, n := range dropped {
		telemetry.RecordDropped(ctx, "emission", reason, int64(n))
	}
	return emissions, nil
}

// Notifications fetches the notification snapshot. Invalid records are
// dropped and counted, same policy as RecentEmissions.
func (c *Client) Notifications(ctx context.Context) ([]model.Notification, error) {
	var body []any
	if err := c.getJSON(ctx, "/api/notifications", &body); err != nil {
		return nil, err
	}
	notifications, dropped := model.ParseNotifications(body)
	for reason, n := range dropped {
		telemetry.RecordDropped(ctx, "notification", reason, int64(n))
	}
	return notifications, nil
}

// MarkNotificationRead marks one notification read on the server.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read")
}

// MarkNotificationUnread marks one notification unread on the server.
func (c *Client) MarkNotificationUnread(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/unread")
}

// MarkAllNotificationsRead marks every notification read on the server.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/api/notifications/read-all")
}

// DeleteNotification deletes one notification on the server.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/api/notifications/"+url.PathEscape(id))
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.errorFrom(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("api: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// errorFrom builds an *Error from a non-success response, preferring the
// server's own {"error": "..."} message when the body carries one.
func (c *Client) errorFrom(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Message = envelope.Error
	}
	return apiErr
}
