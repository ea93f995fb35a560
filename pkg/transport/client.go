package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/bearer"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

const (
	maxBodySize  = 8 << 20
	maxErrorBody = 64 << 10
)

// Client is a stateless wrapper around the notification REST API. Each
// method performs exactly one round-trip and never retries or touches the
// store; callers compose results with store mutations themselves.
type Client struct {
	base      *url.URL
	http      *http.Client
	timeout   time.Duration
	tokens    bearer.Accessor
	paths     Paths
	logger    *slog.Logger
	recorder  Recorder
	userAgent string
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, tokens bearer.Accessor, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %w", ErrInvalidRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: base url must be http or https", ErrInvalidRequest)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: base url host is required", ErrInvalidRequest)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: token accessor is required", ErrInvalidRequest)
	}

	c := &Client{
		base: u,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:   10 * time.Second,
		tokens:    tokens,
		paths:     DefaultPaths(),
		logger:    slog.Default(),
		userAgent: "notifykit/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SendRequest is the payload for admin fan-out creation.
type SendRequest struct {
	Title             string                 `json:"title"`
	Message           string                 `json:"message"`
	Type              notifications.Type     `json:"type"`
	Priority          notifications.Priority `json:"priority"`
	RelatedEntityType string                 `json:"relatedEntityType,omitempty"`
	RelatedEntityID   string                 `json:"relatedEntityId,omitempty"`
}

func (r SendRequest) validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	return nil
}

// FetchAll returns every notification of the authenticated user in server order.
func (c *Client) FetchAll(ctx context.Context) ([]notifications.Notification, error) {
	return c.fetchList(ctx, "fetch_all", c.paths.All)
}

// FetchUnread returns the unread notifications of the authenticated user.
func (c *Client) FetchUnread(ctx context.Context) ([]notifications.Notification, error) {
	return c.fetchList(ctx, "fetch_unread", c.paths.Unread)
}

// FetchUnreadCount returns the server's unread count. Both a bare integer
// and an object with a count field are accepted.
func (c *Client) FetchUnreadCount(ctx context.Context) (int, error) {
	const op = "fetch_unread_count"
	raw, err := c.do(ctx, op, http.MethodGet, c.paths.UnreadCount, nil)
	if err != nil {
		return 0, err
	}
	n, err := decodeCount(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, op, err)
	}
	return n, nil
}

// MarkAllRead marks every notification read on the server. Calling it with
// nothing unread succeeds.
func (c *Client) MarkAllRead(ctx context.Context) error {
	_, err := c.do(ctx, "mark_all_read", http.MethodPut, c.paths.MarkAllRead, nil)
	return err
}

// MarkRead marks one notification read on the server.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	_, err := c.do(ctx, "mark_read", http.MethodPut, expand(c.paths.MarkRead, "{id}", id), nil)
	return err
}

// Delete deletes one notification on the server.
func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	_, err := c.do(ctx, "delete", http.MethodDelete, expand(c.paths.Delete, "{id}", id), nil)
	return err
}

// SendToUser creates a notification for one user. Admin only.
func (c *Client) SendToUser(ctx context.Context, userID string, req SendRequest) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if err := req.validate(); err != nil {
		return err
	}
	_, err := c.do(ctx, "send_to_user", http.MethodPost, expand(c.paths.SendToUser, "{userId}", userID), req)
	return err
}

// SendToAdmins creates a notification for every admin. Admin only.
func (c *Client) SendToAdmins(ctx context.Context, req SendRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	_, err := c.do(ctx, "send_to_admins", http.MethodPost, c.paths.SendToAdmin, req)
	return err
}

func (c *Client) fetchList(ctx context.Context, op, path string) ([]notifications.Notification, error) {
	raw, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	list, err := decodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, op, err)
	}
	return list, nil
}

// do performs one request and returns the unwrapped response data.
func (c *Client) do(ctx context.Context, op, method, path string, body any) (json.RawMessage, error) {
	start := time.Now()
	status := 0
	raw, err := c.roundTrip(ctx, op, method, path, body, &status)

	elapsed := time.Since(start)
	if c.recorder != nil {
		c.recorder.ObserveRequest(op, status, elapsed, err)
	}
	if err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "notification api request failed",
			logger.Operation(op),
			slog.Int("status", status),
			logger.Duration(elapsed),
			logger.Error(err),
		)
		return nil, err
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "notification api request",
		logger.Operation(op),
		slog.Int("status", status),
		logger.Duration(elapsed),
	)
	return raw, nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body any, status *int) (json.RawMessage, error) {
	token, ok := c.tokens.Token()
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNoToken)
	}

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRequest, op, err)
		}
		payload = bytes.NewReader(b)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.base.String()+path, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRequest, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNetwork, op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	*status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: sanitize(b)}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading body: %w", ErrNetwork, op, err)
	}
	return unwrap(op, b)
}

// unwrap strips a {"success":..,"data":..} envelope if present.
// An empty body yields nil data.
func unwrap(op string, b []byte) (json.RawMessage, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return b, nil
	}
	fields, err := notifications.DecodeFields(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, op, err)
	}
	if v, ok := fields["success"]; ok {
		var success bool
		if json.Unmarshal(v, &success) == nil && !success {
			msg := fields.String("message", "error")
			return nil, fmt.Errorf("%w: %s: %s", ErrRejected, op, msg)
		}
	}
	if data, ok := fields.Lookup("data"); ok {
		return data, nil
	}
	if _, ok := fields["data"]; ok {
		// "data": null
		return nil, nil
	}
	return b, nil
}

func decodeList(raw json.RawMessage) ([]notifications.Notification, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []notifications.Notification{}, nil
	}
	if raw[0] == '{' {
		fields, err := notifications.DecodeFields(raw)
		if err != nil {
			return nil, err
		}
		inner, ok := fields.Lookup("items", "notifications")
		if !ok {
			return nil, errors.New("object without items")
		}
		raw = inner
	}
	return notifications.DecodeList(raw)
}

func decodeCount(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, errors.New("empty body")
	}
	if raw[0] == '{' {
		fields, err := notifications.DecodeFields(raw)
		if err != nil {
			return 0, err
		}
		inner, ok := fields.Lookup("count", "unreadCount")
		if !ok {
			return 0, errors.New("object without count")
		}
		raw = inner
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}

func expand(path, param, value string) string {
	return strings.ReplaceAll(path, param, url.PathEscape(value))
}

func sanitize(b []byte) string {
	s := strings.TrimSpace(strings.ReplaceAll(string(b), "\n", " "))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
