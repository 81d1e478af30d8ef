// Package api is the source adapter for the skywatch backend.
//
// Every method performs exactly one HTTP request and returns either a
// typed result or an *Error. The client holds no state besides its
// transport and rate limiter.
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

	"golang.org/x/time/rate"

	"github.com/abelbrown/skywatch/internal/logging"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 << 20

// Kind classifies an adapter failure.
type Kind string

const (
	KindNetwork Kind = "network"
	KindStatus  Kind = "status"
	KindDecode  Kind = "decode"
)

// Error is the typed failure returned by every Client method.
type Error struct {
	Op     string // "iss", "observations", "alerts.seen", ...
	Kind   Kind
	Status int // HTTP status for KindStatus
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("api %s: HTTP %d: %v", e.Op, e.Status, e.Err)
	default:
		return fmt.Sprintf("api %s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a failure worth waiting out:
// network errors, 429, and 5xx responses.
func IsTransient(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case KindNetwork:
		return true
	case KindStatus:
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	return false
}

// Client calls the skywatch backend.
type Client struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the per-request timeout. A client passed through
// WithHTTPClient is copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.client
		hc.Timeout = d
		c.client = &hc
	}
}

// WithRateLimit caps outgoing requests. perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// New creates a Client for the backend rooted at baseURL
// (e.g. "http://localhost:8000/api").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Inf, 0),
		userAgent: "skywatch/0.1",
		log:       logging.WithPrefix("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ISSPosition fetches the current spacecraft position.
func (c *Client) ISSPosition(ctx context.Context) (ISSPosition, error) {
	var pos ISSPosition
	err := c.do(ctx, "iss", http.MethodGet, "/iss-tracking", nil, nil, &pos)
	return pos, err
}

// TelescopeStatus fetches the live status of one telescope.
func (c *Client) TelescopeStatus(ctx context.Context, t Telescope) (TelescopeStatus, error) {
	var st TelescopeStatus
	path := "/telescopes/" + url.PathEscape(string(t)) + "/status"
	err := c.do(ctx, "telescope.status", http.MethodGet, path, nil, nil, &st)
	return st, err
}

// Observations fetches one page of a telescope's observation feed.
func (c *Client) Observations(ctx context.Context, t Telescope, q ObservationQuery) (ObservationPage, error) {
	params := url.Values{}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}

	var page ObservationPage
	path := "/telescopes/" + url.PathEscape(string(t)) + "/observations"
	if err := c.do(ctx, "observations", http.MethodGet, path, params, nil, &page); err != nil {
		return ObservationPage{}, err
	}
	for i := range page.Observations {
		if page.Observations[i].Telescope == "" {
			page.Observations[i].Telescope = t
		}
	}
	return page, nil
}

// Analytics fetches the analytics overview.
func (c *Client) Analytics(ctx context.Context) (AnalyticsOverview, error) {
	var a AnalyticsOverview
	err := c.do(ctx, "analytics", http.MethodGet, "/analytics/overview", nil, nil, &a)
	return a, err
}

// Alerts lists insight alerts.
func (c *Client) Alerts(ctx context.Context, q AlertQuery) ([]Alert, error) {
	params := url.Values{}
	params.Set("unread_only", strconv.FormatBool(q.UnreadOnly))
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var list alertList
	if err := c.do(ctx, "alerts", http.MethodGet, "/intelligence/alerts", params, nil, &list); err != nil {
		return nil, err
	}
	return list.Alerts, nil
}

// MarkAlertSeen acknowledges an alert.
func (c *Client) MarkAlertSeen(ctx context.Context, id string) error {
	path := "/intelligence/alerts/" + url.PathEscape(id) + "/seen"
	return c.do(ctx, "alerts.seen", http.MethodPut, path, nil, nil, nil)
}

// Chat sends one conversation turn.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	if req.ConversationHistory == nil {
		req.ConversationHistory = []ChatMessage{}
	}
	var reply ChatReply
	err := c.do(ctx, "chat", http.MethodPost, "/intelligence/chat", nil, req, &reply)
	return reply, err
}

// ChatSuggestions fetches suggested opening questions.
func (c *Client) ChatSuggestions(ctx context.Context) ([]string, error) {
	var list suggestionList
	if err := c.do(ctx, "chat.suggestions", http.MethodGet, "/intelligence/chat/suggestions", nil, nil, &list); err != nil {
		return nil, err
	}
	return list.Suggestions, nil
}

// SpaceWeather fetches current space-weather notices.
func (c *Client) SpaceWeather(ctx context.Context) ([]SpaceWeatherAlert, error) {
	var alerts []SpaceWeatherAlert
	err := c.do(ctx, "space_weather", http.MethodGet, "/space-weather", nil, nil, &alerts)
	return alerts, err
}

// do performs one request. body (if non-nil) is sent as JSON; out (if
// non-nil) receives the decoded response.
func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &Error{Op: op, Kind: KindNetwork, Err: fmt.Errorf("rate limiter wait: %w", err)}
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Kind: KindDecode, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Err: fmt.Errorf("read response: %w", err)}
	}

	c.log.Debug("request", "op", op, "method", method, "path", path, "status", resp.StatusCode, "dur", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: op, Kind: KindStatus, Status: resp.StatusCode, Err: errors.New(statusDetail(data))}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, Kind: KindDecode, Err: err}
	}
	return nil
}

// statusDetail extracts a FastAPI-style {"detail": "..."} message, falling
// back to a truncated body.
func statusDetail(body []byte) string {
	var d struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &d) == nil && d.Detail != "" {
		return d.Detail
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
