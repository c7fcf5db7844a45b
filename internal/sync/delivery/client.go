// Package delivery posts queued completions to the job-tracking backend.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kimhsiao/fieldsync/backend/internal/errors"
	"github.com/kimhsiao/fieldsync/backend/internal/models"
)

// Deliverer sends one queued submission to the remote completion endpoint.
// A nil error means the backend acknowledged the completion.
type Deliverer interface {
	Deliver(ctx context.Context, sub *models.QueuedSubmission) error
}

// Config holds delivery client settings.
type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
	// RatePerSecond paces outgoing requests; 0 disables pacing.
	RatePerSecond float64
	UserAgent     string
}

// DefaultTimeout bounds a single request when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Client is the HTTP Deliverer.
type Client struct {
	base      *url.URL
	authToken string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

var _ Deliverer = (*Client)(nil)

// noRedirect makes every 3xx the final response. A followed redirect turns
// the POST into a GET on another resource, whose 2xx would be taken as an
// acknowledgment the backend never gave.
func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// NewClient creates a delivery client. httpClient may be nil. Redirects are
// never followed, also on an injected client, which is copied rather than
// modified.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.New(errors.ErrConfigInvalid, fmt.Sprintf("invalid backend base URL %q", cfg.BaseURL))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	} else {
		hc := *httpClient
		httpClient = &hc
	}
	httpClient.CheckRedirect = noRedirect

	c := &Client{
		base:      base,
		authToken: cfg.AuthToken,
		userAgent: cfg.UserAgent,
		http:      httpClient,
	}
	if c.userAgent == "" {
		c.userAgent = "fieldsync"
	}
	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return c, nil
}

// CompletionURL returns the endpoint that completes submissionID.
func (c *Client) CompletionURL(submissionID string) string {
	u := *c.base
	u.Path = c.base.Path + "/api/form-submissions/" + submissionID + "/complete"
	u.RawPath = c.base.EscapedPath() + "/api/form-submissions/" + url.PathEscape(submissionID) + "/complete"
	return u.String()
}

// Deliver POSTs the offline completion. 2xx is success; everything else,
// including 3xx, transport errors and timeouts, is a delivery error.
func (c *Client) Deliver(ctx context.Context, sub *models.QueuedSubmission) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Delivery("rate limiter wait", 0, err)
		}
	}

	body, err := json.Marshal(sub.CompletionPayload())
	if err != nil {
		return errors.Delivery("encode completion", 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.CompletionURL(sub.SubmissionID), bytes.NewReader(body))
	if err != nil {
		return errors.Delivery("build request", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Offline-Queue-Id", sub.ID)
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Delivery("post completion", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Delivery(
			fmt.Sprintf("backend returned %d", resp.StatusCode),
			resp.StatusCode,
			fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
		)
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Ping checks that the backend health endpoint answers 2xx.
func (c *Client) Ping(ctx context.Context) error {
	u := *c.base
	u.Path = u.Path + "/api/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Delivery("build health request", 0, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Delivery("health check", 0, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Delivery(fmt.Sprintf("health check returned %d", resp.StatusCode), resp.StatusCode, nil)
	}
	return nil
}
