package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"dashfeed/internal/domain"
	"dashfeed/internal/observability"
	"dashfeed/internal/token"
)

// Client talks to the campaign platform's REST API on behalf of the feed.
// Backend calls are rate limited and routed through a circuit breaker so a
// struggling backend fails fast instead of piling up requests.
type Client struct {
	BaseURL string
	Tokens  token.Source
	HTTP    *http.Client
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Body)
}

type countResponse struct {
	Count int `json:"count"`
}

// PushRegistration is a browser-push subscription registered with the
// backend (spec'd by the platform; the feed only ferries it).
type PushRegistration struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dh_key"`
	AuthKey   string `json:"auth_key"`
	Device    string `json:"device,omitempty"`
}

func (c *Client) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	var out []domain.Notification
	err := c.do(ctx, "list_notifications", http.MethodGet, "/api/notifications/", nil, &out)
	return out, err
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out countResponse
	if err := c.do(ctx, "unread_count", http.MethodGet, "/api/notifications/unread-count/", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, "mark_read", http.MethodPost, "/api/notifications/"+id+"/read/", nil, nil)
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, "mark_all_read", http.MethodPost, "/api/notifications/read-all/", nil, nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, "delete_notification", http.MethodDelete, "/api/notifications/"+id+"/", nil, nil)
}

func (c *Client) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	var out []domain.Campaign
	err := c.do(ctx, "list_campaigns", http.MethodGet, "/api/campaigns/", nil, &out)
	return out, err
}

func (c *Client) SubscribePush(ctx context.Context, reg PushRegistration) error {
	return c.do(ctx, "subscribe_push", http.MethodPost, "/api/push/subscribe/", reg, nil)
}

func (c *Client) UnsubscribePush(ctx context.Context, endpoint string) error {
	body := map[string]string{"endpoint": endpoint}
	return c.do(ctx, "unsubscribe_push", http.MethodPost, "/api/push/unsubscribe/", body, nil)
}

func (c *Client) TestPush(ctx context.Context) error {
	return c.do(ctx, "test_push", http.MethodPost, "/api/push/test/", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			observability.APICalls.WithLabelValues(op, "rate_limited").Inc()
			return err
		}
	}

	call := func() (any, error) {
		return nil, c.roundTrip(ctx, op, method, path, body, out)
	}

	start := time.Now()
	var err error
	if c.Breaker != nil {
		_, err = c.Breaker.Execute(call)
	} else {
		_, err = call()
	}
	observability.APILatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		observability.APICalls.WithLabelValues(op, "ok").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		observability.APICalls.WithLabelValues(op, "breaker_open").Inc()
	default:
		observability.APICalls.WithLabelValues(op, "error").Inc()
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body, out any) error {
	tok, err := c.Tokens.Token()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

// ShouldRetry reports whether a failed call is worth retrying right away.
// Breaker-open errors are excluded on purpose: the breaker already decided.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusTooManyRequests || ae.Status == http.StatusRequestTimeout ||
			(ae.Status >= 500 && ae.Status <= 599)
	}
	return false
}

func Backoff(attempt int) time.Duration {
	base := []time.Duration{200 * time.Millisecond, 600 * time.Millisecond, 1400 * time.Millisecond}
	if attempt <= 0 {
		return base[0]
	}
	if attempt >= len(base) {
		return base[len(base)-1]
	}
	return base[attempt]
}
