package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"dashfeed/internal/token"
)

func newBackend(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{
		BaseURL: srv.URL,
		Tokens:  token.Static("tok"),
		HTTP:    srv.Client(),
	}, srv
}

func TestListNotificationsSendsBearer(t *testing.T) {
	var gotAuth, gotPath string
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"n1","is_read":false}]`))
	})

	items, err := c.ListNotifications(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != "n1" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("missing bearer header: %q", gotAuth)
	}
	if gotPath != "/api/notifications/" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
}

func TestUnreadCount(t *testing.T) {
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":4}`))
	})
	n, err := c.UnreadCount(context.Background())
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4, got %d", n)
	}
}

func TestMutationPathsAndMethods(t *testing.T) {
	type call struct{ method, path string }
	var calls []call
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path})
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := context.Background()
	if err := c.MarkRead(ctx, "n1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := c.MarkAllRead(ctx); err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if err := c.DeleteNotification(ctx, "n1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.TestPush(ctx); err != nil {
		t.Fatalf("test push: %v", err)
	}

	want := []call{
		{http.MethodPost, "/api/notifications/n1/read/"},
		{http.MethodPost, "/api/notifications/read-all/"},
		{http.MethodDelete, "/api/notifications/n1/"},
		{http.MethodPost, "/api/push/test/"},
	}
	if len(calls) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(calls))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: got %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestAPIErrorOnNon2xx(t *testing.T) {
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	err := c.MarkRead(context.Background(), "n1")
	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if ae.Status != http.StatusForbidden || ae.Op != "mark_read" {
		t.Fatalf("unexpected APIError: %+v", ae)
	}
}

func TestMissingCredentialFailsCall(t *testing.T) {
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("call reached backend without credential")
	})
	c.Tokens = token.Static("")

	if err := c.MarkAllRead(context.Background()); !errors.Is(err, token.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	c.Breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "test",
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 3 },
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := c.MarkAllRead(ctx); err == nil {
			t.Fatalf("expected failure %d", i)
		}
	}

	err := c.MarkAllRead(ctx)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected breaker open, got %v", err)
	}
}

func TestSubscribePushBody(t *testing.T) {
	var gotCT string
	var gotBody []byte
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	})

	reg := PushRegistration{Endpoint: "https://push.example/ep", P256dhKey: "p", AuthKey: "a"}
	if err := c.SubscribePush(context.Background(), reg); err != nil {
		t.Fatalf("subscribe push: %v", err)
	}
	if gotCT != "application/json" {
		t.Fatalf("missing content type: %q", gotCT)
	}
	if len(gotBody) == 0 {
		t.Fatalf("empty body")
	}
}

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"breaker open", gobreaker.ErrOpenState, false},
		{"deadline", context.DeadlineExceeded, true},
		{"http 500", &APIError{Status: 500}, true},
		{"http 429", &APIError{Status: 429}, true},
		{"http 403", &APIError{Status: 403}, false},
		{"http 404", &APIError{Status: 404}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldRetry(tc.err); got != tc.want {
				t.Fatalf("ShouldRetry(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
