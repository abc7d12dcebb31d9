package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsLabelsUseRouteTemplate(t *testing.T) {
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_local_requests_total"},
		[]string{"endpoint", "status"},
	)

	// Registered on the router, the way cmd/feed wires it. CurrentRoute
	// only resolves inside the router's handler chain, so wrapping the
	// router from outside would fall back to raw request paths and mint a
	// series per notification id.
	r := mux.NewRouter()
	r.Use(Metrics(counter))
	r.HandleFunc("/v1/notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodPost)

	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/01JABCDEF/read", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("/v1/notifications/{id}/read", "200")); got != 1 {
		t.Fatalf("route template series not incremented: %v", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("/v1/notifications/01JABCDEF/read", "200")); got != 0 {
		t.Fatalf("raw path minted its own series: %v", got)
	}
}
