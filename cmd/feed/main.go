package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"dashfeed/internal/api"
	"dashfeed/internal/awsutil"
	"dashfeed/internal/config"
	"dashfeed/internal/domain"
	"dashfeed/internal/httpapi"
	"dashfeed/internal/logging"
	"dashfeed/internal/observability"
	sqsqueue "dashfeed/internal/queue/sqs"
	"dashfeed/internal/realtime"
	"dashfeed/internal/token"
	"dashfeed/internal/tracker"
	"dashfeed/internal/util"
)

func main() {
	cfg := config.LoadFeed()
	logging.Init("feed", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observability.Register(prometheus.DefaultRegisterer)

	tokens := &token.CookieFile{
		Path:   cfg.CookieFile,
		Name:   cfg.CookieName,
		Domain: cfg.CookieDomain,
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.APIRPS), cfg.APIBurst)
	var breaker *gobreaker.CircuitBreaker
	if cfg.BreakerEnabled {
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "backend-api",
			MaxRequests: 3,
			Timeout:     20 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
		})
	}

	backend := &api.Client{
		BaseURL: cfg.APIBaseURL,
		Tokens:  tokens,
		// no per-request timeout: long list calls are allowed to take
		// their time, cancellation comes from ctx
		HTTP:    &http.Client{},
		Limiter: limiter,
		Breaker: breaker,
	}

	notifications := tracker.NewNotifications(backend)

	// optional push-event export
	var exporter *sqsqueue.Exporter
	if cfg.SQSQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("feed sqs client init failed", "err", err)
			os.Exit(1)
		}
		exporter = &sqsqueue.Exporter{SQS: sqsClient, QueueURL: cfg.SQSQueueURL}
	}

	sessionID := util.NewSessionID()
	push := realtime.New(realtime.Options{
		URL:            cfg.PushURL,
		Tokens:         tokens,
		ReconnectDelay: time.Duration(cfg.ReconnectDelayMs) * time.Millisecond,
		MaxAttempts:    cfg.MaxReconnectAttempts,
		Handlers: realtime.Handlers{
			OnNotification: notifications.ApplyPush,
			OnUnreadCount:  notifications.SetUnread,
			OnMessage: func(msg domain.Message) {
				if exporter == nil {
					return
				}
				receivedAt := util.NowUTC()
				go func() {
					exportCtx, exportCancel := context.WithTimeout(ctx, 5*time.Second)
					defer exportCancel()
					if err := exporter.Export(exportCtx, msg, receivedAt); err != nil {
						observability.Exports.WithLabelValues("error").Inc()
						slog.Warn("push event export failed", "err", err, "type", msg.Type)
						return
					}
					observability.Exports.WithLabelValues("ok").Inc()
				}()
			},
		},
		OnStateChange: func(s realtime.State) {
			slog.Info("push connection state", "state", s, "session_id", sessionID)
		},
	})

	campaigns := tracker.NewCampaigns(push, func(c domain.Campaign) {
		slog.Debug("campaign updated",
			"campaign_id", c.ID,
			"status", c.Status,
			"sent", c.StatsSent,
			"delivered", c.StatsDelivered,
		)
	})
	defer campaigns.Close()

	// initial state; persistent failures leave stale (empty) data visible and
	// the daemon keeps running, matching how the dashboard shows an inline error
	if err := withRetry(ctx, func() error { return notifications.Load(ctx) }); err != nil {
		slog.Error("initial notification load failed", "err", err)
	}
	if err := withRetry(ctx, func() error {
		list, err := backend.ListCampaigns(ctx)
		if err != nil {
			return err
		}
		campaigns.Reset(list)
		return nil
	}); err != nil {
		slog.Error("initial campaign load failed", "err", err)
	}

	if err := push.Connect(); err != nil {
		slog.Error("push connect refused", "err", err)
	}
	defer push.Close()

	s := httpapi.New()
	// Metrics must run inside the router so the endpoint label carries the
	// route template instead of per-id request paths.
	s.Mux.Use(httpapi.Metrics(observability.LocalRequests))
	local := &httpapi.API{
		Notifications: notifications,
		Campaigns:     campaigns,
		Push:          push,
	}
	local.Register(s.Mux)
	s.Mux.HandleFunc("/healthz", httpapi.Healthz())
	s.Mux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second, func(c context.Context) error {
		_, err := tokens.Token()
		return err
	}))

	handler := httpapi.Logging(s.Mux)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("feed shutdown", "signal", sig.String())
		push.Close()
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("feed listening", "port", cfg.Port, "session_id", sessionID)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("feed server failed", "err", err)
		os.Exit(1)
	}
}

func withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !api.ShouldRetry(lastErr) {
			return lastErr
		}
		time.Sleep(api.Backoff(attempt))
	}
	return lastErr
}
