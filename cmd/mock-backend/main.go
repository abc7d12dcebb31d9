package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"dashfeed/internal/config"
	"dashfeed/internal/domain"
	"dashfeed/internal/logging"
	"dashfeed/internal/util"
)

// A stand-in for the campaign platform: the REST endpoints the feed calls
// plus a /ws push endpoint with scripted traffic. Knobs control notification
// cadence, campaign update cadence, malformed frames, and a forced drop to
// exercise the feed's reconnect path.

type state struct {
	mu            sync.Mutex
	notifications []domain.Notification
	campaigns     []domain.Campaign
}

func (s *state) unread() int {
	n := 0
	for _, item := range s.notifications {
		if !item.IsRead {
			n++
		}
	}
	return n
}

func main() {
	cfg := config.LoadMockBackend()
	logging.Init("mock-backend", cfg.LogFormat, cfg.LogLevel)

	st := &state{}
	for i := 0; i < cfg.CampaignCount; i++ {
		st.campaigns = append(st.campaigns, domain.Campaign{
			ID:        util.NewSubscriptionID(),
			Name:      "Campaign " + string(rune('A'+i)),
			Status:    domain.CampaignScheduled,
			CreatedAt: util.NowUTC(),
			UpdatedAt: util.NowUTC(),
		})
	}

	r := mux.NewRouter()
	r.Use(authMiddleware(cfg.Token))

	r.HandleFunc("/api/notifications/", func(w http.ResponseWriter, r *http.Request) {
		st.mu.Lock()
		defer st.mu.Unlock()
		writeJSON(w, st.notifications)
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/notifications/unread-count/", func(w http.ResponseWriter, r *http.Request) {
		st.mu.Lock()
		defer st.mu.Unlock()
		writeJSON(w, map[string]int{"count": st.unread()})
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/notifications/read-all/", func(w http.ResponseWriter, r *http.Request) {
		st.mu.Lock()
		defer st.mu.Unlock()
		now := util.NowUTC()
		for i := range st.notifications {
			st.notifications[i].IsRead = true
			at := now
			st.notifications[i].ReadAt = &at
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/notifications/{id}/read/", func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		st.mu.Lock()
		defer st.mu.Unlock()
		for i := range st.notifications {
			if st.notifications[i].ID == id {
				now := util.NowUTC()
				st.notifications[i].IsRead = true
				st.notifications[i].ReadAt = &now
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		http.Error(w, "not found", http.StatusNotFound)
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/notifications/{id}/", func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		st.mu.Lock()
		defer st.mu.Unlock()
		for i := range st.notifications {
			if st.notifications[i].ID == id {
				st.notifications = append(st.notifications[:i], st.notifications[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		http.Error(w, "not found", http.StatusNotFound)
	}).Methods(http.MethodDelete)

	r.HandleFunc("/api/campaigns/", func(w http.ResponseWriter, r *http.Request) {
		st.mu.Lock()
		defer st.mu.Unlock()
		writeJSON(w, st.campaigns)
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/push/subscribe/", acceptJSON).Methods(http.MethodPost)
	r.HandleFunc("/api/push/unsubscribe/", acceptJSON).Methods(http.MethodPost)
	r.HandleFunc("/api/push/test/", acceptJSON).Methods(http.MethodPost)

	r.HandleFunc("/ws", pushHandler(cfg, st))

	slog.Info("mock backend listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		slog.Error("mock backend failed", "err", err)
	}
}

func authMiddleware(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ws" {
				if r.URL.Query().Get("token") != token {
					http.Error(w, "bad token", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != token {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func pushHandler(cfg config.MockBackendConfig, st *state) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("ws upgrade failed", "err", err)
			return
		}
		defer conn.Close()
		slog.Info("push client connected", "remote", r.RemoteAddr)

		notifyTick := time.NewTicker(time.Duration(cfg.NotifyIntervalMs) * time.Millisecond)
		defer notifyTick.Stop()
		campaignTick := time.NewTicker(time.Duration(cfg.CampaignIntervalMs) * time.Millisecond)
		defer campaignTick.Stop()

		var drop <-chan time.Time
		if cfg.DropAfterMs > 0 {
			t := time.NewTimer(time.Duration(cfg.DropAfterMs) * time.Millisecond)
			defer t.Stop()
			drop = t.C
		}

		// reader: notice client-side close
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				slog.Info("push client gone", "remote", r.RemoteAddr)
				return
			case <-drop:
				// abnormal close, no close frame: the feed should reconnect
				slog.Info("dropping push client", "remote", r.RemoteAddr)
				return
			case <-notifyTick.C:
				if cfg.SendMalformed && rand.Intn(4) == 0 {
					_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"garbage"`))
					continue
				}
				n := makeNotification(st)
				if err := writeEnvelope(conn, "notification", n, nil); err != nil {
					return
				}
				st.mu.Lock()
				count := st.unread()
				st.mu.Unlock()
				if err := writeEnvelope(conn, "unread_count", nil, &count); err != nil {
					return
				}
			case <-campaignTick.C:
				upd, ok := advanceCampaign(st)
				if !ok {
					continue
				}
				if err := writeEnvelope(conn, "campaign_status_update", upd, nil); err != nil {
					return
				}
			}
		}
	}
}

func makeNotification(st *state) domain.Notification {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := domain.Notification{
		ID:               util.NewSubscriptionID(),
		Organization:     "org_mock",
		NotificationType: "campaign_progress",
		Title:            "Campaign progress",
		Message:          "A campaign moved forward",
		CreatedAt:        util.NowUTC(),
		UpdatedAt:        util.NowUTC(),
	}
	st.notifications = append([]domain.Notification{n}, st.notifications...)
	return n
}

var statusFlow = []domain.CampaignStatus{
	domain.CampaignScheduled,
	domain.CampaignSending,
	domain.CampaignSent,
}

func advanceCampaign(st *state) (domain.CampaignStatusUpdate, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.campaigns) == 0 {
		return domain.CampaignStatusUpdate{}, false
	}
	c := &st.campaigns[rand.Intn(len(st.campaigns))]
	old := c.Status
	for i, s := range statusFlow {
		if s == c.Status && i+1 < len(statusFlow) {
			c.Status = statusFlow[i+1]
			break
		}
	}
	c.StatsSent += rand.Intn(50)
	c.StatsDelivered += rand.Intn(40)
	c.StatsOpened += rand.Intn(20)
	c.StatsClicked += rand.Intn(10)
	c.StatsTotalRecipients = 1000
	c.UpdatedAt = util.NowUTC()

	return domain.CampaignStatusUpdate{
		ID:                   c.ID,
		Name:                 c.Name,
		Status:               c.Status,
		OldStatus:            old,
		StatsSent:            c.StatsSent,
		StatsDelivered:       c.StatsDelivered,
		StatsOpened:          c.StatsOpened,
		StatsClicked:         c.StatsClicked,
		StatsTotalRecipients: c.StatsTotalRecipients,
		UpdatedAt:            c.UpdatedAt,
	}, true
}

func writeEnvelope(conn *websocket.Conn, typ string, data any, count *int) error {
	env := map[string]any{"type": typ}
	if data != nil {
		env["data"] = data
	}
	if count != nil {
		env["count"] = *count
	}
	return conn.WriteJSON(env)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func acceptJSON(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	w.WriteHeader(http.StatusNoContent)
}
