package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sony/gobreaker"

	"dashfeed/internal/realtime"
	"dashfeed/internal/tracker"
)

// API is the local read-only surface over the feed's in-memory state. Reads
// come straight from the trackers; mutations proxy through them to the
// platform backend.
type API struct {
	Notifications *tracker.Notifications
	Campaigns     *tracker.Campaigns
	Push          *realtime.Client
}

type statusResponse struct {
	State    realtime.State `json:"state"`
	Attempts int            `json:"attempts"`
	Error    string         `json:"error,omitempty"`
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/v1/notifications", a.handleListNotifications).Methods(http.MethodGet)
	r.HandleFunc("/v1/notifications/unread-count", a.handleUnreadCount).Methods(http.MethodGet)
	r.HandleFunc("/v1/notifications/read-all", a.handleMarkAllRead).Methods(http.MethodPost)
	r.HandleFunc("/v1/notifications/{id}/read", a.handleMarkRead).Methods(http.MethodPost)
	r.HandleFunc("/v1/notifications/{id}", a.handleDeleteNotification).Methods(http.MethodDelete)
	r.HandleFunc("/v1/campaigns", a.handleListCampaigns).Methods(http.MethodGet)
	r.HandleFunc("/v1/campaigns/{id}", a.handleGetCampaign).Methods(http.MethodGet)
	r.HandleFunc("/v1/status", a.handleStatus).Methods(http.MethodGet)
}

func (a *API) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Notifications.Snapshot())
}

func (a *API) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": a.Notifications.Unread()})
}

func (a *API) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	if err := a.Notifications.MarkAsRead(r.Context(), id); err != nil {
		// optimistic edit is kept; the caller learns the confirm failed
		slog.Error("mark read failed", "err", err, "id", id)
		writeBackendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := a.Notifications.MarkAllAsRead(r.Context()); err != nil {
		slog.Error("mark all read failed", "err", err)
		writeBackendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	if err := a.Notifications.Delete(r.Context(), id); err != nil {
		slog.Error("delete notification failed", "err", err, "id", id)
		writeBackendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Campaigns.Snapshot())
}

func (a *API) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, ok := a.Campaigns.Get(id)
	if !ok {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:    a.Push.State(),
		Attempts: a.Push.Attempts(),
	}
	if err := a.Push.LastError(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBackendError(w http.ResponseWriter, err error) {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		http.Error(w, ErrUnavailable, http.StatusServiceUnavailable)
		return
	}
	http.Error(w, ErrDependency, http.StatusBadGateway)
}
