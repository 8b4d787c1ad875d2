package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ValentinBorsan/SapereHub/internal/session"
)

// Live-session counters consumed from the transport layer.
type HubStats interface {
	GetRoomCount() int
	GetClientCount() int
	GetActiveRooms() map[string]int
}

// Read-only HTTP surface over the live coordinator state. All mutation
// happens over the WebSocket channel; these endpoints only observe.
type API struct {
	hub      HubStats
	registry *session.Registry
}

func New(hub HubStats, registry *session.Registry) *API {
	return &API{
		hub:      hub,
		registry: registry,
	}
}

func (a *API) Routes(r *mux.Router) {
	r.HandleFunc("/health", a.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", a.StatsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", a.ListSessionsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", a.GetSessionHandler).Methods(http.MethodGet)
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("failed to encode JSON response")
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"known_rooms":    a.registry.Count(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// One room's live state plus how many connections are on its channel.
type SessionResponse struct {
	session.RoomInfo
	ConnectedClients int `json:"connected_clients"`
}

func (a *API) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	active := a.hub.GetActiveRooms()
	infos := a.registry.Snapshot()

	response := make([]SessionResponse, len(infos))
	for i, info := range infos {
		response[i] = SessionResponse{
			RoomInfo:         info,
			ConnectedClients: active[info.GroupID],
		}
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"sessions": response,
		"count":    len(response),
	})
}

func (a *API) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["id"]

	info, ok := a.registry.Info(groupID)
	if !ok {
		errorResponse(w, http.StatusNotFound, "Session not found")
		return
	}

	jsonResponse(w, http.StatusOK, SessionResponse{
		RoomInfo:         info,
		ConnectedClients: a.hub.GetActiveRooms()[groupID],
	})
}
