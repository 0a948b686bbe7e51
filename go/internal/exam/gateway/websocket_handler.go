package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"github.com/rs/zerolog/log"
)

// StatsProvider reports engine level statistics.
type StatsProvider interface {
	Stats() map[string]any
}

// WebSocketHandler handles WebSocket upgrade requests for exam connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	stats             StatsProvider
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, stats StatsProvider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		stats:             stats,
	}
}

// HandleExamConnection upgrades the request. When exam_id and user_id are
// given as query parameters the connection joins that exam right away;
// otherwise the client sends an explicit join frame.
func (h *WebSocketHandler) HandleExamConnection(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	examID, err := parseOptionalID("exam_id", query.Get("exam_id"))
	if err != nil {
		http.Error(w, "invalid exam_id format", http.StatusBadRequest)
		return
	}
	userID, err := parseOptionalID("user_id", query.Get("user_id"))
	if err != nil {
		http.Error(w, "invalid user_id format", http.StatusBadRequest)
		return
	}

	conn, err := h.connectionManager.UpgradeConnection(w, r)
	if err != nil {
		// The upgrader has already written the HTTP error.
		return
	}

	if examID != uuid.Nil && userID != uuid.Nil {
		conn.handle(timer.Command{
			Type:   timer.CommandJoin,
			ExamID: examID,
			UserID: userID,
		})
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()
	if h.stats != nil {
		stats["engine"] = h.stats.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/exam", h.HandleExamConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
