package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"github.com/rs/zerolog/log"
)

// StateProvider is the read side of the engine used for pull
// reconciliation.
type StateProvider interface {
	AuthorizeViewer(ctx context.Context, examID, userID uuid.UUID) error
	Roster(examID uuid.UUID) timer.RosterUpdatePayload
	Session(examID, studentID uuid.UUID) (timer.SessionView, bool)
}

// UserIDHeader carries the caller's user id on pull requests.
const UserIDHeader = "X-User-ID"

// StateHandler handles HTTP requests for timer state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetRoster handles GET /api/exams/{examId}/timers
func (h *StateHandler) HandleGetRoster(w http.ResponseWriter, r *http.Request) {
	examID, err := uuid.Parse(r.PathValue("examId"))
	if err != nil {
		http.Error(w, "Invalid exam ID format", http.StatusBadRequest)
		return
	}
	if !h.authorize(w, r, examID) {
		return
	}

	writeJSON(w, http.StatusOK, h.stateProvider.Roster(examID))
}

// HandleGetStudentTimer handles GET /api/exams/{examId}/timers/{studentId}
func (h *StateHandler) HandleGetStudentTimer(w http.ResponseWriter, r *http.Request) {
	examID, err := uuid.Parse(r.PathValue("examId"))
	if err != nil {
		http.Error(w, "Invalid exam ID format", http.StatusBadRequest)
		return
	}
	studentID, err := uuid.Parse(r.PathValue("studentId"))
	if err != nil {
		http.Error(w, "Invalid student ID format", http.StatusBadRequest)
		return
	}
	if !h.authorize(w, r, examID) {
		return
	}

	view, ok := h.stateProvider.Session(examID, studentID)
	if !ok {
		writeJSON(w, http.StatusNotFound, timer.ErrorPayload{
			Code:    timer.CodeSessionNotFound,
			Message: "no timer session for student",
		})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// authorize writes the rejection and returns false unless the caller named
// by UserIDHeader may read the exam's timers.
func (h *StateHandler) authorize(w http.ResponseWriter, r *http.Request, examID uuid.UUID) bool {
	userID, err := uuid.Parse(r.Header.Get(UserIDHeader))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, timer.ErrorPayload{
			Code:    timer.CodeUserNotFound,
			Message: UserIDHeader + " header is required",
		})
		return false
	}
	if err := h.stateProvider.AuthorizeViewer(r.Context(), examID, userID); err != nil {
		writeJSON(w, viewerStatus(timer.CodeOf(err)), timer.ErrorPayload{
			Code:    timer.CodeOf(err),
			Message: err.Error(),
		})
		return false
	}
	return true
}

func viewerStatus(code timer.ErrorCode) int {
	switch code {
	case timer.CodeUserNotFound:
		return http.StatusUnauthorized
	case timer.CodeExamNotFound:
		return http.StatusNotFound
	case timer.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusForbidden
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/exams/{examId}/timers", h.HandleGetRoster)
	mux.HandleFunc("GET /api/exams/{examId}/timers/{studentId}", h.HandleGetStudentTimer)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
