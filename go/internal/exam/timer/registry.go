package timer

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Registry maps live connections to their exam, user and role, and tracks
// which connections form each exam's room.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]ConnectionContext
	rooms map[uuid.UUID]map[string]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]ConnectionContext),
		rooms: make(map[uuid.UUID]map[string]struct{}),
	}
}

// register adds the connection to its exam room. A connection that already
// joined another exam is moved, and its previous context returned.
func (r *Registry) register(cc ConnectionContext) (ConnectionContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, hadPrev := r.conns[cc.ConnectionID]
	if hadPrev {
		r.removeFromRoomLocked(prev)
	}

	r.conns[cc.ConnectionID] = cc
	if r.rooms[cc.ExamID] == nil {
		r.rooms[cc.ExamID] = make(map[string]struct{})
	}
	r.rooms[cc.ExamID][cc.ConnectionID] = struct{}{}

	log.Debug().
		Str("connection_id", cc.ConnectionID).
		Str("exam_id", cc.ExamID.String()).
		Int("room_size", len(r.rooms[cc.ExamID])).
		Msg("connection registered")

	return prev, hadPrev
}

// unregister removes the connection and returns the context it had.
func (r *Registry) unregister(connID string) (ConnectionContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cc, ok := r.conns[connID]
	if !ok {
		return ConnectionContext{}, false
	}
	delete(r.conns, connID)
	r.removeFromRoomLocked(cc)
	return cc, true
}

func (r *Registry) removeFromRoomLocked(cc ConnectionContext) {
	room, ok := r.rooms[cc.ExamID]
	if !ok {
		return
	}
	delete(room, cc.ConnectionID)
	// Clean up empty rooms
	if len(room) == 0 {
		delete(r.rooms, cc.ExamID)
	}
}

// Resolve returns the context of a joined connection.
func (r *Registry) Resolve(connID string) (ConnectionContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cc, ok := r.conns[connID]
	return cc, ok
}

// Room returns the connection ids subscribed to an exam.
func (r *Registry) Room(examID uuid.UUID) []string {
	return r.filterRoom(examID, func(ConnectionContext) bool { return true })
}

// Authorities returns the connection ids of authorities viewing an exam.
func (r *Registry) Authorities(examID uuid.UUID) []string {
	return r.filterRoom(examID, func(cc ConnectionContext) bool { return cc.Role.IsAuthority() })
}

func (r *Registry) filterRoom(examID uuid.UUID, keep func(ConnectionContext) bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[examID]
	ids := make([]string, 0, len(room))
	for connID := range room {
		if keep(r.conns[connID]) {
			ids = append(ids, connID)
		}
	}
	return ids
}

// Stats returns statistics about joined connections
func (r *Registry) Stats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomCounts := make(map[string]int, len(r.rooms))
	for examID, room := range r.rooms {
		roomCounts[examID.String()] = len(room)
	}
	return map[string]any{
		"joined_connections": len(r.conns),
		"active_exams":       len(r.rooms),
		"exam_connections":   roomCounts,
	}
}
