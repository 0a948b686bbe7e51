package timer

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Sender delivers an outbound message to connections. Connection ids that
// are no longer live are skipped silently.
type Sender interface {
	Deliver(msg *Message, connIDs ...string)
}

// Coordinator computes exam views and fans them out, either to a whole
// room or to a single connection.
type Coordinator struct {
	registry *Registry
	store    *sessionStore
	sender   Sender
	clock    Clock
}

func newCoordinator(registry *Registry, store *sessionStore, sender Sender, clock Clock) *Coordinator {
	return &Coordinator{
		registry: registry,
		store:    store,
		sender:   sender,
		clock:    clock,
	}
}

func (c *Coordinator) message(t MessageType, examID uuid.UUID, data any) *Message {
	msg := &Message{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: c.clock.Now().UTC(),
		Data:      data,
	}
	if examID != uuid.Nil {
		msg.ExamID = examID.String()
	}
	return msg
}

// Roster returns every student session of the exam ordered by joinedAt.
func (c *Coordinator) Roster(examID uuid.UUID) RosterUpdatePayload {
	sessions := c.store.forExam(examID)
	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		views = append(views, s.view())
		s.mu.Unlock()
	}
	return RosterUpdatePayload{ExamID: examID, Students: views}
}

// BroadcastRoster delivers the full roster to every connection in the room.
func (c *Coordinator) BroadcastRoster(examID uuid.UUID) {
	room := c.registry.Room(examID)
	if len(room) == 0 {
		return
	}
	roster := c.Roster(examID)
	c.sender.Deliver(c.message(EventRosterUpdate, examID, roster), room...)

	log.Debug().
		Str("exam_id", examID.String()).
		Int("students", len(roster.Students)).
		Int("connections", len(room)).
		Msg("roster broadcasted")
}

// PushTimer sends a session's timer to the owning student, if connected.
func (c *Coordinator) PushTimer(view SessionView, connID string) {
	if connID == "" {
		return
	}
	c.sender.Deliver(c.message(EventTimerUpdate, view.ExamID, view), connID)
}

// PushTimerLive sends a session's timer to its student and to every
// authority viewing the exam.
func (c *Coordinator) PushTimerLive(view SessionView, connID string) {
	targets := c.registry.Authorities(view.ExamID)
	if connID != "" {
		targets = append(targets, connID)
	}
	if len(targets) == 0 {
		return
	}
	c.sender.Deliver(c.message(EventTimerUpdate, view.ExamID, view), targets...)
}

// PushFinished sends the one-time expiry notification.
func (c *Coordinator) PushFinished(payload TimerFinishedPayload, connID string) {
	targets := c.registry.Authorities(payload.ExamID)
	if connID != "" {
		targets = append(targets, connID)
	}
	if len(targets) == 0 {
		return
	}
	c.sender.Deliver(c.message(EventTimerFinished, payload.ExamID, payload), targets...)
}

// SendTo delivers an arbitrary payload to one connection.
func (c *Coordinator) SendTo(connID string, t MessageType, examID uuid.UUID, requestID string, data any) {
	msg := c.message(t, examID, data)
	msg.RequestID = requestID
	c.sender.Deliver(msg, connID)
}

// SendError reports a rejected command to its caller.
func (c *Coordinator) SendError(connID string, examID uuid.UUID, requestID string, err error) {
	payload := ErrorPayload{Code: CodeOf(err), Message: messageOf(err)}
	c.SendTo(connID, EventError, examID, requestID, payload)
}
