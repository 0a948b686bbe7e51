package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Directory is the read-only view of users, exams and enrollments the
// engine consults at join time.
type Directory interface {
	ValidateUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetExam(ctx context.Context, examID uuid.UUID) (*models.Exam, error)
	IsStudentEnrolled(ctx context.Context, examID, studentID uuid.UUID) (bool, error)
}

// StatusPersister receives aggregate exam status changes. Implementations
// must not block.
type StatusPersister interface {
	PersistExamStatus(examID uuid.UUID, update models.ExamStatusUpdate)
}

// EventPublisher receives domain events for other services. Implementations
// must not block.
type EventPublisher interface {
	PublishEvent(ev DomainEvent)
}

// Deps are the collaborators of an Engine. Status and Events may be nil.
type Deps struct {
	Directory Directory
	Sender    Sender
	Clock     Clock
	Status    StatusPersister
	Events    EventPublisher
}

type examMeta struct {
	durationSec  int
	instructorID uuid.UUID
}

// Engine is the timer synchronization engine: it owns every session of
// every exam and applies joins, commands, ticks and reconnects to them.
type Engine struct {
	config    Config
	directory Directory
	clock     Clock
	status    StatusPersister
	events    EventPublisher

	registry    *Registry
	store       *sessionStore
	scheduler   *Scheduler
	coordinator *Coordinator
	aggregates  *aggregateTracker

	metaMu sync.RWMutex
	meta   map[uuid.UUID]examMeta

	handlers map[MessageType]commandFunc
}

// NewEngine creates a new timer engine
func NewEngine(config Config, deps Deps) *Engine {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	e := &Engine{
		config:     config,
		directory:  deps.Directory,
		clock:      deps.Clock,
		status:     deps.Status,
		events:     deps.Events,
		registry:   NewRegistry(),
		store:      newSessionStore(),
		aggregates: newAggregateTracker(),
		meta:       make(map[uuid.UUID]examMeta),
	}
	e.scheduler = NewScheduler(e.clock, config.TickInterval, e.handleTick, e.handleTickBatch)
	e.coordinator = newCoordinator(e.registry, e.store, deps.Sender, e.clock)
	e.handlers = e.commandHandlers()
	return e
}

// Run drives the countdown scheduler until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.scheduler.Run(ctx)
}

// Registry exposes the session registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Join validates the user and exam, applies the role entry rules and
// registers the connection in the exam room. Rejections are reported in the
// result and to the connection; they never close it.
func (e *Engine) Join(ctx context.Context, connID string, examID, userID uuid.UUID) JoinResult {
	result := e.join(ctx, connID, examID, userID)
	if !result.Success {
		log.Info().
			Str("connection_id", connID).
			Str("exam_id", examID.String()).
			Str("user_id", userID.String()).
			Str("error_code", string(result.ErrorCode)).
			Msg("join rejected")
		e.coordinator.SendTo(connID, EventJoinResult, examID, "", result)
	}
	return result
}

func (e *Engine) join(ctx context.Context, connID string, examID, userID uuid.UUID) JoinResult {
	user, exam, err := e.admit(ctx, examID, userID)
	if err != nil {
		return rejected(CodeOf(err), messageOf(err))
	}

	meta := e.rememberExam(exam)
	displayName := user.DisplayName
	if displayName == "" {
		displayName = user.Username
	}

	cc := ConnectionContext{
		ConnectionID: connID,
		ExamID:       examID,
		UserID:       user.ID,
		Role:         user.Role,
		DisplayName:  displayName,
		JoinedAt:     e.clock.Now(),
	}
	prev, hadPrev := e.registry.register(cc)
	if hadPrev && (prev.ExamID != cc.ExamID || prev.UserID != cc.UserID) {
		e.releaseConnection(prev)
		e.coordinator.BroadcastRoster(prev.ExamID)
		e.refreshStatus(prev.ExamID)
	}

	result := JoinResult{Success: true, Role: user.Role, DisplayName: displayName}
	if user.Role == models.RoleStudent {
		view, connected, reconnected := e.attachStudent(cc, meta)
		result.Reconnected = reconnected
		e.coordinator.SendTo(connID, EventJoinResult, examID, "", result)
		e.coordinator.PushTimer(view, connected)
	} else {
		e.coordinator.SendTo(connID, EventJoinResult, examID, "", result)
	}

	log.Info().
		Str("connection_id", connID).
		Str("exam_id", examID.String()).
		Str("user_id", user.ID.String()).
		Str("role", string(user.Role)).
		Bool("reconnected", result.Reconnected).
		Msg("joined exam")

	e.coordinator.BroadcastRoster(examID)
	e.refreshStatus(examID)
	return result
}

// admit applies the entry rules: an active user, an existing exam, and an
// admin, the owning instructor or an enrolled student.
func (e *Engine) admit(ctx context.Context, examID, userID uuid.UUID) (*models.User, *models.Exam, error) {
	user, err := e.directory.ValidateUser(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, nil, newCommandError(CodeUserNotFound, "user not found")
		}
		log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to validate user")
		return nil, nil, newCommandError(CodeInternal, "failed to validate user")
	}
	if !user.IsActive {
		return nil, nil, newCommandError(CodeUserNotFound, "user is not active")
	}

	exam, err := e.directory.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, models.ErrExamNotFound) {
			return nil, nil, newCommandError(CodeExamNotFound, "exam not found")
		}
		log.Error().Err(err).Str("exam_id", examID.String()).Msg("failed to get exam")
		return nil, nil, newCommandError(CodeInternal, "failed to get exam")
	}

	switch user.Role {
	case models.RoleAdmin:
	case models.RoleInstructor:
		if exam.InstructorID != user.ID {
			return nil, nil, newCommandError(CodeNotOwner, "instructor does not own this exam")
		}
	case models.RoleStudent:
		enrolled, err := e.directory.IsStudentEnrolled(ctx, examID, user.ID)
		if err != nil {
			log.Error().Err(err).Str("exam_id", examID.String()).Msg("failed to check enrollment")
			return nil, nil, newCommandError(CodeInternal, "failed to check enrollment")
		}
		if !enrolled {
			return nil, nil, newCommandError(CodeStudentNotEnrolled, "student is not enrolled in this exam")
		}
	default:
		return nil, nil, newCommandError(CodeNotAuthority, "unknown role")
	}
	return user, exam, nil
}

// AuthorizeViewer checks that userID may read the exam's timers without a
// joined connection. Only an admin or the owning instructor may.
func (e *Engine) AuthorizeViewer(ctx context.Context, examID, userID uuid.UUID) error {
	user, _, err := e.admit(ctx, examID, userID)
	if err != nil {
		return err
	}
	if !user.Role.IsAuthority() {
		return newCommandError(CodeNotAuthority, "only an instructor or admin may read exam timers")
	}
	return nil
}

func rejected(code ErrorCode, message string) JoinResult {
	return JoinResult{Success: false, ErrorCode: code, Message: message}
}

func (e *Engine) rememberExam(exam *models.Exam) examMeta {
	meta := examMeta{durationSec: exam.DurationSec, instructorID: exam.InstructorID}
	e.metaMu.Lock()
	e.meta[exam.ID] = meta
	e.metaMu.Unlock()
	return meta
}

func (e *Engine) examMeta(examID uuid.UUID) (examMeta, bool) {
	e.metaMu.RLock()
	defer e.metaMu.RUnlock()
	meta, ok := e.meta[examID]
	return meta, ok
}

// Leave removes the connection from its room. A student's session is kept
// and marked disconnected; its countdown keeps running.
func (e *Engine) Leave(connID string) {
	cc, ok := e.registry.unregister(connID)
	if !ok {
		return
	}
	e.releaseConnection(cc)

	log.Info().
		Str("connection_id", connID).
		Str("exam_id", cc.ExamID.String()).
		Str("user_id", cc.UserID.String()).
		Msg("left exam")

	e.coordinator.BroadcastRoster(cc.ExamID)
	e.refreshStatus(cc.ExamID)
}

// LeaveExam is the explicit leave command; the connection stays open.
func (e *Engine) LeaveExam(connID string, examID uuid.UUID) error {
	cc, ok := e.registry.Resolve(connID)
	if !ok || cc.ExamID != examID {
		return newCommandError(CodeNotJoined, "connection has not joined exam %s", examID)
	}
	e.Leave(connID)
	return nil
}

// releaseConnection detaches a student session from a connection that is
// leaving the room.
func (e *Engine) releaseConnection(cc ConnectionContext) {
	if cc.Role != models.RoleStudent {
		return
	}
	s, ok := e.store.get(SessionKey{ExamID: cc.ExamID, StudentID: cc.UserID})
	if !ok {
		return
	}
	s.mu.Lock()
	detached := s.detach(cc.ConnectionID, e.clock.Now())
	status := s.state.Status
	s.mu.Unlock()

	if detached {
		log.Info().
			Str("exam_id", cc.ExamID.String()).
			Str("student_id", cc.UserID.String()).
			Str("status", string(status)).
			Msg("student disconnected, session preserved")
	}
}

// Resolve returns the context of a joined connection.
func (e *Engine) Resolve(connID string) (ConnectionContext, bool) {
	return e.registry.Resolve(connID)
}

// Roster returns the ordered snapshot of every session in the exam.
func (e *Engine) Roster(examID uuid.UUID) RosterUpdatePayload {
	return e.coordinator.Roster(examID)
}

// Session returns the current view of one student's session.
func (e *Engine) Session(examID, studentID uuid.UUID) (SessionView, bool) {
	s, ok := e.store.get(SessionKey{ExamID: examID, StudentID: studentID})
	if !ok || studentID == uuid.Nil {
		return SessionView{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), true
}

// Stats returns statistics about the engine
func (e *Engine) Stats() map[string]any {
	stats := e.registry.Stats()
	sessions := 0
	for _, examID := range e.store.exams() {
		sessions += len(e.store.forExam(examID))
	}
	stats["sessions"] = sessions
	stats["active_ticks"] = e.scheduler.ActiveCount()
	return stats
}

func (e *Engine) publish(ev DomainEvent) {
	if e.events == nil {
		return
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.clock.Now().UTC()
	}
	e.events.PublishEvent(ev)
}
