package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/examclock/go/internal/models"
	"github.com/stretchr/testify/require"
)

const examDuration = 3600

type fakeDirectory struct {
	users    map[uuid.UUID]*models.User
	exams    map[uuid.UUID]*models.Exam
	enrolled map[uuid.UUID]map[uuid.UUID]bool
}

func (d *fakeDirectory) ValidateUser(_ context.Context, userID uuid.UUID) (*models.User, error) {
	u, ok := d.users[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

func (d *fakeDirectory) GetExam(_ context.Context, examID uuid.UUID) (*models.Exam, error) {
	exam, ok := d.exams[examID]
	if !ok {
		return nil, models.ErrExamNotFound
	}
	return exam, nil
}

func (d *fakeDirectory) IsStudentEnrolled(_ context.Context, examID, studentID uuid.UUID) (bool, error) {
	return d.enrolled[examID][studentID], nil
}

type delivery struct {
	connID string
	msg    *Message
}

type recordingSender struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (s *recordingSender) Deliver(msg *Message, connIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range connIDs {
		s.deliveries = append(s.deliveries, delivery{connID: id, msg: msg})
	}
}

func (s *recordingSender) count(t MessageType, connID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.deliveries {
		if d.msg.Type == t && d.connID == connID {
			n++
		}
	}
	return n
}

func (s *recordingSender) last(t MessageType, connID string) (*Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.deliveries) - 1; i >= 0; i-- {
		d := s.deliveries[i]
		if d.msg.Type == t && d.connID == connID {
			return d.msg, true
		}
	}
	return nil, false
}

type recordingEvents struct {
	mu     sync.Mutex
	events []DomainEvent
}

func (r *recordingEvents) PublishEvent(ev DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEvents) count(t DomainEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type recordingStatus struct {
	mu       sync.Mutex
	statuses []models.ExamStatus
	last     models.ExamStatusUpdate
}

func (r *recordingStatus) PersistExamStatus(_ uuid.UUID, update models.ExamStatusUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.statuses); n == 0 || r.statuses[n-1] != update.Status {
		r.statuses = append(r.statuses, update.Status)
	}
	r.last = update
}

func (r *recordingStatus) history() []models.ExamStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ExamStatus(nil), r.statuses...)
}

type testEnv struct {
	engine *Engine
	clock  *clockwork.FakeClock
	sender *recordingSender
	events *recordingEvents
	status *recordingStatus

	examID       uuid.UUID
	instructorID uuid.UUID
	otherTeacher uuid.UUID
	adminID      uuid.UUID
	studentA     uuid.UUID
	studentB     uuid.UUID
	outsider     uuid.UUID
	inactive     uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:        clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)),
		sender:       &recordingSender{},
		events:       &recordingEvents{},
		status:       &recordingStatus{},
		examID:       uuid.New(),
		instructorID: uuid.New(),
		otherTeacher: uuid.New(),
		adminID:      uuid.New(),
		studentA:     uuid.New(),
		studentB:     uuid.New(),
		outsider:     uuid.New(),
		inactive:     uuid.New(),
	}

	user := func(id uuid.UUID, name string, role models.Role, active bool) *models.User {
		return &models.User{ID: id, Username: name, DisplayName: name, Role: role, IsActive: active}
	}
	dir := &fakeDirectory{
		users: map[uuid.UUID]*models.User{
			env.instructorID: user(env.instructorID, "instructor", models.RoleInstructor, true),
			env.otherTeacher: user(env.otherTeacher, "other", models.RoleInstructor, true),
			env.adminID:      user(env.adminID, "admin", models.RoleAdmin, true),
			env.studentA:     user(env.studentA, "alice", models.RoleStudent, true),
			env.studentB:     user(env.studentB, "bob", models.RoleStudent, true),
			env.outsider:     user(env.outsider, "eve", models.RoleStudent, true),
			env.inactive:     user(env.inactive, "gone", models.RoleStudent, false),
		},
		exams: map[uuid.UUID]*models.Exam{
			env.examID: {ID: env.examID, Title: "Algebra", DurationSec: examDuration, InstructorID: env.instructorID},
		},
		enrolled: map[uuid.UUID]map[uuid.UUID]bool{
			env.examID: {env.studentA: true, env.studentB: true, env.inactive: true},
		},
	}

	env.engine = NewEngine(DefaultConfig(), Deps{
		Directory: dir,
		Sender:    env.sender,
		Clock:     env.clock,
		Status:    env.status,
		Events:    env.events,
	})
	return env
}

func (env *testEnv) join(t *testing.T, connID string, userID uuid.UUID) JoinResult {
	t.Helper()
	return env.engine.Join(context.Background(), connID, env.examID, userID)
}

// advance moves the fake clock one tick at a time, draining due ticks.
func (env *testEnv) advance(seconds int) {
	for i := 0; i < seconds; i++ {
		env.clock.Advance(time.Second)
		env.engine.scheduler.drainDue()
	}
}

func (env *testEnv) session(t *testing.T, studentID uuid.UUID) SessionView {
	t.Helper()
	view, ok := env.engine.Session(env.examID, studentID)
	require.True(t, ok, "session for %s", studentID)
	return view
}

func (env *testEnv) all() Target {
	return Target{ExamID: env.examID}
}

func (env *testEnv) one(studentID uuid.UUID) Target {
	return Target{ExamID: env.examID, StudentIDs: []uuid.UUID{studentID}}
}
