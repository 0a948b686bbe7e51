package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
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

type testEnv struct {
	clock   *clockwork.FakeClock
	service *Service
	server  *httptest.Server

	examID     uuid.UUID
	instructor uuid.UUID
	studentA   uuid.UUID
	studentB   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:      clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)),
		examID:     uuid.New(),
		instructor: uuid.New(),
		studentA:   uuid.New(),
		studentB:   uuid.New(),
	}

	dir := &fakeDirectory{
		users: map[uuid.UUID]*models.User{
			env.instructor: {ID: env.instructor, Username: "prof", DisplayName: "Professor", Role: models.RoleInstructor, IsActive: true},
			env.studentA:   {ID: env.studentA, Username: "alice", DisplayName: "Alice", Role: models.RoleStudent, IsActive: true},
			env.studentB:   {ID: env.studentB, Username: "bob", DisplayName: "Bob", Role: models.RoleStudent, IsActive: true},
		},
		exams: map[uuid.UUID]*models.Exam{
			env.examID: {ID: env.examID, Title: "Algebra", DurationSec: examDuration, InstructorID: env.instructor, Status: models.ExamStatusStopped},
		},
		enrolled: map[uuid.UUID]map[uuid.UUID]bool{
			env.examID: {env.studentA: true, env.studentB: true},
		},
	}

	config := DefaultConfig()
	env.service = NewService(config, timer.Deps{Directory: dir, Clock: env.clock})

	mux := http.NewServeMux()
	env.service.RegisterRoutes(mux)
	env.server = httptest.NewServer(mux)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = env.service.Start(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		env.server.Close()
	})
	return env
}

// wireMessage is the client's view of an outbound frame.
type wireMessage struct {
	Type      timer.MessageType `json:"type"`
	ExamID    string            `json:"exam_id"`
	RequestID string            `json:"request_id"`
	Data      json.RawMessage   `json:"data"`
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn

	mu       sync.Mutex
	messages []wireMessage
	closed   chan struct{}
}

func (env *testEnv) dial(t *testing.T, query url.Values) *testClient {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/exam"
	if len(query) > 0 {
		wsURL += "?" + query.Encode()
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	c := &testClient{t: t, conn: conn, closed: make(chan struct{})}
	go c.read()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// dialAs opens a connection that joins the test exam through query
// parameters.
func (env *testEnv) dialAs(t *testing.T, userID uuid.UUID) *testClient {
	return env.dial(t, url.Values{
		"exam_id": {env.examID.String()},
		"user_id": {userID.String()},
	})
}

func (c *testClient) read() {
	defer close(c.closed)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.mu.Lock()
		c.messages = append(c.messages, msg)
		c.mu.Unlock()
	}
}

func (c *testClient) send(v any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(v))
}

func (c *testClient) sendRaw(data string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

// find returns the newest message of type t whose payload satisfies match.
func (c *testClient) find(t timer.MessageType, match func(wireMessage) bool) (wireMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		msg := c.messages[i]
		if msg.Type == t && (match == nil || match(msg)) {
			return msg, true
		}
	}
	return wireMessage{}, false
}

func (c *testClient) waitFor(t timer.MessageType, match func(wireMessage) bool) wireMessage {
	c.t.Helper()
	var found wireMessage
	require.Eventually(c.t, func() bool {
		msg, ok := c.find(t, match)
		found = msg
		return ok
	}, 5*time.Second, 10*time.Millisecond, "no %s message received", t)
	return found
}

func decode[T any](t *testing.T, msg wireMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}
