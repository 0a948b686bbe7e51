package timer

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// sessionStore owns every StudentTimerSession keyed by (exam, student).
// The store lock only guards the maps; each session carries its own mutex.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[SessionKey]*Session
	byExam   map[uuid.UUID]map[uuid.UUID]*Session
	clocks   map[uuid.UUID]*Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		sessions: make(map[SessionKey]*Session),
		byExam:   make(map[uuid.UUID]map[uuid.UUID]*Session),
		clocks:   make(map[uuid.UUID]*Session),
	}
}

func (st *sessionStore) get(key SessionKey) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if key.isExamClock() {
		s, ok := st.clocks[key.ExamID]
		return s, ok
	}
	s, ok := st.sessions[key]
	return s, ok
}

// getOrCreate returns the existing session for key or stores the one built
// by create. The second result is true when a new session was stored.
func (st *sessionStore) getOrCreate(key SessionKey, create func() *Session) (*Session, bool) {
	if s, ok := st.get(key); ok {
		return s, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if key.isExamClock() {
		if s, ok := st.clocks[key.ExamID]; ok {
			return s, false
		}
		s := create()
		st.clocks[key.ExamID] = s
		return s, true
	}
	if s, ok := st.sessions[key]; ok {
		return s, false
	}
	s := create()
	st.sessions[key] = s
	if st.byExam[key.ExamID] == nil {
		st.byExam[key.ExamID] = make(map[uuid.UUID]*Session)
	}
	st.byExam[key.ExamID][key.StudentID] = s
	return s, true
}

// put replaces whatever is stored for the session's key.
func (st *sessionStore) put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s.key.isExamClock() {
		st.clocks[s.key.ExamID] = s
		return
	}
	st.sessions[s.key] = s
	if st.byExam[s.key.ExamID] == nil {
		st.byExam[s.key.ExamID] = make(map[uuid.UUID]*Session)
	}
	st.byExam[s.key.ExamID][s.key.StudentID] = s
}

// forExam returns the exam's student sessions ordered by joinedAt ascending.
func (st *sessionStore) forExam(examID uuid.UUID) []*Session {
	st.mu.RLock()
	sessions := make([]*Session, 0, len(st.byExam[examID]))
	for _, s := range st.byExam[examID] {
		sessions = append(sessions, s)
	}
	st.mu.RUnlock()

	// joinedAt is immutable after creation, no session lock needed
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].joinedAt.Equal(sessions[j].joinedAt) {
			return sessions[i].key.StudentID.String() < sessions[j].key.StudentID.String()
		}
		return sessions[i].joinedAt.Before(sessions[j].joinedAt)
	})
	return sessions
}

func (st *sessionStore) remove(key SessionKey) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[key]
	if !ok {
		return nil, false
	}
	delete(st.sessions, key)
	if students := st.byExam[key.ExamID]; students != nil {
		delete(students, key.StudentID)
		if len(students) == 0 {
			delete(st.byExam, key.ExamID)
		}
	}
	return s, true
}

// removeExam drops every session of the exam, the exam clock included.
func (st *sessionStore) removeExam(examID uuid.UUID) []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	var removed []*Session
	for studentID, s := range st.byExam[examID] {
		delete(st.sessions, SessionKey{ExamID: examID, StudentID: studentID})
		removed = append(removed, s)
	}
	delete(st.byExam, examID)
	if c, ok := st.clocks[examID]; ok {
		removed = append(removed, c)
		delete(st.clocks, examID)
	}
	return removed
}

// exams lists every exam that has a session or an exam clock.
func (st *sessionStore) exams() []uuid.UUID {
	st.mu.RLock()
	defer st.mu.RUnlock()
	seen := make(map[uuid.UUID]struct{}, len(st.byExam)+len(st.clocks))
	for id := range st.byExam {
		seen[id] = struct{}{}
	}
	for id := range st.clocks {
		seen[id] = struct{}{}
	}
	ids := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}
