package handler

import (
	"sync"

	"party-rsvp/internal/conversation"
	"party-rsvp/internal/models"
)

// Sessions keeps each user's conversation state in memory and runs one
// event per user at a time. Users resting in StateChoosing have no entry.
type Sessions struct {
	mu    sync.Mutex
	users map[models.UserID]*session
}

type session struct {
	mu    sync.Mutex
	refs  int
	state conversation.State
}

// NewSessions creates an empty session table.
func NewSessions() *Sessions {
	return &Sessions{users: make(map[models.UserID]*session)}
}

// Do runs fn with the user's current state under the user's lock. The state
// fn returns is stored only when err is nil.
func (s *Sessions) Do(id models.UserID, fn func(conversation.State) (conversation.State, error)) error {
	sess := s.acquire(id)
	defer s.release(id, sess)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	next, err := fn(sess.state)
	if err != nil {
		return err
	}
	sess.state = next
	return nil
}

// State returns the user's current state.
func (s *Sessions) State(id models.UserID) conversation.State {
	var state conversation.State
	s.Do(id, func(cur conversation.State) (conversation.State, error) {
		state = cur
		return cur, nil
	})
	return state
}

// Len reports how many users are mid-conversation.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *Sessions) acquire(id models.UserID) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.users[id]
	if !ok {
		sess = &session{}
		s.users[id] = sess
	}
	sess.refs++
	return sess
}

func (s *Sessions) release(id models.UserID, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.refs--
	if sess.refs == 0 && sess.state == conversation.StateChoosing {
		delete(s.users, id)
	}
}
