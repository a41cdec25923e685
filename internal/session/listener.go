package session

import "github.com/coreforge/contentrepo/internal/itemstate"

// Listener receives the four item-state lifecycle events described in
// spec.md §4.1. The Item Manager is the canonical listener; within a single
// session these are direct synchronous calls (spec.md §9's note on
// message-passing vs. direct calls when everything runs on the session
// thread).
type Listener interface {
	StateCreated(state itemstate.State)
	StateModified(state itemstate.State)
	StateDestroyed(state itemstate.State)
	StateDiscarded(state itemstate.State)
}

func (s *Session) publishCreated(state itemstate.State) {
	for _, l := range s.listeners {
		l.StateCreated(state)
	}
}

func (s *Session) publishModified(state itemstate.State) {
	for _, l := range s.listeners {
		l.StateModified(state)
	}
}

func (s *Session) publishDestroyed(state itemstate.State) {
	for _, l := range s.listeners {
		l.StateDestroyed(state)
	}
}

func (s *Session) publishDiscarded(state itemstate.State) {
	for _, l := range s.listeners {
		l.StateDiscarded(state)
	}
}

// AddListener registers l to receive future state events.
func (s *Session) AddListener(l Listener) {
	s.overlayMu.Lock()
	defer s.overlayMu.Unlock()
	s.listeners = append(s.listeners, l)
}
