package handler

import (
	"context"
	"sync"
)

// requestSupervisor tracks the single in-flight generation of one websocket
// connection. Starting a new request retires the previous one by cancelling
// its context: latest wins. Safe for use from the connection's read loop and
// the per-request goroutines it spawns.
type requestSupervisor struct {
	parent context.Context

	mu        sync.Mutex
	requestID string
	cancel    context.CancelFunc
}

func newRequestSupervisor(parent context.Context) *requestSupervisor {
	return &requestSupervisor{parent: parent}
}

// Begin retires any in-flight request and returns a context scoped to the
// new one.
func (s *requestSupervisor) Begin(requestID string) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(s.parent)
	s.requestID = requestID
	s.cancel = cancel
	return ctx
}

// Cancel cancels the in-flight request if requestID matches it. Cancels for
// already-retired requests are ignored.
func (s *requestSupervisor) Cancel(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil || s.requestID != requestID {
		return false
	}
	s.cancel()
	return true
}

// Finish releases the slot if requestID is still the current request.
func (s *requestSupervisor) Finish(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.requestID != requestID {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.requestID = ""
	s.cancel = nil
}

// Shutdown cancels whatever is in flight. Used when the connection closes.
func (s *requestSupervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
}
