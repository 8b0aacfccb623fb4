package entities

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionState represents the lifecycle state of an evaluation session
type SessionState string

const (
	SessionStateIdle        SessionState = "idle"
	SessionStateConnecting  SessionState = "connecting"
	SessionStateConnected   SessionState = "connected"
	SessionStateRecording   SessionState = "recording"
	SessionStateTerminating SessionState = "terminating"
	SessionStateTerminated  SessionState = "terminated"
	SessionStateErrored     SessionState = "errored"
)

// sessionTransitions lists the states reachable from each state.
var sessionTransitions = map[SessionState][]SessionState{
	SessionStateIdle:        {SessionStateConnecting, SessionStateTerminating},
	SessionStateConnecting:  {SessionStateConnected, SessionStateTerminating, SessionStateErrored},
	SessionStateConnected:   {SessionStateRecording, SessionStateTerminating, SessionStateErrored},
	SessionStateRecording:   {SessionStateConnected, SessionStateTerminating, SessionStateErrored},
	SessionStateTerminating: {SessionStateTerminated},
}

// ErrInvalidTransition is returned when a state change is not allowed
var ErrInvalidTransition = errors.New("invalid session state transition")

// CanTransition reports whether the state machine allows moving from s to to
func (s SessionState) CanTransition(to SessionState) bool {
	for _, next := range sessionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsActive reports whether the session still owns live resources
func (s SessionState) IsActive() bool {
	switch s {
	case SessionStateConnecting, SessionStateConnected, SessionStateRecording:
		return true
	}
	return false
}

// IsTerminal reports whether a new connect must start a fresh session
func (s SessionState) IsTerminal() bool {
	return s == SessionStateTerminated || s == SessionStateErrored
}

// Session is the aggregate root of one evaluation conversation
type Session struct {
	ID          string
	State       SessionState
	CreatedAt   time.Time
	ConnectedAt *time.Time
	EndedAt     *time.Time
	Elapsed     time.Duration
	LastError   error
	Result      *EvaluationResult
}

// NewSession creates an idle session
func NewSession(now time.Time) *Session {
	return &Session{
		ID:        uuid.New().String(),
		State:     SessionStateIdle,
		CreatedAt: now,
	}
}

// Transition moves the session to the given state if the state machine allows it
func (s *Session) Transition(to SessionState) error {
	if !s.State.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	s.State = to
	return nil
}

// MarkConnected records the moment the handshake completed
func (s *Session) MarkConnected(now time.Time) error {
	if err := s.Transition(SessionStateConnected); err != nil {
		return err
	}
	s.ConnectedAt = &now
	return nil
}

// Fail moves an active session to the errored state and keeps the cause
func (s *Session) Fail(err error, now time.Time) error {
	if transitionErr := s.Transition(SessionStateErrored); transitionErr != nil {
		return transitionErr
	}
	s.LastError = err
	s.end(now)
	return nil
}

// Terminate completes a teardown that was started with SessionStateTerminating
func (s *Session) Terminate(now time.Time) error {
	if err := s.Transition(SessionStateTerminated); err != nil {
		return err
	}
	s.end(now)
	return nil
}

func (s *Session) end(now time.Time) {
	s.EndedAt = &now
	if s.ConnectedAt != nil {
		s.Elapsed = now.Sub(*s.ConnectedAt)
	}
}

// IsActive reports whether the session still owns live resources
func (s *Session) IsActive() bool {
	return s.State.IsActive()
}
