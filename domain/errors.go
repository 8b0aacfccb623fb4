package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionActive is returned by connect while another session still owns resources
	ErrSessionActive    = errors.New("a session is already active")
	// ErrNotConnected is returned when an operation needs a live connection
	ErrNotConnected     = errors.New("session is not connected")
	// ErrDeadlineExceeded marks a session ended by the wall-clock limit
	ErrDeadlineExceeded = errors.New("session deadline exceeded")
	// ErrSessionStopped is returned by connect when stop won the race against the handshake
	ErrSessionStopped   = errors.New("session stopped while connecting")
	// ErrResultNotFound is returned when no result exists for a session
	ErrResultNotFound   = errors.New("evaluation result not found")
)

// DeviceError reports an unavailable or denied audio device
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// ConnectionError reports a handshake or transport failure
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DecodeError reports an inbound audio payload that could not be decoded
type DecodeError struct {
	MIMEType string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.MIMEType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ProtocolParseError reports an inbound message that is not valid JSON
type ProtocolParseError struct {
	Err error
}

func (e *ProtocolParseError) Error() string {
	return fmt.Sprintf("parse inbound message: %v", e.Err)
}

func (e *ProtocolParseError) Unwrap() error { return e.Err }

// MalformedResultError reports a structured result missing required fields
type MalformedResultError struct {
	Err error
}

func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("malformed evaluation result: %v", e.Err)
}

func (e *MalformedResultError) Unwrap() error { return e.Err }
