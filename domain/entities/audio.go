package entities

import (
	"encoding/binary"
	"time"
)

// OutgoingAudioChunk is a fixed-length block of 16-bit PCM produced by capture.
// The samples are copied on construction and never exposed for mutation.
type OutgoingAudioChunk struct {
	Seq        uint64
	SampleRate int
	samples    []int16
}

// NewOutgoingAudioChunk copies samples into a new chunk
func NewOutgoingAudioChunk(seq uint64, sampleRate int, samples []int16) OutgoingAudioChunk {
	cp := make([]int16, len(samples))
	copy(cp, samples)
	return OutgoingAudioChunk{Seq: seq, SampleRate: sampleRate, samples: cp}
}

// Len returns the number of samples in the chunk
func (c OutgoingAudioChunk) Len() int {
	return len(c.samples)
}

// Samples returns a copy of the chunk samples
func (c OutgoingAudioChunk) Samples() []int16 {
	cp := make([]int16, len(c.samples))
	copy(cp, c.samples)
	return cp
}

// PCM returns the samples as little-endian signed 16-bit bytes
func (c OutgoingAudioChunk) PCM() []byte {
	out := make([]byte, len(c.samples)*2)
	for i, s := range c.samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// PlaybackChunk is a decoded block of model speech ready for scheduling
type PlaybackChunk struct {
	Samples    []float32
	SampleRate int
}

// Duration returns how long the chunk plays
func (c PlaybackChunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// DeadlineState tracks the wall-clock budget of one session
type DeadlineState struct {
	StartedAt        time.Time
	HardLimit        time.Duration
	WarningThreshold time.Duration
	WarningFired     bool
}

// Snapshot is the host-observable view of the engine
type Snapshot struct {
	SessionID    string            `json:"session_id,omitempty"`
	State        SessionState      `json:"state"`
	IsConnected  bool              `json:"is_connected"`
	IsConnecting bool              `json:"is_connecting"`
	IsRecording  bool              `json:"is_recording"`
	Error        string            `json:"error,omitempty"`
	Volume       int               `json:"volume"`
	TimeLeft     int               `json:"time_left"`
	Warning      bool              `json:"warning"`
	Result       *EvaluationResult `json:"result"`
}
