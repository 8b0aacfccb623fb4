package websocket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/oralexam/domain/entities"
	"github.com/satriahrh/oralexam/internal/audio"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Commands sent by the host
const (
	MessageTypeConnect        MessageType = "connect"
	MessageTypeStartRecording MessageType = "start_recording"
	MessageTypeStopRecording  MessageType = "stop_recording"
	MessageTypeStop           MessageType = "stop"
	MessageTypePing           MessageType = "ping"
)

// Messages pushed to the host
const (
	MessageTypeState MessageType = "state"
	MessageTypeAudio MessageType = "audio"
	MessageTypeError MessageType = "error"
	MessageTypePong  MessageType = "pong"
)

const (
	minSampleRate = 16000
	maxSampleRate = 192000
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// CommandMessage is a control message from the host.
// SampleRate announces the native rate of the binary microphone frames that follow.
type CommandMessage struct {
	BaseMessage
	SampleRate int `json:"sample_rate,omitempty"`
}

// StateMessage carries a fresh engine snapshot
type StateMessage struct {
	BaseMessage
	State entities.Snapshot `json:"state"`
}

// AudioMessage carries one chunk of model speech for the browser to play at StartAtMs.
// SentAtMs lets the browser map server time onto its own audio clock.
type AudioMessage struct {
	BaseMessage
	StartAtMs  int64  `json:"start_at_ms"`
	SentAtMs   int64  `json:"sent_at_ms"`
	DurationMs int64  `json:"duration_ms"`
	SampleRate int    `json:"sample_rate"`
	Data       string `json:"data"` // base64 16-bit PCM
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
}

// MessageValidator provides validation for host commands
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses and validates an incoming command
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (*CommandMessage, error) {
	var msg CommandMessage
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch msg.Type {
	case MessageTypeConnect, MessageTypeStartRecording:
		if msg.SampleRate != 0 && (msg.SampleRate < minSampleRate || msg.SampleRate > maxSampleRate) {
			return nil, fmt.Errorf("sample_rate must be between %d and %d", minSampleRate, maxSampleRate)
		}
	case MessageTypeStopRecording, MessageTypeStop, MessageTypePing:
	case "":
		return nil, fmt.Errorf("type is required")
	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}
	return &msg, nil
}

// CreateStateMessage wraps a snapshot
func CreateStateMessage(snap entities.Snapshot) *StateMessage {
	return &StateMessage{
		BaseMessage: BaseMessage{Type: MessageTypeState, Timestamp: time.Now().Format(time.RFC3339)},
		State:       snap,
	}
}

// CreateAudioMessage encodes a playback chunk scheduled at startAt
func CreateAudioMessage(chunk entities.PlaybackChunk, startAt, now time.Time) *AudioMessage {
	return &AudioMessage{
		BaseMessage: BaseMessage{Type: MessageTypeAudio},
		StartAtMs:   startAt.UnixMilli(),
		SentAtMs:    now.UnixMilli(),
		DurationMs:  chunk.Duration().Milliseconds(),
		SampleRate:  chunk.SampleRate,
		Data:        base64.StdEncoding.EncodeToString(audio.EncodePCM16(chunk.Samples)),
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{Type: MessageTypeError, Timestamp: time.Now().Format(time.RFC3339)},
		Code:        code,
		Message:     message,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage() *PongMessage {
	return &PongMessage{
		BaseMessage: BaseMessage{Type: MessageTypePong, Timestamp: time.Now().Format(time.RFC3339)},
	}
}
