package repositories

import (
	"context"
	"time"

	"github.com/satriahrh/oralexam/domain/entities"
)

// InputDevice abstracts a microphone
type InputDevice interface {
	// Open acquires the device and starts delivering frames
	Open(ctx context.Context) (CaptureStream, error)
}

// CaptureStream is an open microphone delivering mono float32 frames at its native rate
type CaptureStream interface {
	SampleRate() int
	// Frames is closed when the stream ends
	Frames() <-chan []float32
	Close() error
}

// OutputDevice abstracts a speaker
type OutputDevice interface {
	// Open acquires the device for mono playback at the given sample rate
	Open(ctx context.Context, sampleRate int) (PlaybackSink, error)
}

// PlaybackSink renders scheduled chunks.
// Play must not block; done is called once the chunk has finished playing.
type PlaybackSink interface {
	Play(chunk entities.PlaybackChunk, startAt time.Time, done func())
	// Reset drops anything already handed to the sink
	Reset()
	Close() error
}
