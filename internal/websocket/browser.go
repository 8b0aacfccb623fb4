package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/domain/entities"
	"github.com/satriahrh/oralexam/domain/repositories"
	"github.com/satriahrh/oralexam/internal/audio"
)

const browserFrameBuffer = 64

var errInputBusy = errors.New("browser microphone already open")

// browserInput is a microphone fed by binary frames from the host socket
type browserInput struct {
	logger *zap.Logger

	mu     sync.Mutex
	rate   int
	stream *browserStream
}

func newBrowserInput(rate int, logger *zap.Logger) *browserInput {
	return &browserInput{rate: rate, logger: logger}
}

// setRate changes the native rate announced for the next stream
func (b *browserInput) setRate(rate int) {
	if rate <= 0 {
		return
	}
	b.mu.Lock()
	b.rate = rate
	b.mu.Unlock()
}

// Open implements repositories.InputDevice
func (b *browserInput) Open(ctx context.Context) (repositories.CaptureStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream != nil {
		return nil, errInputBusy
	}
	b.stream = &browserStream{
		input:  b,
		rate:   b.rate,
		frames: make(chan []float32, browserFrameBuffer),
	}
	return b.stream, nil
}

// push delivers one binary frame of float32 LE samples to the open stream
func (b *browserInput) push(data []byte) {
	frame, err := audio.DecodeFloat32LE(data)
	if err != nil {
		b.logger.Warn("Dropping malformed microphone frame", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == nil {
		b.logger.Debug("Dropping microphone frame while not recording", zap.Int("samples", len(frame)))
		return
	}
	select {
	case b.stream.frames <- frame:
	default:
		b.logger.Warn("Microphone frame queue full, dropping frame")
	}
}

// closeStream detaches s if it is still the open stream
func (b *browserInput) closeStream(s *browserStream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == s {
		b.stream = nil
		close(s.frames)
	}
}

type browserStream struct {
	input  *browserInput
	rate   int
	frames chan []float32
}

func (s *browserStream) SampleRate() int          { return s.rate }
func (s *browserStream) Frames() <-chan []float32 { return s.frames }
func (s *browserStream) Close() error {
	s.input.closeStream(s)
	return nil
}

// browserOutput renders model speech by forwarding scheduled chunks to the host
type browserOutput struct {
	clock clock.Clock
	send  func(v interface{})
}

func newBrowserOutput(clk clock.Clock, send func(v interface{})) *browserOutput {
	return &browserOutput{clock: clk, send: send}
}

// Open implements repositories.OutputDevice
func (b *browserOutput) Open(ctx context.Context, sampleRate int) (repositories.PlaybackSink, error) {
	return audio.NewTimedSink(b.clock, func(chunk entities.PlaybackChunk, startAt time.Time) {
		b.send(CreateAudioMessage(chunk, startAt, b.clock.Now()))
	}), nil
}
