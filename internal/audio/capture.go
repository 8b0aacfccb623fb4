package audio

import (
	"context"

	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/domain/entities"
	"github.com/satriahrh/oralexam/domain/repositories"
)

// CaptureConfig configures the capture and resample stage
type CaptureConfig struct {
	TargetRate int
	ChunkSize  int
	// ChunkBuffer bounds the queue between capture and the network sender
	ChunkBuffer int
}

// Capture turns an open microphone stream into fixed-size outgoing chunks.
// Chunks are delivered on a bounded channel in production order; volume
// estimates are reported for every native frame through onVolume.
type Capture struct {
	stream    repositories.CaptureStream
	resampler *Resampler
	chunks    chan entities.OutgoingAudioChunk
	onVolume  func(rms float64)
	logger    *zap.Logger
}

// NewCapture creates a capture stage reading from stream
func NewCapture(stream repositories.CaptureStream, config CaptureConfig, onVolume func(rms float64), logger *zap.Logger) (*Capture, error) {
	resampler, err := NewResampler(stream.SampleRate(), config.TargetRate, config.ChunkSize)
	if err != nil {
		return nil, err
	}
	buffer := config.ChunkBuffer
	if buffer <= 0 {
		buffer = 32
	}
	if onVolume == nil {
		onVolume = func(float64) {}
	}
	return &Capture{
		stream:    stream,
		resampler: resampler,
		chunks:    make(chan entities.OutgoingAudioChunk, buffer),
		onVolume:  onVolume,
		logger:    logger,
	}, nil
}

// Chunks returns the outgoing chunk channel. It is closed when Run returns.
func (c *Capture) Chunks() <-chan entities.OutgoingAudioChunk {
	return c.chunks
}

// Run pumps frames until the stream ends or ctx is cancelled
func (c *Capture) Run(ctx context.Context) {
	defer close(c.chunks)

	frames := c.stream.Frames()
	c.logger.Debug("Capture started",
		zap.Int("nativeRate", c.stream.SampleRate()),
		zap.Float64("ratio", c.resampler.Ratio()))

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				c.logger.Debug("Capture stream ended")
				return
			}
			c.onVolume(RMS(frame))

			for _, chunk := range c.resampler.Write(frame) {
				select {
				case c.chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
