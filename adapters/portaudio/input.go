package portaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/domain/repositories"
)

const (
	// DefaultFramesPerBuffer is 20ms at 48kHz
	DefaultFramesPerBuffer = 960
	frameQueue             = 64
)

// InputDevice captures mono float32 audio from the default microphone
type InputDevice struct {
	sampleRate      int
	framesPerBuffer int
	logger          *zap.Logger
}

// NewInputDevice creates an input device opened at the given native rate
func NewInputDevice(sampleRate, framesPerBuffer int, logger *zap.Logger) *InputDevice {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &InputDevice{
		sampleRate:      sampleRate,
		framesPerBuffer: framesPerBuffer,
		logger:          logger,
	}
}

// Open implements repositories.InputDevice
func (d *InputDevice) Open(ctx context.Context) (repositories.CaptureStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("no input device: %w", err)
	}

	rate := d.sampleRate
	if rate <= 0 {
		rate = int(device.DefaultSampleRate)
	}

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = 1
	params.Output.Device = nil
	params.Output.Channels = 0
	params.SampleRate = float64(rate)
	params.FramesPerBuffer = d.framesPerBuffer

	buffer := make([]float32, d.framesPerBuffer)
	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start capture: %w", err)
	}

	s := &captureStream{
		stream: stream,
		buffer: buffer,
		rate:   rate,
		frames: make(chan []float32, frameQueue),
		done:   make(chan struct{}),
		logger: d.logger,
	}
	s.stopped.Add(1)
	go s.run()

	d.logger.Info("Microphone opened",
		zap.String("device", device.Name),
		zap.Int("sampleRate", rate))
	return s, nil
}

type captureStream struct {
	stream *portaudio.Stream
	buffer []float32
	rate   int
	frames chan []float32
	done   chan struct{}
	logger *zap.Logger

	closeOnce sync.Once
	stopped   sync.WaitGroup
}

func (s *captureStream) SampleRate() int          { return s.rate }
func (s *captureStream) Frames() <-chan []float32 { return s.frames }

func (s *captureStream) run() {
	defer s.stopped.Done()
	defer close(s.frames)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Error("Microphone read failed", zap.Error(err))
			}
			return
		}

		frame := make([]float32, len(s.buffer))
		copy(frame, s.buffer)
		select {
		case s.frames <- frame:
		case <-s.done:
			return
		default:
			s.logger.Warn("Dropping microphone frame, consumer is behind")
		}
	}
}

// Close stops the stream and releases portaudio
func (s *captureStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		s.stopped.Wait()
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		portaudio.Terminate()
	})
	return err
}
