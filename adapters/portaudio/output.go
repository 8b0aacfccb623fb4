package portaudio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/domain/entities"
	"github.com/satriahrh/oralexam/domain/repositories"
	"github.com/satriahrh/oralexam/internal/audio"
)

// OutputDevice plays mono float32 audio on the default speaker
type OutputDevice struct {
	framesPerBuffer int
	logger          *zap.Logger
}

// NewOutputDevice creates an output device
func NewOutputDevice(framesPerBuffer int, logger *zap.Logger) *OutputDevice {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &OutputDevice{framesPerBuffer: framesPerBuffer, logger: logger}
}

// Open implements repositories.OutputDevice
func (d *OutputDevice) Open(ctx context.Context, sampleRate int) (repositories.PlaybackSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	device, err := portaudio.DefaultOutputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("no output device: %w", err)
	}

	params := portaudio.LowLatencyParameters(nil, device)
	params.Input.Device = nil
	params.Input.Channels = 0
	params.Output.Channels = 1
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = d.framesPerBuffer

	buffer := make([]float32, d.framesPerBuffer)
	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start playback: %w", err)
	}

	sink := &playbackSink{
		stream: stream,
		buffer: buffer,
		cursor: audio.NewDeviceCursor(sampleRate),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: d.logger,
	}
	sink.stopped.Add(1)
	go sink.run()

	d.logger.Info("Speaker opened",
		zap.String("device", device.Name),
		zap.Int("sampleRate", sampleRate))
	return sink, nil
}

type queuedChunk struct {
	chunk      entities.PlaybackChunk
	startAt    time.Time
	done       func()
	generation uint64
}

// playbackSink writes chunks one after another through a blocking stream.
// Start times only apply once the device has drained; a burst is written back-to-back.
type playbackSink struct {
	stream *portaudio.Stream
	buffer []float32
	// fill and cursor are owned by the run goroutine
	fill   int
	cursor *audio.DeviceCursor
	wake   chan struct{}
	done   chan struct{}
	logger *zap.Logger

	mu         sync.Mutex
	queue      []queuedChunk
	generation uint64

	closeOnce sync.Once
	stopped   sync.WaitGroup
}

// Play implements repositories.PlaybackSink
func (s *playbackSink) Play(chunk entities.PlaybackChunk, startAt time.Time, done func()) {
	s.mu.Lock()
	s.queue = append(s.queue, queuedChunk{chunk: chunk, startAt: startAt, done: done, generation: s.generation})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Reset implements repositories.PlaybackSink
func (s *playbackSink) Reset() {
	s.mu.Lock()
	s.queue = nil
	s.generation++
	s.mu.Unlock()
}

// Close implements repositories.PlaybackSink
func (s *playbackSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.stopped.Wait()
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		portaudio.Terminate()
	})
	return err
}

func (s *playbackSink) next() (queuedChunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return queuedChunk{}, false
	}
	item := s.queue[0]
	s.queue = s.queue[1:]
	return item, true
}

func (s *playbackSink) current(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == generation
}

func (s *playbackSink) run() {
	defer s.stopped.Done()
	generation := uint64(0)
	for {
		item, ok := s.next()
		if !ok {
			s.flush()
			select {
			case <-s.done:
				return
			case <-s.wake:
				continue
			}
		}
		if item.generation != generation {
			generation = item.generation
			s.fill = 0
			s.cursor.Reset()
		}

		if wait := s.cursor.Wait(time.Now(), item.startAt); wait > 0 {
			s.flush()
			select {
			case <-s.done:
				return
			case <-time.After(wait):
			}
		}

		if !s.write(item) {
			return
		}
		if s.current(item.generation) {
			item.done()
		}
	}
}

// write copies the chunk into the stream buffer, writing every full buffer.
// A partial tail stays buffered so the next chunk continues it without a gap.
func (s *playbackSink) write(item queuedChunk) bool {
	samples := item.chunk.Samples
	for len(samples) > 0 {
		select {
		case <-s.done:
			return false
		default:
		}
		if !s.current(item.generation) {
			s.fill = 0
			return true
		}

		n := copy(s.buffer[s.fill:], samples)
		s.fill += n
		s.cursor.Advance(time.Now(), n)
		samples = samples[n:]
		if s.fill == len(s.buffer) {
			s.writeBuffer()
		}
	}
	return true
}

// flush pads and writes a partial buffer
func (s *playbackSink) flush() {
	if s.fill == 0 {
		return
	}
	for i := s.fill; i < len(s.buffer); i++ {
		s.buffer[i] = 0
	}
	s.cursor.Advance(time.Now(), len(s.buffer)-s.fill)
	s.writeBuffer()
}

func (s *playbackSink) writeBuffer() {
	if err := s.stream.Write(); err != nil {
		s.logger.Warn("Speaker write failed", zap.Error(err))
	}
	s.fill = 0
}
