package audio

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/domain/entities"
	"github.com/satriahrh/oralexam/domain/repositories"
)

// Scheduler plays chunks back-to-back in arrival order.
//
// A chunk starts at max(now, nextPlayTime). When it finishes, nextPlayTime
// advances by its duration and the next queued chunk is scheduled right away.
// When the queue runs dry nextPlayTime is reset to the current clock time so a
// later burst is not scheduled against a stale timestamp.
type Scheduler struct {
	clock  clock.Clock
	sink   repositories.PlaybackSink
	logger *zap.Logger

	mu           sync.Mutex
	queue        []entities.PlaybackChunk
	nextPlayTime time.Time
	scheduling   bool
	generation   uint64
	scheduled    int
}

type playRequest struct {
	chunk   entities.PlaybackChunk
	startAt time.Time
	done    func()
}

// NewScheduler creates a scheduler rendering through sink
func NewScheduler(clk clock.Clock, sink repositories.PlaybackSink, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		clock:        clk,
		sink:         sink,
		logger:       logger,
		nextPlayTime: clk.Now(),
	}
}

// Enqueue appends a chunk and starts playback if nothing is playing. It never blocks on playback.
func (s *Scheduler) Enqueue(chunk entities.PlaybackChunk) {
	if len(chunk.Samples) == 0 {
		return
	}

	s.mu.Lock()
	s.queue = append(s.queue, chunk)
	var req *playRequest
	if !s.scheduling {
		s.scheduling = true
		req = s.nextLocked()
	}
	s.mu.Unlock()

	s.play(req)
}

// Clear drops queued chunks and forgets in-flight completions
func (s *Scheduler) Clear() {
	s.mu.Lock()
	dropped := len(s.queue)
	s.queue = nil
	s.scheduling = false
	s.generation++
	s.nextPlayTime = s.clock.Now()
	s.mu.Unlock()

	s.sink.Reset()
	if dropped > 0 {
		s.logger.Debug("Playback queue cleared", zap.Int("dropped", dropped))
	}
}

// Pending returns the number of chunks waiting behind the one playing
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Scheduled returns how many chunks have been handed to the sink
func (s *Scheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled
}

// nextLocked pops the head of the queue and computes its start time
func (s *Scheduler) nextLocked() *playRequest {
	if len(s.queue) == 0 {
		s.scheduling = false
		return nil
	}
	chunk := s.queue[0]
	s.queue[0] = entities.PlaybackChunk{}
	s.queue = s.queue[1:]

	now := s.clock.Now()
	startAt := s.nextPlayTime
	if now.After(startAt) {
		startAt = now
	}
	s.scheduled++

	gen := s.generation
	duration := chunk.Duration()
	return &playRequest{
		chunk:   chunk,
		startAt: startAt,
		done: func() {
			s.ended(gen, startAt, duration)
		},
	}
}

func (s *Scheduler) ended(gen uint64, startAt time.Time, duration time.Duration) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.nextPlayTime = startAt.Add(duration)

	var req *playRequest
	if len(s.queue) > 0 {
		req = s.nextLocked()
	} else {
		s.scheduling = false
		s.nextPlayTime = s.clock.Now()
	}
	s.mu.Unlock()

	s.play(req)
}

func (s *Scheduler) play(req *playRequest) {
	if req == nil {
		return
	}
	s.sink.Play(req.chunk, req.startAt, req.done)
}
