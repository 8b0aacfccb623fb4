package audio

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/satriahrh/oralexam/domain/entities"
)

// TimedSink forwards chunks to an emitter right away and reports completion from a clock timer.
// It suits remote renderers that schedule audio themselves, such as a browser.
type TimedSink struct {
	clock clock.Clock
	emit  func(chunk entities.PlaybackChunk, startAt time.Time)

	mu     sync.Mutex
	timers map[*clock.Timer]struct{}
	closed bool
}

// NewTimedSink creates a sink calling emit for each scheduled chunk
func NewTimedSink(clk clock.Clock, emit func(chunk entities.PlaybackChunk, startAt time.Time)) *TimedSink {
	return &TimedSink{
		clock:  clk,
		emit:   emit,
		timers: make(map[*clock.Timer]struct{}),
	}
}

// Play implements repositories.PlaybackSink
func (t *TimedSink) Play(chunk entities.PlaybackChunk, startAt time.Time, done func()) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.emit(chunk, startAt)

	wait := startAt.Add(chunk.Duration()).Sub(t.clock.Now())

	t.mu.Lock()
	defer t.mu.Unlock()
	var timer *clock.Timer
	timer = t.clock.AfterFunc(wait, func() {
		t.mu.Lock()
		_, live := t.timers[timer]
		delete(t.timers, timer)
		t.mu.Unlock()
		if live {
			done()
		}
	})
	t.timers[timer] = struct{}{}
}

// Reset implements repositories.PlaybackSink
func (t *TimedSink) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for timer := range t.timers {
		timer.Stop()
		delete(t.timers, timer)
	}
}

// Close implements repositories.PlaybackSink
func (t *TimedSink) Close() error {
	t.Reset()
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}
