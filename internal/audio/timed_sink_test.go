package audio

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/satriahrh/oralexam/domain/entities"
)

func TestTimedSink_CompletesAfterChunkDuration(t *testing.T) {
	clk := clock.NewMock()
	var emitted []time.Time
	sink := NewTimedSink(clk, func(_ entities.PlaybackChunk, startAt time.Time) {
		emitted = append(emitted, startAt)
	})

	done := make(chan struct{})
	start := clk.Now()
	sink.Play(chunkOf(100*time.Millisecond), start, func() { close(done) })

	if len(emitted) != 1 || !emitted[0].Equal(start) {
		t.Fatalf("emit was not called with start time, got %v", emitted)
	}

	clk.Add(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("completion fired before the chunk finished")
	case <-time.After(20 * time.Millisecond):
	}

	clk.Add(50 * time.Millisecond)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion did not fire")
	}
}

func TestTimedSink_ResetCancelsCompletions(t *testing.T) {
	clk := clock.NewMock()
	sink := NewTimedSink(clk, func(entities.PlaybackChunk, time.Time) {})

	fired := make(chan struct{}, 1)
	sink.Play(chunkOf(100*time.Millisecond), clk.Now(), func() { fired <- struct{}{} })
	sink.Reset()

	clk.Add(200 * time.Millisecond)
	select {
	case <-fired:
		t.Fatal("completion fired after Reset")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTimedSink_DropsAfterClose(t *testing.T) {
	clk := clock.NewMock()
	calls := 0
	sink := NewTimedSink(clk, func(entities.PlaybackChunk, time.Time) { calls++ })

	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	sink.Play(chunkOf(10*time.Millisecond), clk.Now(), func() {})
	if calls != 0 {
		t.Errorf("emit called %d times after Close", calls)
	}
}
