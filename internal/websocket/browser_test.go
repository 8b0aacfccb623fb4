package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/oralexam/domain/entities"
)

func TestBrowserInput_Lifecycle(t *testing.T) {
	input := newBrowserInput(48000, zaptest.NewLogger(t))

	// Frames before the microphone opens are dropped.
	input.push(float32Frame(0.1))

	stream, err := input.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if stream.SampleRate() != 48000 {
		t.Errorf("Expected 48000, got %d", stream.SampleRate())
	}
	if _, err := input.Open(context.Background()); err == nil {
		t.Error("Expected error opening a busy microphone")
	}

	input.push([]byte{1, 2, 3})
	input.push(float32Frame(0.25, 0.75))

	frame := <-stream.Frames()
	if len(frame) != 2 || frame[0] != 0.25 {
		t.Errorf("Unexpected frame %v", frame)
	}

	stream.Close()
	stream.Close()
	if _, ok := <-stream.Frames(); ok {
		t.Error("Expected closed frames channel")
	}
	input.push(float32Frame(0.1))

	input.setRate(16000)
	reopened, err := input.Open(context.Background())
	if err != nil {
		t.Fatalf("Reopen error: %v", err)
	}
	if reopened.SampleRate() != 16000 {
		t.Errorf("Expected 16000 after setRate, got %d", reopened.SampleRate())
	}
}

func TestBrowserOutput_EmitsScheduledAudio(t *testing.T) {
	mock := clock.NewMock()

	var mu sync.Mutex
	var sent []*AudioMessage
	output := newBrowserOutput(mock, func(v interface{}) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, v.(*AudioMessage))
	})

	sink, err := output.Open(context.Background(), 24000)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	done := make(chan struct{})
	chunk := entities.PlaybackChunk{Samples: make([]float32, 2400), SampleRate: 24000}
	sink.Play(chunk, mock.Now().Add(50*time.Millisecond), func() { close(done) })

	mu.Lock()
	if len(sent) != 1 {
		t.Fatalf("Expected 1 audio message, got %d", len(sent))
	}
	if sent[0].StartAtMs-sent[0].SentAtMs != 50 {
		t.Errorf("Expected 50ms lead, got %d", sent[0].StartAtMs-sent[0].SentAtMs)
	}
	mu.Unlock()

	mock.Add(150 * time.Millisecond)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected completion after the chunk played")
	}
	sink.Close()
}
