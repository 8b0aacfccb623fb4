package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/satriahrh/oralexam/domain/entities"
	"github.com/satriahrh/oralexam/domain/repositories"
)

type fakeConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32

	// gate, when set, holds every realtimeInput write until it receives or is closed
	gate    chan struct{}
	blocked atomic.Int32

	mu      sync.Mutex
	written []map[string]interface{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	if _, ok := m["realtimeInput"]; ok && c.gate != nil {
		c.blocked.Add(1)
		select {
		case <-c.gate:
		case <-c.closed:
			return errors.New("write on closed connection")
		}
		c.blocked.Add(-1)
	}
	c.mu.Lock()
	c.written = append(c.written, m)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg, ok := <-c.inbound:
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		return msg, nil
	case <-c.closed:
		return nil, errors.New("read on closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) messages() []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]interface{}{}, c.written...)
}

type fakeDialer struct {
	conn  *fakeConn
	err   error
	dials atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context) (repositories.LiveConnection, error) {
	d.dials.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

type fakeStream struct {
	rate      int
	frames    chan []float32
	closeOnce sync.Once
	closes    atomic.Int32
}

func (s *fakeStream) SampleRate() int          { return s.rate }
func (s *fakeStream) Frames() <-chan []float32 { return s.frames }
func (s *fakeStream) Close() error {
	s.closes.Add(1)
	s.closeOnce.Do(func() { close(s.frames) })
	return nil
}

type fakeInput struct {
	stream *fakeStream
	// next holds the streams handed out by the second and later opens
	next  []*fakeStream
	err   error
	opens atomic.Int32
}

func (i *fakeInput) Open(ctx context.Context) (repositories.CaptureStream, error) {
	n := int(i.opens.Add(1))
	if i.err != nil {
		return nil, i.err
	}
	if n > 1 && n-2 < len(i.next) {
		return i.next[n-2], nil
	}
	return i.stream, nil
}

type fakeSink struct {
	mu     sync.Mutex
	plays  int
	resets int
	closes int
}

func (s *fakeSink) Play(chunk entities.PlaybackChunk, startAt time.Time, done func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
}

func (s *fakeSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSink) counts() (plays, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays, s.closes
}

type fakeOutput struct {
	sink *fakeSink
	err  error
}

func (o *fakeOutput) Open(ctx context.Context, sampleRate int) (repositories.PlaybackSink, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.sink, nil
}

type fakeResults struct {
	mu      sync.Mutex
	records []*entities.EvaluationRecord
}

func (r *fakeResults) Save(ctx context.Context, record *entities.EvaluationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *fakeResults) GetBySessionID(ctx context.Context, sessionID string) (*entities.EvaluationRecord, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeResults) ListRecent(ctx context.Context, limit int) ([]*entities.EvaluationRecord, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeResults) saved() []*entities.EvaluationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entities.EvaluationRecord{}, r.records...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
