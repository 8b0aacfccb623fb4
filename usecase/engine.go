package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/domain"
	"github.com/satriahrh/oralexam/domain/entities"
	"github.com/satriahrh/oralexam/domain/repositories"
	"github.com/satriahrh/oralexam/internal/audio"
	"github.com/satriahrh/oralexam/internal/live"
)

const (
	DefaultChunkSize      = 1600
	DefaultVolumeInterval = 100 * time.Millisecond
	DefaultVolumeGain     = 5.0

	persistTimeout = 5 * time.Second
)

// EngineConfig configures the session controller
type EngineConfig struct {
	Setup    live.SetupOptions
	Deadline SupervisorConfig
	Capture  audio.CaptureConfig
	// VolumeInterval throttles volume updates to the host
	VolumeInterval time.Duration
	// VolumeGain scales RMS before mapping it to 0-100
	VolumeGain float64
}

// Engine is the session controller. It owns at most one live session at a time.
type Engine struct {
	dialer    repositories.LiveDialer
	input     repositories.InputDevice
	output    repositories.OutputDevice
	results   repositories.ResultRepository
	extractor *ResultExtractor
	clock     clock.Clock
	config    EngineConfig
	logger    *zap.Logger

	mu        sync.Mutex
	current   *session
	listeners []func(entities.Snapshot)

	notifyMu sync.Mutex
}

// EngineDeps groups the collaborators of an Engine. Results may be nil.
type EngineDeps struct {
	Dialer  repositories.LiveDialer
	Input   repositories.InputDevice
	Output  repositories.OutputDevice
	Results repositories.ResultRepository
	Clock   clock.Clock
}

// NewEngine creates an idle engine
func NewEngine(deps EngineDeps, config EngineConfig, logger *zap.Logger) (*Engine, error) {
	if deps.Dialer == nil || deps.Input == nil || deps.Output == nil {
		return nil, errors.New("dialer, input and output are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if config.Capture.TargetRate <= 0 {
		config.Capture.TargetRate = live.InputSampleRate
	}
	if config.Capture.ChunkSize <= 0 {
		config.Capture.ChunkSize = DefaultChunkSize
	}
	if config.VolumeInterval <= 0 {
		config.VolumeInterval = DefaultVolumeInterval
	}
	if config.VolumeGain <= 0 {
		config.VolumeGain = DefaultVolumeGain
	}

	extractor, err := NewResultExtractor(logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		dialer:    deps.Dialer,
		input:     deps.Input,
		output:    deps.Output,
		results:   deps.Results,
		extractor: extractor,
		clock:     deps.Clock,
		config:    config,
		logger:    logger,
	}, nil
}

// OnChange registers a listener called with a fresh snapshot after every observable change.
// Listeners run synchronously and in order; they must not call back into the engine.
func (e *Engine) OnChange(fn func(entities.Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Snapshot returns the host-observable state
func (e *Engine) Snapshot() entities.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() entities.Snapshot {
	s := e.current
	if s == nil {
		return entities.Snapshot{
			State:    entities.SessionStateIdle,
			TimeLeft: secondsLeft(e.hardLimit()),
		}
	}

	snap := entities.Snapshot{
		SessionID:    s.entity.ID,
		State:        s.entity.State,
		IsConnected:  s.entity.State == entities.SessionStateConnected || s.entity.State == entities.SessionStateRecording,
		IsConnecting: s.entity.State == entities.SessionStateConnecting,
		IsRecording:  s.entity.State == entities.SessionStateRecording,
		Volume:       s.volume,
		TimeLeft:     s.timeLeft,
		Warning:      s.warning,
		Result:       s.entity.Result,
	}
	if s.entity.LastError != nil {
		snap.Error = s.entity.LastError.Error()
	}
	return snap
}

func (e *Engine) hardLimit() time.Duration {
	if e.config.Deadline.HardLimit > 0 {
		return e.config.Deadline.HardLimit
	}
	return DefaultHardLimit
}

func (e *Engine) notify() {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	snap := e.snapshotLocked()
	listeners := append([]func(entities.Snapshot){}, e.listeners...)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// Connect opens the model connection, sends the handshake and starts the deadline.
// A previous session that is still active makes it fail with domain.ErrSessionActive.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.current != nil && e.current.entity.IsActive() {
		e.mu.Unlock()
		return domain.ErrSessionActive
	}
	s := e.newSession()
	e.current = s
	e.mu.Unlock()
	e.notify()

	s.logger.Info("Connecting session")

	conn, err := e.dialer.Dial(ctx)
	if err != nil {
		err = &domain.ConnectionError{Op: "dial", Err: err}
		s.close(err)
		return err
	}

	setup, err := live.NewSetup(e.config.Setup)
	if err != nil {
		conn.Close()
		s.close(err)
		return err
	}
	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		err = &domain.ConnectionError{Op: "handshake", Err: err}
		s.close(err)
		return err
	}

	sink, err := e.output.Open(ctx, live.OutputSampleRate)
	if err != nil {
		conn.Close()
		err = &domain.DeviceError{Device: "output", Err: err}
		s.close(err)
		return err
	}

	scheduler := audio.NewScheduler(e.clock, sink, s.logger)
	supervisor := NewSupervisor(e.clock, e.config.Deadline, SupervisorHooks{
		OnTick:    s.onTick,
		OnWarning: s.onWarning,
		OnExpire:  s.onExpire,
	}, s.logger)

	e.mu.Lock()
	if s.closing.Load() {
		e.mu.Unlock()
		sink.Close()
		conn.Close()
		return domain.ErrSessionStopped
	}
	s.conn = conn
	s.sink = sink
	s.scheduler = scheduler
	s.supervisor = supervisor
	if err := s.entity.MarkConnected(e.clock.Now()); err != nil {
		e.mu.Unlock()
		s.close(err)
		return err
	}
	supervisor.Start()
	e.mu.Unlock()

	go s.readLoop()

	s.logger.Info("Session connected")
	e.notify()
	return nil
}

// StartRecording attaches the microphone. It is a no-op unless the session is connected and idle.
func (e *Engine) StartRecording(ctx context.Context) error {
	s := e.session()
	if s == nil {
		return nil
	}
	s.recordMu.Lock()
	defer s.recordMu.Unlock()

	if state := e.stateOf(s); state != entities.SessionStateConnected {
		s.logger.Debug("Ignoring start recording", zap.String("state", string(state)))
		return nil
	}

	stream, err := e.input.Open(ctx)
	if err != nil {
		err = &domain.DeviceError{Device: "input", Err: err}
		s.close(err)
		return err
	}
	capture, err := audio.NewCapture(stream, e.config.Capture, s.onVolume, s.logger)
	if err != nil {
		stream.Close()
		err = &domain.DeviceError{Device: "input", Err: err}
		s.close(err)
		return err
	}

	e.mu.Lock()
	if s.closing.Load() || s.entity.State != entities.SessionStateConnected {
		e.mu.Unlock()
		stream.Close()
		return nil
	}
	if err := s.entity.Transition(entities.SessionStateRecording); err != nil {
		e.mu.Unlock()
		stream.Close()
		return err
	}
	recCtx, cancel := context.WithCancel(s.ctx)
	rec := &recording{stream: stream, cancel: cancel, sent: make(chan struct{})}
	s.rec = rec
	e.mu.Unlock()

	go s.captureLoop(recCtx, capture)
	go s.sendLoop(rec, capture.Chunks())

	s.logger.Info("Recording started", zap.Int("nativeRate", stream.SampleRate()))
	e.notify()
	return nil
}

// StopRecording releases the microphone and returns to connected once every captured
// chunk has been written. It is a no-op unless recording.
func (e *Engine) StopRecording() error {
	s := e.session()
	if s == nil {
		return nil
	}
	s.recordMu.Lock()
	defer s.recordMu.Unlock()

	e.mu.Lock()
	if s.entity.State != entities.SessionStateRecording {
		e.mu.Unlock()
		return nil
	}
	rec := s.rec
	e.mu.Unlock()

	rec.release()
	<-rec.sent

	e.mu.Lock()
	if s.rec != rec || s.entity.State != entities.SessionStateRecording {
		// torn down while draining
		e.mu.Unlock()
		return nil
	}
	s.rec = nil
	s.volume = 0
	err := s.entity.Transition(entities.SessionStateConnected)
	e.mu.Unlock()

	s.logger.Info("Recording stopped")
	e.notify()
	return err
}

// Stop tears the current session down. Stopping an ended session is a no-op.
func (e *Engine) Stop() error {
	if s := e.session(); s != nil {
		s.close(nil)
	}
	return nil
}

func (e *Engine) session() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) stateOf(s *session) entities.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.entity.State
}

func (e *Engine) newSession() *session {
	entity := entities.NewSession(e.clock.Now())
	_ = entity.Transition(entities.SessionStateConnecting)
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		engine:   e,
		entity:   entity,
		ctx:      ctx,
		cancel:   cancel,
		timeLeft: secondsLeft(e.hardLimit()),
		logger:   e.logger.With(zap.String("sessionID", entity.ID)),
	}
}

type recording struct {
	stream    repositories.CaptureStream
	cancel    context.CancelFunc
	closeOnce sync.Once
	// sent is closed when the sender has drained every chunk of this recording
	sent chan struct{}
}

func (r *recording) release() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() {
		r.cancel()
		r.stream.Close()
	})
}

// session holds the resources of one connect..stop cycle.
// Fields below mu are guarded by engine.mu.
type session struct {
	engine *Engine
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	closing  atomic.Bool
	recordMu sync.Mutex

	entity       *entities.Session
	conn         repositories.LiveConnection
	sink         repositories.PlaybackSink
	scheduler    *audio.Scheduler
	supervisor   *Supervisor
	rec          *recording
	volume       int
	lastVolumeAt time.Time
	timeLeft     int
	warning      bool
}

// close runs the teardown once, whichever of user stop, result, deadline or failure gets here first.
// A nil cause ends in Terminated, anything else in Errored.
func (s *session) close(cause error) {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	e := s.engine

	e.mu.Lock()
	now := e.clock.Now()
	if cause != nil {
		if err := s.entity.Fail(cause, now); err != nil {
			s.logger.Warn("Unexpected state on failure", zap.Error(err))
		}
	} else if err := s.entity.Transition(entities.SessionStateTerminating); err != nil {
		s.logger.Warn("Unexpected state on stop", zap.Error(err))
	}
	rec := s.rec
	s.rec = nil
	s.volume = 0
	conn, sink, scheduler, supervisor := s.conn, s.sink, s.scheduler, s.supervisor
	e.mu.Unlock()
	e.notify()

	s.cancel()
	rec.release()
	if supervisor != nil {
		supervisor.Stop()
	}
	if scheduler != nil {
		scheduler.Clear()
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			s.logger.Warn("Failed to close output device", zap.Error(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("Connection close", zap.Error(err))
		}
	}

	e.mu.Lock()
	if cause == nil {
		if err := s.entity.Terminate(e.clock.Now()); err != nil {
			s.logger.Warn("Unexpected state on terminate", zap.Error(err))
		}
	}
	result := s.entity.Result
	elapsed := s.entity.Elapsed
	e.mu.Unlock()

	if cause != nil {
		s.logger.Error("Session failed", zap.Error(cause), zap.Duration("elapsed", elapsed))
	} else {
		s.logger.Info("Session terminated",
			zap.Duration("elapsed", elapsed),
			zap.Bool("hasResult", result != nil))
	}

	s.persist(result)
	e.notify()
}

func (s *session) persist(result *entities.EvaluationResult) {
	repo := s.engine.results
	if repo == nil || result == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	record := &entities.EvaluationRecord{
		ID:        uuid.New().String(),
		SessionID: s.entity.ID,
		Result:    *result,
		CreatedAt: s.engine.clock.Now(),
	}
	if err := repo.Save(ctx, record); err != nil {
		s.logger.Error("Failed to save evaluation result", zap.Error(err))
	}
}

func (s *session) readLoop() {
	conn := s.conn
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if !s.closing.Load() {
				s.close(&domain.ConnectionError{Op: "read", Err: err})
			}
			return
		}

		msgs, err := live.Parse(data)
		if err != nil {
			s.logger.Warn("Ignoring inbound message", zap.Error(err))
			continue
		}
		for _, msg := range msgs {
			if done := s.handle(msg); done {
				return
			}
		}
	}
}

// handle dispatches one inbound event and reports whether the session is over
func (s *session) handle(msg live.Message) bool {
	if s.closing.Load() {
		return true
	}
	switch m := msg.(type) {
	case live.AudioPart:
		chunk, err := m.Decode()
		if err != nil {
			s.logger.Warn("Dropping audio payload", zap.Error(err))
			return false
		}
		s.scheduler.Enqueue(chunk)
	case live.Interrupted:
		s.logger.Debug("Model turn interrupted")
		s.scheduler.Clear()
	case live.TurnComplete:
		s.logger.Debug("Model turn complete")
	case live.SetupComplete:
		s.logger.Info("Setup acknowledged")
	case live.ToolCall:
		return s.handleToolCall(m)
	case live.Unknown:
		s.logger.Debug("Ignoring unknown message", zap.Int("size", len(m.Raw)))
	}
	return false
}

func (s *session) handleToolCall(m live.ToolCall) bool {
	x := s.engine.extractor
	for _, call := range m.Calls {
		if !x.Matches(call) {
			s.logger.Warn("Ignoring unexpected function call", zap.String("name", call.Name))
			continue
		}

		result, err := x.Extract(call)
		if err != nil {
			s.logger.Warn("Discarding evaluation result", zap.Error(err))
		} else {
			s.engine.mu.Lock()
			s.entity.Result = result
			s.engine.mu.Unlock()
		}
		s.close(nil)
		return true
	}
	return false
}

func (s *session) captureLoop(ctx context.Context, capture *audio.Capture) {
	capture.Run(ctx)
	if ctx.Err() == nil {
		s.close(&domain.DeviceError{Device: "input", Err: errors.New("capture stream ended")})
	}
}

// sendLoop is the only writer of audio frames while rec is live, so chunks leave in production order.
// A new recording cannot start before rec.sent is closed.
func (s *session) sendLoop(rec *recording, chunks <-chan entities.OutgoingAudioChunk) {
	defer close(rec.sent)
	for chunk := range chunks {
		if err := s.conn.WriteJSON(live.NewAudioInput(chunk)); err != nil {
			if !s.closing.Load() {
				s.close(&domain.ConnectionError{Op: "send", Err: err})
			}
			return
		}
	}
}

func (s *session) onVolume(rms float64) {
	e := s.engine
	e.mu.Lock()
	now := e.clock.Now()
	if !s.lastVolumeAt.IsZero() && now.Sub(s.lastVolumeAt) < e.config.VolumeInterval {
		e.mu.Unlock()
		return
	}
	if s.rec == nil {
		e.mu.Unlock()
		return
	}
	s.lastVolumeAt = now
	if math.IsNaN(rms) {
		rms = 0
	}
	s.volume = int(math.Min(100, math.Round(rms*100*e.config.VolumeGain)))
	e.mu.Unlock()
	e.notify()
}

func (s *session) onTick(timeLeft int) {
	s.engine.mu.Lock()
	changed := s.timeLeft != timeLeft
	s.timeLeft = timeLeft
	s.engine.mu.Unlock()
	if changed {
		s.engine.notify()
	}
}

func (s *session) onWarning() {
	s.engine.mu.Lock()
	s.warning = true
	s.engine.mu.Unlock()
	s.engine.notify()
}

func (s *session) onExpire() {
	s.logger.Info("Stopping session", zap.Error(domain.ErrDeadlineExceeded))
	s.close(nil)
}
