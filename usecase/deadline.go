package usecase

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/domain/entities"
)

const (
	DefaultHardLimit        = 300 * time.Second
	DefaultWarningThreshold = 270 * time.Second
	DefaultTickInterval     = time.Second
)

// SupervisorConfig holds the wall-clock budget of a session
type SupervisorConfig struct {
	HardLimit        time.Duration
	WarningThreshold time.Duration
	TickInterval     time.Duration
}

// SupervisorHooks are invoked from the supervisor goroutine, never under its lock
type SupervisorHooks struct {
	OnTick    func(timeLeft int)
	OnWarning func()
	OnExpire  func()
}

// Supervisor enforces the hard limit of one session.
// It counts from Start, publishes the remaining whole seconds on every tick,
// raises the warning flag once and calls OnExpire exactly once at the limit.
type Supervisor struct {
	clock  clock.Clock
	config SupervisorConfig
	hooks  SupervisorHooks
	logger *zap.Logger

	mu       sync.Mutex
	state    entities.DeadlineState
	timeLeft int
	started  bool
	expired  bool

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSupervisor creates a stopped supervisor
func NewSupervisor(clk clock.Clock, config SupervisorConfig, hooks SupervisorHooks, logger *zap.Logger) *Supervisor {
	if config.HardLimit <= 0 {
		config.HardLimit = DefaultHardLimit
	}
	if config.WarningThreshold <= 0 || config.WarningThreshold > config.HardLimit {
		config.WarningThreshold = config.HardLimit
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	return &Supervisor{
		clock:    clk,
		config:   config,
		hooks:    hooks,
		logger:   logger,
		timeLeft: secondsLeft(config.HardLimit),
		stop:     make(chan struct{}),
		state: entities.DeadlineState{
			HardLimit:        config.HardLimit,
			WarningThreshold: config.WarningThreshold,
		},
	}
}

// Start begins counting. Calling it more than once has no effect.
func (s *Supervisor) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.state.StartedAt = s.clock.Now()
	s.mu.Unlock()

	ticker := s.clock.Ticker(s.config.TickInterval)
	go s.run(ticker)
}

// Stop cancels the timer. It is safe to call from any goroutine, including OnExpire.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// TimeLeft returns the remaining whole seconds, rounded up
func (s *Supervisor) TimeLeft() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeLeft
}

// State returns a copy of the deadline state
func (s *Supervisor) State() entities.DeadlineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) run(ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			if s.tick(now) {
				return
			}
		}
	}
}

// tick evaluates the deadline at now and reports whether it has expired
func (s *Supervisor) tick(now time.Time) bool {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return true
	}

	elapsed := now.Sub(s.state.StartedAt)
	left := secondsLeft(s.config.HardLimit - elapsed)
	if left < s.timeLeft {
		s.timeLeft = left
	}
	timeLeft := s.timeLeft

	warn := false
	if !s.state.WarningFired && elapsed >= s.config.WarningThreshold {
		s.state.WarningFired = true
		warn = true
	}

	expire := false
	if elapsed >= s.config.HardLimit {
		s.expired = true
		s.timeLeft = 0
		timeLeft = 0
		expire = true
	}
	s.mu.Unlock()

	if s.hooks.OnTick != nil {
		s.hooks.OnTick(timeLeft)
	}
	if warn {
		s.logger.Info("Session time almost up", zap.Int("timeLeft", timeLeft))
		if s.hooks.OnWarning != nil {
			s.hooks.OnWarning()
		}
	}
	if expire {
		s.logger.Info("Session hard limit reached", zap.Duration("elapsed", elapsed))
		if s.hooks.OnExpire != nil {
			s.hooks.OnExpire()
		}
	}
	return expire
}

func secondsLeft(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
