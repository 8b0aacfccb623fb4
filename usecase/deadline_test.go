package usecase

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"
)

func TestSupervisor_TimeLeftCeiling(t *testing.T) {
	clk := clock.NewMock()
	s := NewSupervisor(clk, SupervisorConfig{HardLimit: 300 * time.Second, WarningThreshold: 270 * time.Second}, SupervisorHooks{}, zaptest.NewLogger(t))
	s.Start()
	defer s.Stop()
	start := s.State().StartedAt

	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 300},
		{500 * time.Millisecond, 300},
		{time.Second, 299},
		{269*time.Second + 100*time.Millisecond, 31},
		{299*time.Second + time.Millisecond, 1},
	}
	for _, tt := range tests {
		s.tick(start.Add(tt.elapsed))
		if got := s.TimeLeft(); got != tt.want {
			t.Errorf("after %v: expected %d seconds left, got %d", tt.elapsed, tt.want, got)
		}
	}
}

func TestSupervisor_TimeLeftNeverIncreases(t *testing.T) {
	s := NewSupervisor(clock.NewMock(), SupervisorConfig{HardLimit: 10 * time.Second}, SupervisorHooks{}, zaptest.NewLogger(t))
	start := s.State().StartedAt

	s.tick(start.Add(4 * time.Second))
	s.tick(start.Add(2 * time.Second))
	if got := s.TimeLeft(); got != 6 {
		t.Errorf("Expected 6 after a late tick, got %d", got)
	}
}

func TestSupervisor_WarningFiresOnce(t *testing.T) {
	var warnings atomic.Int32
	s := NewSupervisor(clock.NewMock(), SupervisorConfig{
		HardLimit:        300 * time.Second,
		WarningThreshold: 270 * time.Second,
	}, SupervisorHooks{OnWarning: func() { warnings.Add(1) }}, zaptest.NewLogger(t))
	start := s.State().StartedAt

	if s.tick(start.Add(269 * time.Second)) {
		t.Fatal("Expected no expiry before the limit")
	}
	if warnings.Load() != 0 {
		t.Error("Expected no warning before the threshold")
	}
	s.tick(start.Add(270 * time.Second))
	s.tick(start.Add(271 * time.Second))
	s.tick(start.Add(280 * time.Second))

	if warnings.Load() != 1 {
		t.Errorf("Expected one warning, got %d", warnings.Load())
	}
	if !s.State().WarningFired {
		t.Error("Expected WarningFired to be set")
	}
}

func TestSupervisor_ExpiresExactlyOnce(t *testing.T) {
	var expiries atomic.Int32
	var zeros atomic.Int32
	s := NewSupervisor(clock.NewMock(), SupervisorConfig{HardLimit: 5 * time.Second}, SupervisorHooks{
		OnTick: func(left int) {
			if left == 0 {
				zeros.Add(1)
			}
		},
		OnExpire: func() { expiries.Add(1) },
	}, zaptest.NewLogger(t))
	start := s.State().StartedAt

	if s.tick(start.Add(4999 * time.Millisecond)) {
		t.Fatal("Expected no expiry before 5s")
	}
	if !s.tick(start.Add(5 * time.Second)) {
		t.Fatal("Expected expiry at 5s")
	}
	if !s.tick(start.Add(6 * time.Second)) {
		t.Fatal("Expected expiry to stick")
	}

	if expiries.Load() != 1 {
		t.Errorf("Expected one expiry, got %d", expiries.Load())
	}
	if zeros.Load() != 1 {
		t.Errorf("Expected timeLeft to reach 0 once, got %d", zeros.Load())
	}
}

func TestSupervisor_TickerDrivesExpiry(t *testing.T) {
	clk := clock.NewMock()
	expired := make(chan struct{})
	var once sync.Once
	s := NewSupervisor(clk, SupervisorConfig{HardLimit: 3 * time.Second, TickInterval: time.Second}, SupervisorHooks{
		OnExpire: func() { once.Do(func() { close(expired) }) },
	}, zaptest.NewLogger(t))
	s.Start()
	defer s.Stop()

	for i := 1; i <= 3; i++ {
		clk.Add(time.Second)
		want := 3 - i
		waitFor(t, "tick", func() bool { return s.TimeLeft() == want })
	}

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("Expected expiry after the hard limit")
	}
}

func TestSupervisor_StopCancelsTimer(t *testing.T) {
	clk := clock.NewMock()
	var expiries atomic.Int32
	s := NewSupervisor(clk, SupervisorConfig{HardLimit: 2 * time.Second, TickInterval: time.Second}, SupervisorHooks{
		OnExpire: func() { expiries.Add(1) },
	}, zaptest.NewLogger(t))
	s.Start()
	s.Stop()
	s.Stop()

	clk.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if expiries.Load() != 0 {
		t.Error("Expected no expiry after Stop")
	}
}
