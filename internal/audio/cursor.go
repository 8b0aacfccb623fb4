package audio

import "time"

// DeviceCursor tracks when the audio already written to a blocking output stream
// finishes playing. A blocking write returns while the device still holds queued
// samples, so start times are honoured only once the device has drained. While
// written audio is still playing, chunks are appended back-to-back.
type DeviceCursor struct {
	rate int
	end  time.Time
}

// NewDeviceCursor creates a cursor for a stream running at rate samples per second
func NewDeviceCursor(rate int) *DeviceCursor {
	return &DeviceCursor{rate: rate}
}

// Idle reports whether everything written so far has played by now
func (c *DeviceCursor) Idle(now time.Time) bool {
	return c.end.IsZero() || c.end.Before(now)
}

// Wait returns how long to hold a chunk requested to start at startAt.
// It is zero while earlier audio is still playing.
func (c *DeviceCursor) Wait(now, startAt time.Time) time.Duration {
	if !c.Idle(now) || !startAt.After(now) {
		return 0
	}
	return startAt.Sub(now)
}

// Advance records n samples written at now
func (c *DeviceCursor) Advance(now time.Time, n int) {
	if c.rate <= 0 || n <= 0 {
		return
	}
	if c.Idle(now) {
		c.end = now
	}
	c.end = c.end.Add(time.Duration(n) * time.Second / time.Duration(c.rate))
}

// End returns when the written audio finishes playing
func (c *DeviceCursor) End() time.Time {
	return c.end
}

// Reset forgets written audio
func (c *DeviceCursor) Reset() {
	c.end = time.Time{}
}
