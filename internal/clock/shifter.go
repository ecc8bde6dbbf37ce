// Package clock estimates per-session offsets between client-embedded frame
// timestamps and server wall-clock time, without assuming a shared clock.
package clock

import (
	"sync"
	"time"
)

// Now returns the current wall-clock time as fractional seconds since the
// epoch, the unit all frame timestamps use.
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Shifter caches one clock-shift estimate per session for the worker that owns
// it. The shift is set exactly once, from the first frame the worker sees for
// the session, and only changes when an explicit resync arrives.
type Shifter struct {
	mu     sync.Mutex
	shifts map[string]float64
}

func NewShifter() *Shifter {
	return &Shifter{shifts: make(map[string]float64)}
}

// Age returns the frame's age relative to the session's reference frame:
// now - timestamp + shift. The first call for a session calibrates the shift
// from that frame. After calibration the age of a frame sent d seconds after
// the reference frame is approximately d: elapsed time since the reference,
// not network latency. That simplification is intentional and load-bearing for
// the staleness admission check.
func (s *Shifter) Age(sessionID string, timestamp, now float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	shift, ok := s.shifts[sessionID]
	if !ok {
		shift = now - timestamp
		s.shifts[sessionID] = shift
	}
	return now - timestamp + shift
}

// Resync overwrites the session's cached shift from an explicit sync_clock
// message.
func (s *Shifter) Resync(sessionID string, timestamp, now float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shifts[sessionID] = now - timestamp
}

// Shift returns the session's cached shift, if calibrated.
func (s *Shifter) Shift(sessionID string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shift, ok := s.shifts[sessionID]
	return shift, ok
}
