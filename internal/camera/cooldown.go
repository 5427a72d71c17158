package camera

import "time"

// CooldownManager suppresses duplicate crossing events for the same track
// within a configurable window. Cooldown is per track, never global: two
// simultaneous objects of the same label stay independently eligible.
type CooldownManager struct {
	window time.Duration
}

// NewCooldownManager creates a manager with the given window. A zero
// window disables suppression.
func NewCooldownManager(window time.Duration) *CooldownManager {
	return &CooldownManager{window: window}
}

// MayEmit reports whether a crossing for this track may be emitted now.
// Crossings inside the window are discarded, not deferred.
func (c *CooldownManager) MayEmit(track *Track, now time.Time) bool {
	return !now.Before(track.CooldownUntil)
}

// Arm starts the track's cooldown after an event has been accepted.
func (c *CooldownManager) Arm(track *Track, now time.Time) {
	track.CooldownUntil = now.Add(c.window)
}

// Window returns the configured cooldown window.
func (c *CooldownManager) Window() time.Duration { return c.window }
