package clock

import (
	"math"
	"time"

	"github.com/oshiro-ai/hotaru/internal/model"
)

// DefaultWindowSeconds is the liveness window applied when the caller passes
// a non-positive one.
const DefaultWindowSeconds = 30

// IsActive reports whether e counts as "working" at now: its age in whole
// seconds is within windowSeconds. Producer clocks can run ahead of ours, so
// an emission timestamped up to windowSeconds in the future is active too
// rather than flickering off until our clock catches up.
func IsActive(e *model.Emission, windowSeconds int, now time.Time) bool {
	if e == nil || e.Timestamp.IsZero() {
		return false
	}
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindowSeconds
	}
	delta := int(math.Floor(now.Sub(e.Timestamp).Seconds()))
	if delta < 0 {
		delta = -delta
	}
	return delta <= windowSeconds
}
