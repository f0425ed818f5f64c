package notify

import (
	"time"

	"github.com/oshiro-ai/hotaru/internal/clock"
	"github.com/oshiro-ai/hotaru/internal/model"
)

// ActionableWindowSeconds is the recency window for an emission to count
// toward the badge. It is fixed and independent of the liveness window used
// for per-item "is working" state.
const ActionableWindowSeconds = 120

// actionableKinds are the emission kinds that warrant the user's attention.
var actionableKinds = map[model.Kind]bool{
	model.KindError:     true,
	model.KindMilestone: true,
	model.KindProgress:  true,
}

// Badge derives the single dashboard badge integer: unread notifications
// plus actionable emissions no older than the actionable window. Pure;
// recompute whenever either input or now changes.
func Badge(notifications []model.Notification, emissions []model.Emission, now time.Time) int {
	count := 0
	for _, n := range notifications {
		if !n.Read {
			count++
		}
	}
	for i := range emissions {
		if !actionableKinds[emissions[i].Kind] {
			continue
		}
		if clock.IsActive(&emissions[i], ActionableWindowSeconds, now) {
			count++
		}
	}
	return count
}
