package notify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oshiro-ai/hotaru/internal/model"
	"github.com/oshiro-ai/hotaru/internal/notify"
)

func badgeEmission(id string, kind model.Kind, ts time.Time) model.Emission {
	return model.Emission{
		ID:         id,
		SourceType: "agent",
		SourceID:   "agent-7",
		Kind:       kind,
		Summary:    "event " + id,
		Timestamp:  ts,
	}
}

func TestBadge_Scenario(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	notifications := []model.Notification{
		{ID: "n-1", Type: model.NotifComment, Title: "t", Message: "m", Read: false, CreatedAt: now},
	}
	emissions := []model.Emission{
		badgeEmission("e-1", model.KindError, now),
		badgeEmission("e-2", model.KindProgress, now.Add(-60*time.Second)),
		badgeEmission("e-3", model.KindStatus, now),
	}
	// 1 unread + error@now + progress@now-60s; status is not actionable.
	assert.Equal(t, 3, notify.Badge(notifications, emissions, now))
}

func TestBadge_WindowBoundary(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	emissions := []model.Emission{
		badgeEmission("edge", model.KindMilestone, now.Add(-120*time.Second)),
		badgeEmission("past", model.KindError, now.Add(-121*time.Second)),
	}
	assert.Equal(t, 1, notify.Badge(nil, emissions, now), "120s is inclusive, 121s is out")
}

func TestBadge_ReadNotificationsDoNotCount(t *testing.T) {
	now := time.Now()
	notifications := []model.Notification{
		{ID: "n-1", Read: true},
		{ID: "n-2", Read: false},
		{ID: "n-3", Read: false},
	}
	assert.Equal(t, 2, notify.Badge(notifications, nil, now))
}

func TestBadge_EmptyInputs(t *testing.T) {
	assert.Zero(t, notify.Badge(nil, nil, time.Now()))
}
