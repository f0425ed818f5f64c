package notify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oshiro-ai/hotaru/internal/model"
	"github.com/oshiro-ai/hotaru/internal/notify"
)

var routeNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func TestKindOf(t *testing.T) {
	assert.Equal(t, notify.KindTaskCreated, notify.KindOf("TaskCreated"))
	assert.Equal(t, notify.KindDMMessageReceived, notify.KindOf("DMMessageReceived"))
	assert.Equal(t, notify.KindUnrecognized, notify.KindOf("EmissionReceived"))
	assert.Equal(t, notify.KindUnrecognized, notify.KindOf(""))
	assert.Equal(t, notify.KindUnrecognized, notify.KindOf("taskcreated"), "kind matching is case-sensitive")
}

func TestRoute_TaskCreated(t *testing.T) {
	n, ok := notify.Route(notify.KindTaskCreated, map[string]any{
		"title":   "Fix the build",
		"task_id": "task-9",
	}, routeNow)
	require.True(t, ok)
	assert.Equal(t, model.NotifTaskAssigned, n.Type)
	assert.Equal(t, "New task assigned", n.Title)
	assert.Equal(t, `You were assigned "Fix the build"`, n.Message)
	assert.Equal(t, "task", n.SourceType)
	assert.Equal(t, "task-9", n.SourceID)
	assert.False(t, n.Read)
	assert.Equal(t, routeNow, n.CreatedAt)
	assert.NotEmpty(t, n.ID)
}

func TestRoute_TaskUpdated_NestedTask(t *testing.T) {
	n, ok := notify.Route(notify.KindTaskUpdated, map[string]any{
		"task": map[string]any{"id": "task-3", "title": "Ship it"},
	}, routeNow)
	require.True(t, ok)
	assert.Equal(t, model.NotifTaskUpdated, n.Type)
	assert.Equal(t, `"Ship it" was updated`, n.Message)
	assert.Equal(t, "task-3", n.SourceID)
}

func TestRoute_TaskStatusChanged(t *testing.T) {
	n, ok := notify.Route(notify.KindTaskStatusChanged, map[string]any{
		"title":  "Ship it",
		"status": "in_review",
	}, routeNow)
	require.True(t, ok)
	assert.Equal(t, model.NotifTaskUpdated, n.Type)
	assert.Equal(t, `"Ship it" is now in_review`, n.Message)

	n, ok = notify.Route(notify.KindTaskStatusChanged, nil, routeNow)
	require.True(t, ok)
	assert.Equal(t, "A task changed status", n.Message)
}

func TestRoute_CommentAdded(t *testing.T) {
	n, ok := notify.Route(notify.KindCommentAdded, map[string]any{
		"preview": "looks good to me",
		"author":  "rin",
	}, routeNow)
	require.True(t, ok)
	assert.Equal(t, model.NotifComment, n.Type)
	assert.Equal(t, "looks good to me", n.Message)
	assert.Equal(t, "comment", n.SourceType)
	assert.Equal(t, "rin", n.ActorName)
}

func TestRoute_AgentStatus_TopLevelWinsOverNested(t *testing.T) {
	payload := map[string]any{
		"agent_name": "builder-2",
		"status":     "idle",
		"agent": map[string]any{
			"name":   "stale-name",
			"status": "stale-status",
			"id":     "agent-2",
		},
	}
	for _, kind := range []notify.Kind{notify.KindAgentStatusUpdated, notify.KindAgentStatusChanged} {
		n, ok := notify.Route(kind, payload, routeNow)
		require.True(t, ok, "kind %s", kind)
		assert.Equal(t, model.NotifAgentUpdate, n.Type)
		assert.Equal(t, "builder-2", n.Title)
		assert.Equal(t, "builder-2 is now idle", n.Message)
		assert.Equal(t, "agent-2", n.SourceID, "nested id still used when no top-level id")
	}
}

func TestRoute_AgentStatus_NestedFallback(t *testing.T) {
	n, ok := notify.Route(notify.KindAgentStatusUpdated, map[string]any{
		"agent": map[string]any{"name": "builder-2", "status": "busy"},
	}, routeNow)
	require.True(t, ok)
	assert.Equal(t, "builder-2 is now busy", n.Message)
}

func TestRoute_DMMessageReceived(t *testing.T) {
	n, ok := notify.Route(notify.KindDMMessageReceived, map[string]any{
		"preview": "ping me when done",
		"from":    "mika",
	}, routeNow)
	require.True(t, ok)
	assert.Equal(t, model.NotifMention, n.Type)
	assert.Equal(t, "ping me when done", n.Message)
	assert.Equal(t, "mika", n.ActorName)
}

func TestRoute_Unrecognized(t *testing.T) {
	_, ok := notify.Route(notify.KindUnrecognized, map[string]any{"anything": "here"}, routeNow)
	assert.False(t, ok)
	_, ok = notify.Route(notify.Kind("SomethingNew"), nil, routeNow)
	assert.False(t, ok)
}

func TestRoute_PayloadIDPreserved(t *testing.T) {
	n, ok := notify.Route(notify.KindCommentAdded, map[string]any{"id": "ntf-42", "preview": "hi"}, routeNow)
	require.True(t, ok)
	assert.Equal(t, "ntf-42", n.ID)
}

func TestRoute_GenericMessagesOnEmptyPayload(t *testing.T) {
	tests := []struct {
		kind notify.Kind
		want string
	}{
		{notify.KindTaskCreated, "A task was assigned to you"},
		{notify.KindTaskUpdated, "A task was updated"},
		{notify.KindCommentAdded, "You have a new comment"},
		{notify.KindDMMessageReceived, "You have a new message"},
		{notify.KindAgentStatusUpdated, "An agent's status changed"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			n, ok := notify.Route(tt.kind, nil, routeNow)
			require.True(t, ok)
			assert.Equal(t, tt.want, n.Message)
		})
	}
}
