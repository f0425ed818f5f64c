// Package notify turns recognized push messages into user-facing
// notifications, owns the notification list, and derives the badge count.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oshiro-ai/hotaru/internal/model"
)

// Kind is the closed set of push-message kinds the router recognizes.
// KindUnrecognized is an explicit variant rather than a nil return, so adding
// a new kind means extending one switch instead of hunting for silent drops.
type Kind string

const (
	KindTaskCreated        Kind = "TaskCreated"
	KindTaskUpdated        Kind = "TaskUpdated"
	KindTaskStatusChanged  Kind = "TaskStatusChanged"
	KindCommentAdded       Kind = "CommentAdded"
	KindAgentStatusUpdated Kind = "AgentStatusUpdated"
	KindAgentStatusChanged Kind = "AgentStatusChanged"
	KindDMMessageReceived  Kind = "DMMessageReceived"
	KindUnrecognized       Kind = ""
)

// KindOf maps a wire message type to its Kind, or KindUnrecognized.
func KindOf(messageType string) Kind {
	switch k := Kind(messageType); k {
	case KindTaskCreated, KindTaskUpdated, KindTaskStatusChanged,
		KindCommentAdded, KindAgentStatusUpdated, KindAgentStatusChanged,
		KindDMMessageReceived:
		return k
	}
	return KindUnrecognized
}

// Route synthesizes a Notification from one recognized push message.
// Unrecognized kinds return ok=false; that is the normal path for channel
// traffic this package does not care about, never an error. Synthesized
// notifications always start unread with CreatedAt=now.
func Route(kind Kind, payload map[string]any, now time.Time) (model.Notification, bool) {
	n := model.Notification{
		ID:        payloadString(payload, "id"),
		Read:      false,
		CreatedAt: now,
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	switch kind {
	case KindTaskCreated:
		n.Type = model.NotifTaskAssigned
		n.Title = "New task assigned"
		n.Message = taskMessage(payload, "You were assigned %q", "A task was assigned to you")
		n.SourceType = "task"
		n.SourceID = taskID(payload)

	case KindTaskUpdated:
		n.Type = model.NotifTaskUpdated
		n.Title = "Task updated"
		n.Message = taskMessage(payload, "%q was updated", "A task was updated")
		n.SourceType = "task"
		n.SourceID = taskID(payload)

	case KindTaskStatusChanged:
		n.Type = model.NotifTaskUpdated
		n.Title = "Task status changed"
		title := taskTitle(payload)
		status := payloadString(payload, "status")
		switch {
		case title != "" && status != "":
			n.Message = fmt.Sprintf("%q is now %s", title, status)
		case title != "":
			n.Message = fmt.Sprintf("%q changed status", title)
		default:
			n.Message = "A task changed status"
		}
		n.SourceType = "task"
		n.SourceID = taskID(payload)

	case KindCommentAdded:
		n.Type = model.NotifComment
		n.Title = "New comment"
		n.Message = fallback(payloadString(payload, "preview"), "You have a new comment")
		n.SourceType = "comment"
		n.SourceID = payloadString(payload, "comment_id")
		n.ActorName = payloadString(payload, "author")

	case KindAgentStatusUpdated, KindAgentStatusChanged:
		n.Type = model.NotifAgentUpdate
		agent := nestedObject(payload, "agent")
		// Top-level fields win; the nested agent object is the fallback
		// shape older producers send.
		name := fallback(payloadString(payload, "agent_name"), payloadString(agent, "name"))
		status := fallback(payloadString(payload, "status"), payloadString(agent, "status"))
		n.Title = fallback(name, "Agent update")
		switch {
		case name != "" && status != "":
			n.Message = fmt.Sprintf("%s is now %s", name, status)
		case status != "":
			n.Message = "Agent status: " + status
		default:
			n.Message = "An agent's status changed"
		}
		n.SourceType = "agent"
		n.SourceID = fallback(payloadString(payload, "agent_id"), payloadString(agent, "id"))

	case KindDMMessageReceived:
		n.Type = model.NotifMention
		n.Title = "New message"
		n.Message = fallback(payloadString(payload, "preview"), "You have a new message")
		n.ActorName = payloadString(payload, "from")
		n.SourceType = "message"

	case KindUnrecognized:
		return model.Notification{}, false
	default:
		return model.Notification{}, false
	}

	return n, true
}

func taskTitle(payload map[string]any) string {
	if t := payloadString(payload, "title"); t != "" {
		return t
	}
	return payloadString(nestedObject(payload, "task"), "title")
}

func taskID(payload map[string]any) string {
	if id := payloadString(payload, "task_id"); id != "" {
		return id
	}
	return payloadString(nestedObject(payload, "task"), "id")
}

// taskMessage formats withTitle with the task title when one is present,
// otherwise returns the generic message.
func taskMessage(payload map[string]any, withTitle, generic string) string {
	if t := taskTitle(payload); t != "" {
		return fmt.Sprintf(withTitle, t)
	}
	return generic
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	v, _ := payload[key].(string)
	return strings.TrimSpace(v)
}

func nestedObject(payload map[string]any, key string) map[string]any {
	if payload == nil {
		return nil
	}
	obj, _ := payload[key].(map[string]any)
	return obj
}

func fallback(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
