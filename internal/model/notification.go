package model

import "time"

// NotificationType is the closed set of user-facing notification categories.
type NotificationType string

const (
	NotifTaskAssigned  NotificationType = "task_assigned"
	NotifTaskCompleted NotificationType = "task_completed"
	NotifTaskUpdated   NotificationType = "task_updated"
	NotifComment       NotificationType = "comment"
	NotifMention       NotificationType = "mention"
	NotifAgentUpdate   NotificationType = "agent_update"
	NotifSystem        NotificationType = "system"
)

// ValidNotificationType reports whether t is one of the recognized types.
// Unlike Kind, the notification type set is closed: a record with an unknown
// type is rejected at parse time.
func ValidNotificationType(t NotificationType) bool {
	switch t {
	case NotifTaskAssigned, NotifTaskCompleted, NotifTaskUpdated,
		NotifComment, NotifMention, NotifAgentUpdate, NotifSystem:
		return true
	}
	return false
}

// Notification is a derived, user-facing event. Records come from the
// snapshot endpoint (arbitrary Read state) or are synthesized by the router
// from a push message (always Read=false).
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"created_at"`
	SourceURL   string           `json:"source_url,omitempty"`
	SourceID    string           `json:"source_id,omitempty"`
	SourceType  string           `json:"source_type,omitempty"`
	ActorName   string           `json:"actor_name,omitempty"`
	ActorAvatar string           `json:"actor_avatar,omitempty"`
}
