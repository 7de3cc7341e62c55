package model

import "time"

// StarResult is the outcome of a star toggle.
type StarResult struct {
	IsStarred bool `json:"isStarred"`
	StarCount int  `json:"starCount"`
}

// Tag is a shared, lower-case label.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NotificationType is the closed set of notification kinds.
type NotificationType string

const (
	NotificationStar                NotificationType = "star"
	NotificationFork                NotificationType = "fork"
	NotificationCollaborationInvite NotificationType = "collaboration_invite"
	NotificationComment             NotificationType = "comment"
	NotificationEdit                NotificationType = "edit"
)

// Notification belongs to one user. Only IsRead ever changes after creation.
type Notification struct {
	ID         string           `json:"id"`
	UserID     string           `json:"userId"`
	ActorID    string           `json:"actorId"`
	Type       NotificationType `json:"type"`
	Message    string           `json:"message"`
	ResourceID string           `json:"resourceId"`
	IsRead     bool             `json:"isRead"`
	CreatedAt  time.Time        `json:"createdAt"`
}
