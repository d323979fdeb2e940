package models

import "time"

// Notification is an in-app notification row produced by the event sink.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body,omitempty"`
	EventType   string    `json:"event_type"`
	InstanceID  string    `json:"instance_id,omitempty"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}
