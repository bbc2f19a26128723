package domain

import "time"

// NotificationKind enumerates supported notification categories.
type NotificationKind string

const (
	NotificationQuoteReceived   NotificationKind = "QUOTE_RECEIVED"
	NotificationMessageReceived NotificationKind = "MESSAGE_RECEIVED"
	NotificationProjectUpdate   NotificationKind = "PROJECT_UPDATE"
	NotificationMilestoneDue    NotificationKind = "MILESTONE_DUE"
	NotificationSystem          NotificationKind = "SYSTEM"
)

// NotificationEvent is a single notification delivered over the realtime
// channel or fetched from the notification endpoint. IsRead is the only
// field mutated client-side.
type NotificationEvent struct {
	ID          string           `json:"id"`
	Type        NotificationKind `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
	ReferenceID string           `json:"reference_id,omitempty"`
	ProjectID   string           `json:"project_id,omitempty"`
}

// DedupeKey identifies a notification for duplicate suppression. Events that
// reference the same entity with the same kind collapse into one entry;
// events without a reference fall back to their own id.
func (n NotificationEvent) DedupeKey() string {
	if n.ReferenceID != "" {
		return n.ReferenceID + "|" + string(n.Type)
	}
	return n.ID
}
