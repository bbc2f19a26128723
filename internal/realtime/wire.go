// Package realtime carries push notifications over a single WebSocket per
// authenticated session: JSON frames with a named event and an opaque
// payload.
package realtime

import "encoding/json"

// Server-to-client named events.
const (
	EventReceiveNotification = "ReceiveNotification"
	EventReceiveMessage      = "ReceiveMessage"
	EventProjectUpdate       = "ProjectUpdate"
)

// InvokeJoinUserGroup is the client-to-server invocation that scopes the
// connection to the user's notification group.
const InvokeJoinUserGroup = "JoinUserGroup"

// Frame is the wire format in both directions.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinUserGroupPayload is the payload of InvokeJoinUserGroup.
type JoinUserGroupPayload struct {
	UserID string `json:"user_id"`
}

// Event is an inbound named event delivered to subscribers.
type Event struct {
	Name    string
	Payload json.RawMessage
}
