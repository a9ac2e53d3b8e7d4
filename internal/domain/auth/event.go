package auth

import "time"

// EventKind enumerates credential state transitions.
type EventKind string

const (
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventTokenRefreshed EventKind = "token_refreshed"
	EventUserUpdated    EventKind = "user_updated"
)

// Event is published by the credential store whenever a session changes state.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	At        time.Time `json:"at"`
	// Origin identifies the publishing instance so relayed events are not delivered twice.
	Origin string `json:"origin,omitempty"`
}

// IsSignIn reports whether the event should trigger a fresh resolution.
func (e Event) IsSignIn() bool {
	switch e.Kind {
	case EventSignedIn, EventTokenRefreshed, EventUserUpdated:
		return true
	default:
		return false
	}
}
