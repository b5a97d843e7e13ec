package core

import "time"

// SessionStatus is the lifecycle state of the single session.
type SessionStatus string

// Session statuses.
const (
	SessionDisconnected  SessionStatus = "disconnected"
	SessionConnecting    SessionStatus = "connecting"
	SessionConnected     SessionStatus = "connected"
	SessionDisconnecting SessionStatus = "disconnecting"
	SessionFailed        SessionStatus = "failed"
)

// Active reports whether the status holds or is acquiring an engine handle.
func (s SessionStatus) Active() bool {
	return s == SessionConnecting || s == SessionConnected
}

// SessionInfo is a read-only snapshot of the session.
type SessionInfo struct {
	ID           string        `json:"id,omitempty" yaml:"id,omitempty"`
	ProfileName  string        `json:"profile,omitempty" yaml:"profile,omitempty"`
	Status       SessionStatus `json:"status" yaml:"status"`
	Generation   uint64        `json:"generation" yaml:"generation"`
	Attempt      int           `json:"attempt,omitempty" yaml:"attempt,omitempty"`
	RetryPending bool          `json:"retry_pending,omitempty" yaml:"retry_pending,omitempty"`
	LastError    string        `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	ConnectedAt  *time.Time    `json:"connected_at,omitempty" yaml:"connected_at,omitempty"`
}

// Holds reports whether the session is non-disconnected for the profile.
func (s SessionInfo) Holds(profile string) bool {
	return s.ProfileName == profile && s.Status != SessionDisconnected
}
