package chat

import "time"

// Session captures an anonymous conversation bound to one browser client. UpstreamSessionID is
// the id handed out by agent servers that keep their own sessions.
type Session struct {
	ID                string    `json:"id"`
	ClientID          string    `json:"clientId"`
	ProfileID         string    `json:"profileId"`
	UpstreamSessionID string    `json:"upstreamSessionId,omitempty"`
	Transport         string    `json:"transport"`
	CreatedAt         time.Time `json:"createdAt"`
}
