package domain

import "time"

// Session represents a conversation session.
type Session struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message represents a single persisted turn in a session.
type Message struct {
	MessageID     string      `json:"id"`
	SessionID     string      `json:"session_id"`
	RunID         string      `json:"run_id,omitempty"`
	Role          Role        `json:"role"`
	Content       string      `json:"content"`
	RouteDecision Destination `json:"route_decision,omitempty"`
	Metadata      *Metadata   `json:"metadata,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// MessageListResponse is returned by the history endpoint.
type MessageListResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
