package chat

import "time"

// Session is a read-only snapshot of a user's conversation window.
type Session struct {
	UserID       string    `json:"userId"`
	Turns        []Turn    `json:"turns"`
	LastActivity time.Time `json:"lastActivity"`
}

// Stats summarizes the in-memory session registry.
type Stats struct {
	Sessions int `json:"sessions"`
	Turns    int `json:"turns"`
}
