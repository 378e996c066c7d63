package domain

import "time"

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Source is a backend-attributed document fragment backing a chat reply.
type Source struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Relevance float64 `json:"relevance"`
	Content   string  `json:"content,omitempty"`
}

// ChatMessage is a single entry in the message log. Values are treated as
// immutable once the log has stored them.
type ChatMessage struct {
	ID        string
	Role      Role
	Text      string
	CreatedAt time.Time
	Sources   []Source

	// Guide is set on the overview card shown when a navigation guide arrives.
	Guide *NavigationGuide
	// Step is set on a step card emitted while a guide is being walked.
	Step *StepCard
}

// StepCard is the display payload for the step the user is currently on.
type StepCard struct {
	Step  NavigationStep
	Total int
}

// ChatRequest is the input of a chat round trip.
type ChatRequest struct {
	Query     string
	SessionID string
	Language  string
}

// ChatReply is the bot answer returned by the chat endpoint.
type ChatReply struct {
	Text     string
	Sources  []Source
	Metadata map[string]any
}
