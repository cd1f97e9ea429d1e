package model

import "time"

// Mode is the conversation state.
type Mode string

const (
	ModeDiscovery      Mode = "discovery"
	ModeClarification  Mode = "clarification"
	ModeRecommendation Mode = "recommendation"
	ModeRefinement     Mode = "refinement"
	ModeClosed         Mode = "closed"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationMeta holds the per-conversation counters.
type ConversationMeta struct {
	StartedAt        time.Time `json:"startedAt"`
	LastMessageAt    time.Time `json:"lastMessageAt"`
	MessageCount     int       `json:"messageCount"`
	ExtractionCount  int       `json:"extractionCount"`
	QuestionsAsked   int       `json:"questionsAsked"`
	UserQuestions    int       `json:"userQuestions"`
	Recommendations  int       `json:"recommendations"`
	HandoffRequested bool      `json:"handoffRequested"`
}

// ConversationContext is the full state of one customer conversation.
type ConversationContext struct {
	ID              string           `json:"id"`
	SessionID       string           `json:"sessionId"`
	Mode            Mode             `json:"mode"`
	Profile         CustomerProfile  `json:"profile"`
	History         []Message        `json:"history"`
	Meta            ConversationMeta `json:"meta"`
	LastRecommended []string         `json:"lastRecommended,omitempty"`
}

// AppendMessage adds a message and keeps at most limit entries.
func (c *ConversationContext) AppendMessage(role, content string, at time.Time, limit int) {
	c.History = append(c.History, Message{Role: role, Content: content, Timestamp: at})
	if limit > 0 && len(c.History) > limit {
		c.History = append([]Message(nil), c.History[len(c.History)-limit:]...)
	}
}

// RecentUserMessages returns up to n most recent user messages, oldest first.
func (c *ConversationContext) RecentUserMessages(n int) []string {
	var out []string
	for i := len(c.History) - 1; i >= 0 && len(out) < n; i-- {
		if c.History[i].Role == RoleUser {
			out = append([]string{c.History[i].Content}, out...)
		}
	}
	return out
}
