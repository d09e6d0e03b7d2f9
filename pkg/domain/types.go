package domain

import (
	"fmt"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the accepted chat roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered sequence of messages, oldest first.
type Conversation []Message

// LastUserContent returns the content of the most recent user turn, or the
// empty string if the conversation has none.
func (c Conversation) LastUserContent() string {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role == RoleUser {
			return c[i].Content
		}
	}
	return ""
}

// WithAssistant returns a copy of the conversation with an assistant turn
// appended. The receiver is not modified.
func (c Conversation) WithAssistant(content string) Conversation {
	out := make(Conversation, 0, len(c)+1)
	out = append(out, c...)
	out = append(out, Message{Role: RoleAssistant, Content: content})
	return out
}

// RiskScore is one classifier finding: a risk category code and the
// probability assigned to it.
type RiskScore struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Policy is the enforcement rule for a single risk category.
// Category and Name are immutable after creation; Threshold and Enabled are
// mutated together through the admin update operation.
type Policy struct {
	ID        int64     `json:"id" db:"id"`
	Category  string    `json:"risk_category" db:"risk_category"`
	Name      string    `json:"risk_name" db:"risk_name"`
	Threshold float64   `json:"threshold" db:"threshold"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Decision is the outcome of evaluating a score list against the active
// policy set. The zero value is Safe.
type Decision struct {
	Blocked  bool
	Category string
	Score    float64
}

// Safe is the decision for content that breached no enabled policy.
var Safe = Decision{}

// Block builds a blocked decision for the given category and score.
func Block(category string, score float64) Decision {
	return Decision{Blocked: true, Category: category, Score: score}
}

// Sentinel renders the machine-parseable block message. The format
// "BLOCKED:<category>:<score, 4 decimals>" is consumed by the presentation
// layer for localization and must not change.
func (d Decision) Sentinel() string {
	return fmt.Sprintf("BLOCKED:%s:%.4f", d.Category, d.Score)
}

// Action records how the gateway disposed of a request.
type Action string

const (
	ActionAllow               Action = "allow"
	ActionBlockPrompt         Action = "block_prompt"
	ActionBlockResponse       Action = "block_response"
	ActionBlockResponseStream Action = "block_response_stream"
)

// AuditRecord is the append-only trace of one mediated request.
// Records are written exactly once after the decision is finalized and are
// never updated.
type AuditRecord struct {
	ID              int64     `json:"id" db:"id"`
	Timestamp       time.Time `json:"timestamp" db:"timestamp"`
	UserInput       string    `json:"user_input" db:"user_input"`
	ModelResponse   *string   `json:"model_response" db:"model_response"`
	TriggeringScore float64   `json:"risk_score" db:"risk_score"`
	RiskDetails     string    `json:"risk_details" db:"risk_details"`
	Action          Action    `json:"action" db:"action"`
	LatencyMs       float64   `json:"latency_ms" db:"latency_ms"`
}

// Stats summarises gateway traffic for the dashboard.
type Stats struct {
	TotalRequests   int64   `json:"total_requests"`
	BlockedRequests int64   `json:"blocked_requests"`
	BlockRate       float64 `json:"block_rate"`
}
