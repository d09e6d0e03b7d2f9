package domain

import (
	"context"
	"io"
)

// RiskCategory is one entry of the default policy catalog.
type RiskCategory struct {
	Code string
	Name string
}

// PolicyStore exposes persistence operations for category policies.
// Implementations must be safe for concurrent readers; a single Update is
// atomic across both mutable fields.
type PolicyStore interface {
	// ListActive returns all enabled policies.
	ListActive(ctx context.Context) ([]Policy, error)

	// List returns every policy, enabled or not.
	List(ctx context.Context) ([]Policy, error)

	// Update sets threshold and enabled together for the policy with the
	// given id. Returns ErrPolicyNotFound when the id is unknown.
	Update(ctx context.Context, id int64, threshold float64, enabled bool) (*Policy, error)

	// SeedDefaults inserts a default policy (threshold 0.5, enabled) for
	// each catalog entry whose category is not already present. Existing
	// rows are never altered; the call is idempotent.
	SeedDefaults(ctx context.Context, catalog []RiskCategory) error
}

// AuditStore is the append-only persistence layer for audit records.
type AuditStore interface {
	Insert(ctx context.Context, rec *AuditRecord) error
	ListRecent(ctx context.Context, limit int) ([]AuditRecord, error)
	Stats(ctx context.Context) (Stats, error)
}

// Classifier scores a conversation for policy-relevant risk.
//
// The returned slice is ordered by descending confidence, carries at most one
// entry per category, and is deterministic for identical input. Categories
// absent from the slice score 0 for policy purposes. Implementations must be
// safe for concurrent callers; a concurrency-limited backend must gate access
// internally rather than interleave results.
type Classifier interface {
	// Score classifies the conversation. responseCheck selects whether the
	// final assistant turn is being judged (true) or prompt risk is being
	// predicted for a conversation ending in a user turn (false).
	Score(ctx context.Context, conv Conversation, responseCheck bool) ([]RiskScore, error)
}

// Upstream is the chat-completion provider being proxied.
type Upstream interface {
	// Complete performs the non-streaming call. It never fails: on any
	// transport or HTTP error it returns a synthesized fallback completion,
	// which still flows through the response-safety check and audit.
	Complete(ctx context.Context, req *ChatCompletionRequest) *ChatCompletionResponse

	// StreamComplete opens the streaming call and returns the provider's
	// raw SSE byte stream. The caller owns closing the reader.
	StreamComplete(ctx context.Context, req *ChatCompletionRequest) (io.ReadCloser, error)
}
