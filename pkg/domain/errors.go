package domain

import "errors"

// Common domain errors
var (
	ErrPolicyNotFound        = errors.New("policy not found")
	ErrClassifierUnavailable = errors.New("risk classifier unavailable")
	ErrInvalidRequest        = errors.New("invalid chat completion request")
	ErrUpstreamUnreachable   = errors.New("upstream provider unreachable")
	ErrConfigInvalid         = errors.New("invalid configuration")
)

// ErrorResponse defines the standard JSON error model returned by the admin
// and data APIs. It avoids exposing sensitive details while providing a
// stable machine-readable code.
type ErrorResponse struct {
	Code    string `json:"code"`               // Machine-readable error code (e.g., INVALID_REQUEST, CLASSIFIER_UNAVAILABLE)
	Message string `json:"message"`            // Human-readable message (safe for logs)
	TraceID string `json:"trace_id,omitempty"` // Optional trace/correlation ID
}
