package domain

// OpenAI-compatible wire schema for the chat completions surface. Sampling
// fields are carried through to the upstream provider unmodified.

// ChatCompletionRequest is the request body for POST /v1/chat/completions.
type ChatCompletionRequest struct {
	Model            string             `json:"model"`
	Messages         []Message          `json:"messages"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
	N                *int               `json:"n,omitempty"`
	Stream           bool               `json:"stream,omitempty"`
	Stop             any                `json:"stop,omitempty"`
	MaxTokens        *int               `json:"max_tokens,omitempty"`
	PresencePenalty  *float64           `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64           `json:"frequency_penalty,omitempty"`
	LogitBias        map[string]float64 `json:"logit_bias,omitempty"`
	User             string             `json:"user,omitempty"`
}

// Conversation returns the request messages as a Conversation.
func (r *ChatCompletionRequest) Conversation() Conversation {
	return Conversation(r.Messages)
}

// Validate rejects structurally invalid requests before any classifier or
// upstream call is made.
func (r *ChatCompletionRequest) Validate() error {
	if r.Model == "" {
		return ErrInvalidRequest
	}
	if len(r.Messages) == 0 {
		return ErrInvalidRequest
	}
	for _, m := range r.Messages {
		if !m.Role.Valid() {
			return ErrInvalidRequest
		}
	}
	return nil
}

// ChatCompletionChoice is a single completion alternative.
type ChatCompletionChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// ChatCompletionResponse is the non-streaming response body.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   map[string]any         `json:"usage,omitempty"`
}

// AssistantContent returns the first choice's message content, or the empty
// string when the response carries no choices.
func (r *ChatCompletionResponse) AssistantContent() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}
