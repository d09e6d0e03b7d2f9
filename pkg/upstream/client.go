// Package upstream implements the chat-completion provider client.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegislabs/aegis-gateway/pkg/domain"
)

// FallbackContent is the synthesized assistant message substituted when the
// provider cannot be reached. It still passes through the response-safety
// check and audit pipeline like any real completion.
const FallbackContent = "Error: Unable to contact upstream LLM."

const defaultTimeout = 60 * time.Second

// Config holds upstream provider settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the upstream provider. Target settings can be swapped at
// runtime by the config reloader; reads and writes are gated by a mutex.
//
// Streaming uses a separate http.Client: Client.Timeout bounds the whole
// exchange including the body read, which would sever a long-lived SSE
// stream while frames are still arriving. The stream client instead bounds
// only connection establishment and the wait for response headers; an open
// stream runs until the provider terminates it.
type Client struct {
	mu           sync.RWMutex
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	streamClient *http.Client
	logger       *slog.Logger
}

// New creates an upstream client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.Timeout,
				}).DialContext,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
		logger: logger,
	}
}

// SetTarget atomically swaps the provider endpoint and credentials.
// In-flight requests keep the settings they started with.
func (c *Client) SetTarget(baseURL, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = baseURL
	c.apiKey = apiKey
}

func (c *Client) target() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL, c.apiKey
}

// Complete implements domain.Upstream. The provider call has a fixed
// timeout; on any transport or HTTP failure the method returns a fallback
// completion instead of an error, so the gateway always produces an
// assistant turn to check and audit.
func (c *Client) Complete(ctx context.Context, req *domain.ChatCompletionRequest) *domain.ChatCompletionResponse {
	resp, err := c.do(ctx, req, false)
	if err != nil {
		c.logger.Warn("upstream completion failed, using fallback", "error", err)
		return fallbackResponse(req.Model)
	}
	defer resp.Body.Close()

	var parsed domain.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Warn("upstream response undecodable, using fallback", "error", err)
		return fallbackResponse(req.Model)
	}
	if len(parsed.Choices) == 0 {
		c.logger.Warn("upstream response carried no choices, using fallback")
		return fallbackResponse(req.Model)
	}
	return &parsed
}

// StreamComplete implements domain.Upstream. It opens the streaming call and
// hands the raw SSE body to the caller. Unlike Complete there is no fallback:
// a connect failure is reported so the relay can emit an error frame.
func (c *Client) StreamComplete(ctx context.Context, req *domain.ChatCompletionRequest) (io.ReadCloser, error) {
	resp, err := c.do(ctx, req, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, err)
	}
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, req *domain.ChatCompletionRequest, stream bool) (*http.Response, error) {
	baseURL, apiKey := c.target()

	payload := *req
	payload.Stream = stream

	body, err := json.Marshal(&payload)
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := c.httpClient
	if stream {
		client = c.streamClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	return resp, nil
}

func fallbackResponse(model string) *domain.ChatCompletionResponse {
	return &domain.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []domain.ChatCompletionChoice{{
			Index:        0,
			Message:      domain.Message{Role: domain.RoleAssistant, Content: FallbackContent},
			FinishReason: "stop",
		}},
	}
}
