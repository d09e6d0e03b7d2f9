// Package classifier provides the HTTP client for the external risk scorer.
//
// The scorer is a process-wide resource with limited concurrency: the client
// owns a bounded gate so that concurrent requests queue instead of
// interleaving calls against a backend that cannot serve them in parallel.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/aegislabs/aegis-gateway/pkg/domain"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxConcurrent = 4
)

// Config holds classifier client settings.
type Config struct {
	// BaseURL of the scorer service, e.g. "http://localhost:9010".
	BaseURL string
	// Timeout bounds a single scoring call.
	Timeout time.Duration
	// MaxConcurrent is the size of the concurrency gate. Calls beyond the
	// limit queue until a slot frees or their context is done.
	MaxConcurrent int
}

// Client invokes the external scorer and normalizes its output to a ranked
// score list. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	gate       chan struct{}
	logger     *slog.Logger
}

// New creates a classifier client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		gate:       make(chan struct{}, cfg.MaxConcurrent),
		logger:     logger,
	}
}

type scoreRequest struct {
	Messages      []domain.Message `json:"messages"`
	CheckResponse bool             `json:"check_response"`
}

type scoreResponse struct {
	Scores map[string]float64 `json:"scores"`
}

// Score implements domain.Classifier. The call queues on the concurrency
// gate, then performs a single bounded-latency request. Any transport or
// non-2xx failure is surfaced as domain.ErrClassifierUnavailable; the
// gateway makes no decision without a score list.
func (c *Client) Score(ctx context.Context, conv domain.Conversation, responseCheck bool) ([]domain.RiskScore, error) {
	select {
	case c.gate <- struct{}{}:
		defer func() { <-c.gate }()
	case <-ctx.Done():
		return nil, fmt.Errorf("classifier gate: %w", ctx.Err())
	}

	body, err := json.Marshal(scoreRequest{Messages: conv, CheckResponse: responseCheck})
	if err != nil {
		return nil, fmt.Errorf("encode score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("classifier call failed", "error", err, "response_check", responseCheck)
		return nil, fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("classifier returned non-2xx", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", domain.ErrClassifierUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrClassifierUnavailable, err)
	}

	var parsed scoreResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", domain.ErrClassifierUnavailable, err)
	}

	scores := Rank(parsed.Scores)
	c.logger.Debug("classifier scored conversation",
		"response_check", responseCheck,
		"categories", len(scores),
		"duration", time.Since(start),
	)
	return scores, nil
}

// Rank converts a category→score map into the ordered list the decision
// engine consumes: descending score, with category code as a deterministic
// tie-break so identical input always yields identical output.
func Rank(scores map[string]float64) []domain.RiskScore {
	out := make([]domain.RiskScore, 0, len(scores))
	for category, score := range scores {
		out = append(out, domain.RiskScore{Category: category, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Category < out[j].Category
	})
	return out
}
