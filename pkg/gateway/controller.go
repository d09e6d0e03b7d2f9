// Package gateway orchestrates the mediation pipeline: prompt check,
// upstream relay, response check, and audit, per request.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/aegislabs/aegis-gateway/pkg/audit"
	"github.com/aegislabs/aegis-gateway/pkg/decision"
	"github.com/aegislabs/aegis-gateway/pkg/domain"
	"github.com/aegislabs/aegis-gateway/pkg/relay"
	"github.com/aegislabs/aegis-gateway/pkg/telemetry"
)

// postAuditTimeout bounds the detached post-stream audit task.
const postAuditTimeout = 30 * time.Second

// Controller implements the per-request mediation state machine.
type Controller struct {
	policies   domain.PolicyStore
	audits     *audit.Logger
	auditStore domain.AuditStore
	classifier domain.Classifier
	upstream   domain.Upstream
	relay      *relay.Relay
	metrics    *Metrics
	logger     *slog.Logger

	// bg tracks detached post-stream audit tasks so shutdown can wait for
	// them. The client connection is never held open by these.
	bg sync.WaitGroup
}

// Deps wires the controller's collaborators.
type Deps struct {
	Policies   domain.PolicyStore
	Audits     *audit.Logger
	AuditStore domain.AuditStore
	Classifier domain.Classifier
	Upstream   domain.Upstream
	Metrics    *Metrics
	Logger     *slog.Logger
}

// NewController creates a Controller.
func NewController(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Controller{
		policies:   deps.Policies,
		audits:     deps.Audits,
		auditStore: deps.AuditStore,
		classifier: deps.Classifier,
		upstream:   deps.Upstream,
		relay:      relay.New(logger),
		metrics:    metrics,
		logger:     logger,
	}
}

// Drain waits for detached post-stream audits to finish. Called on shutdown
// and by tests.
func (c *Controller) Drain() {
	c.bg.Wait()
}

// HandleChatCompletions mediates POST /v1/chat/completions.
func (c *Controller) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req domain.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body is not valid JSON")
		return
	}
	if err := req.Validate(); err != nil {
		c.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	conv := req.Conversation()
	userInput := conv.LastUserContent()

	policies, err := c.policies.ListActive(ctx)
	if err != nil {
		c.logger.Error("failed to load active policies", "error", err)
		c.writeError(w, http.StatusInternalServerError, "POLICY_LOAD_FAILED", "could not load policies")
		return
	}

	// Prompt check: synchronous, nothing reaches the upstream before it
	// completes. A classifier failure is a hard request failure with no
	// audit write since no decision was made.
	promptScores, err := c.score(ctx, conv, false)
	if err != nil {
		c.writeError(w, http.StatusBadGateway, "CLASSIFIER_UNAVAILABLE", "risk classifier unavailable")
		return
	}

	if d := decision.Decide(promptScores, policies); d.Blocked {
		// Prompt blocks always answer with a full JSON body, even for
		// stream=true callers. The dashboard frontend depends on this.
		c.logger.Warn("prompt blocked",
			"category", d.Category,
			"score", d.Score,
		)
		c.metrics.RecordDecision(string(domain.ActionBlockPrompt), d.Category)
		telemetry.RecordDecision(trace.SpanFromContext(ctx), domain.ActionBlockPrompt, d)
		c.writeCompletion(w, req.Model, d.Sentinel())
		c.audits.Record(domain.AuditRecord{
			UserInput:       userInput,
			TriggeringScore: d.Score,
			RiskDetails:     serializeScores(promptScores),
			Action:          domain.ActionBlockPrompt,
			LatencyMs:       msSince(start),
		})
		return
	}

	if req.Stream {
		c.streamCompletion(w, r, &req, conv, userInput, policies, start)
		return
	}

	upResp := c.upstream.Complete(ctx, &req)
	content := upResp.AssistantContent()

	respScores, err := c.score(ctx, conv.WithAssistant(content), true)
	if err != nil {
		c.writeError(w, http.StatusBadGateway, "CLASSIFIER_UNAVAILABLE", "risk classifier unavailable")
		return
	}

	latency := msSince(start)
	if d := decision.Decide(respScores, policies); d.Blocked {
		c.logger.Warn("response blocked",
			"category", d.Category,
			"score", d.Score,
		)
		c.metrics.RecordDecision(string(domain.ActionBlockResponse), d.Category)
		telemetry.RecordDecision(trace.SpanFromContext(ctx), domain.ActionBlockResponse, d)
		c.writeCompletion(w, req.Model, d.Sentinel())
		c.audits.Record(domain.AuditRecord{
			UserInput:       userInput,
			ModelResponse:   &content,
			TriggeringScore: d.Score,
			RiskDetails:     serializeScores(respScores),
			Action:          domain.ActionBlockResponse,
			LatencyMs:       latency,
		})
		return
	}

	c.metrics.RecordDecision(string(domain.ActionAllow), "")
	telemetry.RecordDecision(trace.SpanFromContext(ctx), domain.ActionAllow, domain.Safe)
	writeJSON(w, http.StatusOK, upResp)
	c.audits.Record(domain.AuditRecord{
		UserInput:     userInput,
		ModelResponse: &content,
		RiskDetails:   serializeScores(respScores),
		Action:        domain.ActionAllow,
		LatencyMs:     latency,
	})
}

// streamCompletion relays the provider's frames verbatim while accumulating
// content, then runs the post-hoc audit as a detached task. Content already
// delivered cannot be recalled; a post-stream block is a detection, not a
// prevention.
func (c *Controller) streamCompletion(
	w http.ResponseWriter,
	r *http.Request,
	req *domain.ChatCompletionRequest,
	conv domain.Conversation,
	userInput string,
	policies []domain.Policy,
	start time.Time,
) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	accumulated := ""
	body, err := c.upstream.StreamComplete(r.Context(), req)
	if err != nil {
		c.logger.Warn("upstream stream failed to open", "error", err)
		c.writeStreamError(w, err)
	} else {
		result := c.relay.Run(w, body)
		body.Close()
		accumulated = result.Accumulated
		if result.ClientGone {
			c.logger.Debug("client left before stream end, auditing partial content")
		}
	}

	c.bg.Add(1)
	go c.postStreamAudit(conv, userInput, accumulated, policies, start)
}

// postStreamAudit classifies the accumulated completion after the client
// connection is done. A client disconnect does not cancel it; it runs on
// whatever was accumulated.
func (c *Controller) postStreamAudit(
	conv domain.Conversation,
	userInput string,
	accumulated string,
	policies []domain.Policy,
	start time.Time,
) {
	defer c.bg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), postAuditTimeout)
	defer cancel()

	scores, err := c.score(ctx, conv.WithAssistant(accumulated), true)
	if err != nil {
		c.logger.Error("post-stream audit could not classify completion", "error", err)
		return
	}

	rec := domain.AuditRecord{
		UserInput:     userInput,
		ModelResponse: &accumulated,
		RiskDetails:   serializeScores(scores),
		Action:        domain.ActionAllow,
		LatencyMs:     msSince(start),
	}
	category := ""
	if d := decision.Decide(scores, policies); d.Blocked {
		c.logger.Warn("stream content flagged post-hoc",
			"category", d.Category,
			"score", d.Score,
		)
		rec.Action = domain.ActionBlockResponseStream
		rec.TriggeringScore = d.Score
		category = d.Category
	}
	c.metrics.RecordDecision(string(rec.Action), category)
	c.audits.Record(rec)
}

// score times one classifier call.
func (c *Controller) score(ctx context.Context, conv domain.Conversation, responseCheck bool) ([]domain.RiskScore, error) {
	start := time.Now()
	scores, err := c.classifier.Score(ctx, conv, responseCheck)
	c.metrics.ObserveClassifier(time.Since(start))
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("classifier call failed", "error", err, "response_check", responseCheck)
	}
	return scores, err
}

// writeCompletion answers with a synthesized single-choice completion body.
func (c *Controller) writeCompletion(w http.ResponseWriter, model, content string) {
	writeJSON(w, http.StatusOK, &domain.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []domain.ChatCompletionChoice{{
			Index:        0,
			Message:      domain.Message{Role: domain.RoleAssistant, Content: content},
			FinishReason: "stop",
		}},
	})
}

func (c *Controller) writeStreamError(w http.ResponseWriter, cause error) {
	frame, err := json.Marshal(map[string]string{"error": cause.Error()})
	if err != nil {
		return
	}
	if _, err := w.Write([]byte("data: " + string(frame) + "\n\n")); err != nil {
		return
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (c *Controller) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, domain.ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// serializeScores renders the ranked score list for the audit trail.
func serializeScores(scores []domain.RiskScore) string {
	if scores == nil {
		scores = []domain.RiskScore{}
	}
	raw, err := json.Marshal(scores)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
