// Package relay forwards provider stream frames to the client while
// accumulating the generated content for post-hoc auditing.
//
// Streaming safety checking is necessarily post-hoc: once bytes are sent
// they cannot be recalled. The relay therefore never inspects accumulated
// content to decide whether to keep streaming; it only collects it for the
// audit step that runs after the stream ends.
package relay

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// scanBufferSize bounds a single provider frame line.
const scanBufferSize = 1 << 20

// Result describes how a relay run ended.
type Result struct {
	// Accumulated is the in-order concatenation of every content fragment
	// extracted from the frames seen before the stream ended.
	Accumulated string
	// ClientGone is true when forwarding stopped because the client
	// disconnected. The post-stream audit still runs on Accumulated.
	ClientGone bool
	// UpstreamErr holds a provider-side read error, if any.
	UpstreamErr error
}

// Relay copies provider frames to a client verbatim and in arrival order.
type Relay struct {
	logger *slog.Logger
}

// New creates a Relay.
func New(logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{logger: logger}
}

// Run reads frame lines from src until the provider terminates the stream,
// forwarding each line to dst unmodified and accumulating content deltas.
// Parse failures on individual frames are swallowed for accumulation
// purposes only; delivery is never dropped because of one. A write failure
// marks the client gone and stops the relay with whatever was accumulated
// up to that point.
func (r *Relay) Run(dst io.Writer, src io.Reader) Result {
	var (
		result  Result
		content strings.Builder
	)
	flusher, _ := dst.(http.Flusher)

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)

	for scanner.Scan() {
		line := scanner.Text()

		if _, err := io.WriteString(dst, line+"\n"); err != nil {
			r.logger.Debug("client disconnected mid-stream", "error", err)
			result.ClientGone = true
			break
		}
		if flusher != nil {
			flusher.Flush()
		}

		if delta, ok := ExtractContentDelta(line); ok {
			content.WriteString(delta)
		}
	}

	if err := scanner.Err(); err != nil && !result.ClientGone {
		r.logger.Warn("upstream stream read failed", "error", err)
		result.UpstreamErr = err
		r.writeErrorFrame(dst, flusher, err)
	}

	result.Accumulated = content.String()
	return result
}

// writeErrorFrame emits a final error frame so the client does not hang on
// a silently truncated stream.
func (r *Relay) writeErrorFrame(dst io.Writer, flusher http.Flusher, cause error) {
	frame, err := json.Marshal(map[string]string{"error": cause.Error()})
	if err != nil {
		return
	}
	if _, err := io.WriteString(dst, "data: "+string(frame)+"\n\n"); err != nil {
		return
	}
	if flusher != nil {
		flusher.Flush()
	}
}
