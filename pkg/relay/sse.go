package relay

import (
	"encoding/json"
	"strings"
)

// doneSentinel is the provider's stream termination marker.
const doneSentinel = "[DONE]"

// parseDataLine extracts the payload of an SSE data line. Only a single
// space after the colon is removed, as per the SSE spec.
func parseDataLine(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := line[5:]
	if len(payload) > 0 && payload[0] == ' ' {
		payload = payload[1:]
	}
	return payload, true
}

type deltaFrame struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ExtractContentDelta opportunistically pulls the incremental content
// fragment out of one provider frame line. It returns ok=false for non-data
// lines, the termination sentinel, frames without a content delta, and
// malformed frames; the caller forwards the raw line regardless.
func ExtractContentDelta(line string) (string, bool) {
	payload, ok := parseDataLine(line)
	if !ok || payload == doneSentinel {
		return "", false
	}

	var frame deltaFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return "", false
	}
	if len(frame.Choices) == 0 || frame.Choices[0].Delta.Content == nil {
		return "", false
	}
	return *frame.Choices[0].Delta.Content, true
}
