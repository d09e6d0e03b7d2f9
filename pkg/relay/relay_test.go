package relay

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}`
}

func TestRunAccumulatesDeltasInOrder(t *testing.T) {
	// Scripted provider stream: frames with content, a frame without a
	// content field, a malformed frame, and the termination sentinel.
	lines := []string{
		frame("Hello"),
		"",
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		"",
		frame(", "),
		"",
		`data: {not valid json`,
		"",
		frame("world"),
		"",
		"data: [DONE]",
		"",
	}
	src := strings.NewReader(strings.Join(lines, "\n") + "\n")

	var dst bytes.Buffer
	result := New(nil).Run(&dst, src)

	assert.Equal(t, "Hello, world", result.Accumulated)
	assert.False(t, result.ClientGone)
	assert.NoError(t, result.UpstreamErr)
}

func TestRunForwardsBytesVerbatim(t *testing.T) {
	raw := frame("a") + "\n\n" + `data: {broken` + "\n\n" + "data: [DONE]\n\n"

	var dst bytes.Buffer
	New(nil).Run(&dst, strings.NewReader(raw))

	// Every line is relayed unchanged, including the malformed frame.
	assert.Equal(t, raw, dst.String())
}

// failingWriter errors after n successful writes, simulating a client
// disconnect mid-stream.
type failingWriter struct {
	n      int
	writes int
	buf    bytes.Buffer
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.writes >= w.n {
		return 0, errors.New("broken pipe")
	}
	w.writes++
	return w.buf.Write(p)
}

func TestRunClientDisconnectKeepsPartialAccumulation(t *testing.T) {
	lines := strings.Join([]string{
		frame("one"), "",
		frame("two"), "",
		frame("three"), "",
		"data: [DONE]", "",
	}, "\n") + "\n"

	// Allow the first three lines (first frame + blank + second frame),
	// then fail.
	w := &failingWriter{n: 3}
	result := New(nil).Run(w, strings.NewReader(lines))

	assert.True(t, result.ClientGone)
	assert.Equal(t, "onetwo", result.Accumulated)
}

// shortReader yields some data then fails, simulating an upstream drop.
type shortReader struct {
	r    io.Reader
	done bool
}

func (s *shortReader) Read(p []byte) (int, error) {
	if s.done {
		return 0, errors.New("connection reset")
	}
	n, err := s.r.Read(p)
	if err == io.EOF {
		s.done = true
		return n, nil
	}
	return n, err
}

func TestRunUpstreamErrorEmitsErrorFrame(t *testing.T) {
	src := &shortReader{r: strings.NewReader(frame("partial") + "\n\n")}

	var dst bytes.Buffer
	result := New(nil).Run(&dst, src)

	require.Error(t, result.UpstreamErr)
	assert.Equal(t, "partial", result.Accumulated)
	assert.Contains(t, dst.String(), `data: {"error":"connection reset"}`)
}

func TestExtractContentDelta(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
		ok   bool
	}{
		{"content delta", frame("hi"), "hi", true},
		{"no space after colon", `data:{"choices":[{"delta":{"content":"x"}}]}`, "x", true},
		{"empty content is a fragment", frame(""), "", true},
		{"done sentinel", "data: [DONE]", "", false},
		{"no content field", `data: {"choices":[{"delta":{}}]}`, "", false},
		{"no choices", `data: {"choices":[]}`, "", false},
		{"malformed json", `data: {oops`, "", false},
		{"non-data line", `event: ping`, "", false},
		{"blank line", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractContentDelta(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
