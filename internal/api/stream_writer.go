package api

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// SSEStreamWriter emits generation progress as server-sent events: one
// "generation.step" event per decoding step, then a terminal
// "generation.done" or "generation.error".
type SSEStreamWriter struct {
	w       io.Writer
	flusher func()
}

func NewSSEStreamWriter(c *echo.Context) (*SSEStreamWriter, error) {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")

	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	return &SSEStreamWriter{w: res, flusher: flusher.Flush}, nil
}

func (s *SSEStreamWriter) Step(step int, tokens []int32) {
	s.send(streamEvent{Type: "generation.step", Step: step, Tokens: tokens})
}

func (s *SSEStreamWriter) Done(resp GenerateResponse) {
	s.send(streamEvent{Type: "generation.done", Response: &resp})
	s.sendRaw("data: [DONE]\n\n")
}

func (s *SSEStreamWriter) Fail(err error) {
	s.send(streamEvent{Type: "generation.error", Error: err.Error()})
}

func (s *SSEStreamWriter) send(ev streamEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.sendRaw("data: " + string(payload) + "\n\n")
}

func (s *SSEStreamWriter) sendRaw(raw string) {
	if _, err := io.WriteString(s.w, raw); err != nil {
		return
	}
	s.flusher()
}
