package apiv1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"interview-copilot/internal/usecase"
)

var _ usecase.EventSink = (*sseSink)(nil)

// sseSink writes server-sent events. Headers go out with the first event so
// a request that fails before streaming still gets a plain JSON error.
type sseSink struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w)}
}

func (s *sseSink) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseSink) event(data string) error {
	s.start()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseSink) Chunk(text string) error {
	b, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	return s.event(string(b))
}

func (s *sseSink) Done() error { return s.event("[DONE]") }

func (s *sseSink) Error(msg string) error {
	b, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return err
	}
	return s.event(string(b))
}
