// File: internal/infra/api/apiv1/server.go
package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/infra/logging"
	"interview-copilot/internal/usecase"
)

const maxBodyBytes = 64 << 10

type Questions interface {
	Intake(ctx context.Context, req usecase.IntakeRequest) (*usecase.IntakeResult, error)
}

type Jobs interface {
	Submit(ctx context.Context, req usecase.SubmitRequest) (*usecase.SubmitResult, error)
	Get(ctx context.Context, jobID string) (*model.GenerationJob, error)
	ListSession(ctx context.Context, sessionID string) ([]*model.SessionEntry, error)
	Shorten(ctx context.Context, jobID string) (string, error)
	AddExample(ctx context.Context, jobID string) (string, error)
}

type Streamer interface {
	Stream(ctx context.Context, jobID string, sink usecase.EventSink) error
}

// Server holds the v1 handlers. Routes are attached by RegisterAPIV1.
type Server struct {
	questions Questions
	jobs      Jobs
	stream    Streamer
	log       *zerolog.Logger
}

func NewServer(questions Questions, jobs Jobs, stream Streamer, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "apiv1").Logger()
	return &Server{questions: questions, jobs: jobs, stream: stream, log: &l}
}

// Wrap decorates a subset of routes, e.g. with a rate limit or a timeout.
type Wrap = func(http.Handler) http.Handler

// Options carries per-route-group middleware. Nil entries are skipped.
type Options struct {
	Submit  []Wrap
	Request []Wrap
}

// RegisterAPIV1 mounts every v1 route on r. Streaming routes get none of the
// request middlewares so a timeout cannot cut an answer short.
func RegisterAPIV1(r chi.Router, s *Server, opts Options) {
	r.Group(func(r chi.Router) {
		useAll(r, opts.Request)
		r.Get("/api/sessions/{id}/questions", s.listSession)
		r.Get("/api/jobs/{id}", s.getJob)
		r.Post("/api/jobs/{id}/shorten", s.shorten)
		r.Post("/api/jobs/{id}/example", s.addExample)

		r.Group(func(r chi.Router) {
			useAll(r, opts.Submit)
			r.Post("/api/questions", s.intake)
			r.Post("/api/jobs", s.submit)
		})
	})
	r.Get("/api/jobs/{id}/stream", s.streamJob)
}

func useAll(r chi.Router, mws []Wrap) {
	for _, mw := range mws {
		if mw != nil {
			r.Use(mw)
		}
	}
}

// ---- DTOs ----

type IntakeBody struct {
	SessionID   string `json:"session_id"`
	RequesterID string `json:"requester_id"`
	Transcript  string `json:"transcript"`
	Deferred    bool   `json:"deferred"`
}

type SubmitBody struct {
	SessionID   string `json:"session_id"`
	RequesterID string `json:"requester_id"`
	Question    string `json:"question"`
	Deferred    bool   `json:"deferred"`
}

type Job struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Question  string        `json:"question"`
	Status    string        `json:"status"`
	Attempt   int           `json:"attempt"`
	CreatedAt time.Time     `json:"created_at"`
	Result    *model.Answer `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type SessionItem struct {
	QuestionID string        `json:"question_id"`
	Question   string        `json:"question"`
	Transcript string        `json:"transcript,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	JobID      string        `json:"job_id,omitempty"`
	Status     string        `json:"status,omitempty"`
	Result     *model.Answer `json:"result,omitempty"`
}

func toJob(j *model.GenerationJob) Job {
	out := Job{
		ID:        j.ID,
		SessionID: j.SessionID,
		Question:  j.Question,
		Status:    string(j.Status),
		Attempt:   j.Attempt,
		CreatedAt: j.CreatedAt,
	}
	// Results are only exposed once final.
	switch j.Status {
	case model.JobStatusDone:
		out.Result = j.Result
	case model.JobStatusError:
		if j.ErrorDetail != nil {
			out.Error = *j.ErrorDetail
		}
	}
	return out
}

// ---- handlers ----

func (s *Server) intake(w http.ResponseWriter, r *http.Request) {
	var body IntakeBody
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.questions.Intake(r.Context(), usecase.IntakeRequest{
		SessionID:   body.SessionID,
		RequesterID: body.RequesterID,
		Transcript:  body.Transcript,
		Deferred:    body.Deferred,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusAccepted
	if res.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var body SubmitBody
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.jobs.Submit(r.Context(), usecase.SubmitRequest{
		SessionID:   body.SessionID,
		RequesterID: body.RequesterID,
		Question:    body.Question,
		Deferred:    body.Deferred,
	})
	if errors.Is(err, domain.ErrDuplicateQuestion) && res != nil {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":       "duplicate question",
			"question_id": res.QuestionID,
		})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJob(job))
}

func (s *Server) listSession(w http.ResponseWriter, r *http.Request) {
	entries, err := s.jobs.ListSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]SessionItem, 0, len(entries))
	for _, e := range entries {
		item := SessionItem{
			QuestionID: e.Question.ID,
			Question:   e.Question.CleanedQuestion,
			Transcript: e.Question.Transcript,
			CreatedAt:  e.Question.CreatedAt,
			JobID:      e.JobID,
			Status:     string(e.JobStatus),
		}
		if e.JobStatus == model.JobStatusDone {
			item.Result = e.Result
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) shorten(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	short, err := s.jobs.Shorten(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"short_version": short})
}

func (s *Server) addExample(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	augmented, err := s.jobs.AddExample(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"augmented_answer": augmented})
}

func (s *Server) streamJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	sink := newSSESink(w)
	err := s.stream.Stream(r.Context(), id, sink)
	if err == nil {
		return
	}
	if !sink.started {
		s.fail(w, r, err)
		return
	}
	l := logging.With(r.Context(), s.log)
	l.Info().Err(err).Msg("stream ended early")
}

// ---- helpers ----

// jobID rejects malformed ids before they reach the store.
func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		s.fail(w, r, fmt.Errorf("%w: job id %q is not a uuid", domain.ErrInvalidArgument, id))
		return "", false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body: " + strings.TrimPrefix(err.Error(), "json: ")})
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
