//go:build !integration

package apiv1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/model"
	apiv1 "interview-copilot/internal/infra/api/apiv1"
	"interview-copilot/internal/infra/structured"
	"interview-copilot/internal/usecase"
)

const (
	jobA       = "7d9f3c1e-2b4a-4c8e-9f10-3a5b6c7d8e90"
	jobDone    = "0b6f4a52-8c1d-4e7f-a3b2-1c9d8e7f6a50"
	jobFailed  = "5e2d7c19-3f4b-4a6e-8d21-9b0c1a2e3f40"
	jobRunning = "c3a1b9e8-7d6f-4c5b-9a0e-2f1d3c4b5a60"
)

//
// ---------------- fakes ----------------
//

type fakeQuestions struct {
	res *usecase.IntakeResult
	err error
	got usecase.IntakeRequest
}

func (f *fakeQuestions) Intake(ctx context.Context, req usecase.IntakeRequest) (*usecase.IntakeResult, error) {
	f.got = req
	return f.res, f.err
}

type fakeJobs struct {
	jobs      map[string]*model.GenerationJob
	entries   []*model.SessionEntry
	submitRes *usecase.SubmitResult
	submitErr error
	refineErr error
	submitted usecase.SubmitRequest
}

func (f *fakeJobs) Submit(ctx context.Context, req usecase.SubmitRequest) (*usecase.SubmitResult, error) {
	f.submitted = req
	return f.submitRes, f.submitErr
}

func (f *fakeJobs) Get(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	if j, ok := f.jobs[jobID]; ok {
		return j, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobs) ListSession(ctx context.Context, sessionID string) ([]*model.SessionEntry, error) {
	return f.entries, nil
}

func (f *fakeJobs) Shorten(ctx context.Context, jobID string) (string, error) {
	if f.refineErr != nil {
		return "", f.refineErr
	}
	return "short", nil
}

func (f *fakeJobs) AddExample(ctx context.Context, jobID string) (string, error) {
	if f.refineErr != nil {
		return "", f.refineErr
	}
	return "with example", nil
}

// fakeStream emits chunks, then either err (as an error event when started)
// or done.
type fakeStream struct {
	chunks  []string
	err     error
	errText string
}

func (f *fakeStream) Stream(ctx context.Context, jobID string, sink usecase.EventSink) error {
	for _, c := range f.chunks {
		if err := sink.Chunk(c); err != nil {
			return err
		}
	}
	if f.err != nil {
		if f.errText != "" {
			_ = sink.Error(f.errText)
		}
		return f.err
	}
	return sink.Done()
}

//
// -------------------- helpers --------------------
//

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

type fixture struct {
	questions *fakeQuestions
	jobs      *fakeJobs
	stream    *fakeStream
	router    *chi.Mux
}

func newFixture(opts apiv1.Options) *fixture {
	f := &fixture{
		questions: &fakeQuestions{},
		jobs:      &fakeJobs{jobs: map[string]*model.GenerationJob{}},
		stream:    &fakeStream{},
		router:    chi.NewRouter(),
	}
	apiv1.RegisterAPIV1(f.router, apiv1.NewServer(f.questions, f.jobs, f.stream, newLogger()), opts)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

//
// -------------------- tests --------------------
//

func TestJobs_Submit(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		f := newFixture(apiv1.Options{})
		f.jobs.submitRes = &usecase.SubmitResult{JobID: "j1", QuestionID: "q1", Status: "processing"}
		rec := f.do(http.MethodPost, "/api/jobs", `{"session_id":"s1","requester_id":"u1","question":"Why Go?","deferred":true}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("want 202, got %d body=%s", rec.Code, rec.Body.String())
		}
		body := decodeMap(t, rec)
		if body["job_id"] != "j1" || body["status"] != "processing" {
			t.Fatalf("unexpected body %v", body)
		}
		if f.jobs.submitted.SessionID != "s1" || !f.jobs.submitted.Deferred || f.jobs.submitted.Question != "Why Go?" {
			t.Fatalf("request not passed through: %+v", f.jobs.submitted)
		}
	})

	t.Run("duplicate maps to 409 with the earlier question", func(t *testing.T) {
		f := newFixture(apiv1.Options{})
		f.jobs.submitRes = &usecase.SubmitResult{QuestionID: "q0"}
		f.jobs.submitErr = domain.ErrDuplicateQuestion
		rec := f.do(http.MethodPost, "/api/jobs", `{"session_id":"s1","question":"Why Go?"}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("want 409, got %d", rec.Code)
		}
		if body := decodeMap(t, rec); body["question_id"] != "q0" {
			t.Fatalf("unexpected body %v", body)
		}
	})

	t.Run("bad json and invalid input are 400", func(t *testing.T) {
		f := newFixture(apiv1.Options{})
		if rec := f.do(http.MethodPost, "/api/jobs", `{"session_id":`); rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400 for bad json, got %d", rec.Code)
		}
		if rec := f.do(http.MethodPost, "/api/jobs", `{"unknown":1}`); rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400 for unknown fields, got %d", rec.Code)
		}
		f.jobs.submitErr = domain.ErrInvalidArgument
		if rec := f.do(http.MethodPost, "/api/jobs", `{"session_id":""}`); rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})
}

func TestQuestions_Intake(t *testing.T) {
	cases := []struct {
		name   string
		res    *usecase.IntakeResult
		err    error
		status int
	}{
		{"submitted", &usecase.IntakeResult{JobID: "j1", Status: "processing"}, nil, http.StatusAccepted},
		{"skipped", &usecase.IntakeResult{Skipped: true, Reason: usecase.SkipIncomplete}, nil, http.StatusOK},
		{"model failure", nil, &structured.RepairError{Attempts: 3, Err: errors.New("bad json")}, http.StatusBadGateway},
		{"provider throttled", nil, domain.ErrRateLimited, http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(apiv1.Options{})
			f.questions.res, f.questions.err = tc.res, tc.err
			rec := f.do(http.MethodPost, "/api/questions", `{"session_id":"s1","transcript":"so um why go"}`)
			if rec.Code != tc.status {
				t.Fatalf("want %d, got %d body=%s", tc.status, rec.Code, rec.Body.String())
			}
			if f.questions.got.Transcript != "so um why go" {
				t.Fatalf("transcript not passed through")
			}
		})
	}
}

func TestJobs_Get(t *testing.T) {
	f := newFixture(apiv1.Options{})
	detail := "timed out"
	f.jobs.jobs[jobDone] = &model.GenerationJob{ID: jobDone, Status: model.JobStatusDone, Result: &model.Answer{FullAnswer: "42"}, CreatedAt: time.Now()}
	f.jobs.jobs[jobFailed] = &model.GenerationJob{ID: jobFailed, Status: model.JobStatusError, ErrorDetail: &detail}
	f.jobs.jobs[jobRunning] = &model.GenerationJob{ID: jobRunning, Status: model.JobStatusProcessing, Result: &model.Answer{FullAnswer: "stale"}}

	var done apiv1.Job
	rec := f.do(http.MethodGet, "/api/jobs/"+jobDone, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	_ = json.NewDecoder(rec.Body).Decode(&done)
	if done.Result == nil || done.Result.FullAnswer != "42" {
		t.Fatalf("done job should carry its result: %+v", done)
	}

	var failed apiv1.Job
	_ = json.NewDecoder(f.do(http.MethodGet, "/api/jobs/"+jobFailed, "").Body).Decode(&failed)
	if failed.Error != "timed out" || failed.Result != nil {
		t.Fatalf("unexpected failed job %+v", failed)
	}

	var running apiv1.Job
	_ = json.NewDecoder(f.do(http.MethodGet, "/api/jobs/"+jobRunning, "").Body).Decode(&running)
	if running.Result != nil || running.Status != "processing" {
		t.Fatalf("non-final jobs must not expose a result: %+v", running)
	}

	if rec := f.do(http.MethodGet, "/api/jobs/1f0e9d8c-7b6a-4958-8d7c-6b5a49382716", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestJobs_MalformedID(t *testing.T) {
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/jobs/abc"},
		{http.MethodGet, "/api/jobs/abc/stream"},
		{http.MethodPost, "/api/jobs/abc/shorten"},
		{http.MethodPost, "/api/jobs/abc/example"},
	}
	for _, tc := range paths {
		t.Run(tc.path, func(t *testing.T) {
			f := newFixture(apiv1.Options{})
			rec := f.do(tc.method, tc.path, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("want 400, got %d body=%s", rec.Code, rec.Body.String())
			}
			if strings.HasPrefix(rec.Body.String(), "data:") {
				t.Fatalf("no SSE framing expected: %q", rec.Body.String())
			}
		})
	}
}

func TestSessions_List(t *testing.T) {
	f := newFixture(apiv1.Options{})
	f.jobs.entries = []*model.SessionEntry{
		{Question: model.QuestionRecord{ID: "q1", CleanedQuestion: "Why Go?"}, JobID: "j1", JobStatus: model.JobStatusDone, Result: &model.Answer{FullAnswer: "fast"}},
		{Question: model.QuestionRecord{ID: "q2", CleanedQuestion: "Why not Rust?"}, JobID: "j2", JobStatus: model.JobStatusPending},
	}
	rec := f.do(http.MethodGet, "/api/sessions/s1/questions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var body struct {
		Items []apiv1.SessionItem `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Items) != 2 || body.Items[0].Result == nil || body.Items[1].Result != nil {
		t.Fatalf("unexpected items %+v", body.Items)
	}
}

func TestJobs_Refine(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		err    error
		status int
		field  string
	}{
		{"shorten", "/api/jobs/" + jobA + "/shorten", nil, http.StatusOK, "short_version"},
		{"example", "/api/jobs/" + jobA + "/example", nil, http.StatusOK, "augmented_answer"},
		{"not finished", "/api/jobs/" + jobA + "/shorten", domain.ErrJobNotFinished, http.StatusConflict, "error"},
		{"timeout", "/api/jobs/" + jobA + "/example", domain.ErrLLMTimeout, http.StatusBadGateway, "error"},
		{"unknown failure", "/api/jobs/" + jobA + "/example", errors.New("boom"), http.StatusInternalServerError, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(apiv1.Options{})
			f.jobs.refineErr = tc.err
			rec := f.do(http.MethodPost, tc.path, "")
			if rec.Code != tc.status {
				t.Fatalf("want %d, got %d", tc.status, rec.Code)
			}
			body := decodeMap(t, rec)
			if _, ok := body[tc.field]; !ok {
				t.Fatalf("missing %q in %v", tc.field, body)
			}
			if tc.status == http.StatusInternalServerError && body["error"] != "internal error" {
				t.Fatalf("internal details leaked: %v", body)
			}
		})
	}
}

func TestJobs_Stream(t *testing.T) {
	t.Run("chunks then done", func(t *testing.T) {
		f := newFixture(apiv1.Options{})
		f.stream.chunks = []string{"Hel", "lo", " world"}
		rec := f.do(http.MethodGet, "/api/jobs/"+jobA+"/stream", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
			t.Fatalf("content type %q", ct)
		}
		want := "data: {\"text\":\"Hel\"}\n\n" +
			"data: {\"text\":\"lo\"}\n\n" +
			"data: {\"text\":\" world\"}\n\n" +
			"data: [DONE]\n\n"
		if rec.Body.String() != want {
			t.Fatalf("body:\n%q\nwant:\n%q", rec.Body.String(), want)
		}
		if !rec.Flushed {
			t.Fatalf("events must be flushed")
		}
	})

	t.Run("failure before the first event is plain json", func(t *testing.T) {
		f := newFixture(apiv1.Options{})
		f.stream.err = domain.ErrJobNotClaimable
		rec := f.do(http.MethodGet, "/api/jobs/"+jobA+"/stream", "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("want 409, got %d", rec.Code)
		}
		if strings.HasPrefix(rec.Body.String(), "data:") {
			t.Fatalf("no SSE framing expected: %q", rec.Body.String())
		}
	})

	t.Run("failure mid-stream ends with an error event", func(t *testing.T) {
		f := newFixture(apiv1.Options{})
		f.stream.chunks = []string{"part"}
		f.stream.err = domain.ErrLLMTimeout
		f.stream.errText = "generation timed out"
		rec := f.do(http.MethodGet, "/api/jobs/"+jobA+"/stream", "")
		body := rec.Body.String()
		if !strings.HasSuffix(body, "data: {\"error\":\"generation timed out\"}\n\n") || strings.Contains(body, "[DONE]") {
			t.Fatalf("unexpected stream %q", body)
		}
	})
}

func TestRegister_SubmitWrapsOnlySubmitRoutes(t *testing.T) {
	block := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	f := newFixture(apiv1.Options{Submit: []apiv1.Wrap{block, nil}})
	f.jobs.jobs[jobA] = &model.GenerationJob{ID: jobA, Status: model.JobStatusPending}

	if rec := f.do(http.MethodPost, "/api/jobs", `{}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("submit should be wrapped, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/questions", `{}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("intake should be wrapped, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/jobs/"+jobA, ""); rec.Code != http.StatusOK {
		t.Fatalf("reads must not be wrapped, got %d", rec.Code)
	}
}
