// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"errors"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/domain/ports/adapter"
	"interview-copilot/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// ---- generation jobs ----

// memJobRepo mirrors the Postgres claim and fencing rules in memory.
type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.GenerationJob

	listErr error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.GenerationJob)}
}

func cloneJob(j *model.GenerationJob) *model.GenerationJob {
	cp := *j
	if j.Result != nil {
		r := *j.Result
		cp.Result = &r
	}
	if j.ProcessingStartedAt != nil {
		t := *j.ProcessingStartedAt
		cp.ProcessingStartedAt = &t
	}
	if j.ErrorDetail != nil {
		d := *j.ErrorDetail
		cp.ErrorDetail = &d
	}
	return &cp
}

func (m *memJobRepo) put(j *model.GenerationJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = cloneJob(j)
}

func (m *memJobRepo) get(id string) *model.GenerationJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		return cloneJob(j)
	}
	return nil
}

func (m *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.GenerationJob, error) {
	if j := m.get(id); j != nil {
		return j, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memJobRepo) Claim(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (*model.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !j.Claimable(now, staleAfter) {
		return nil, domain.ErrJobNotClaimable
	}
	started := now
	j.Status = model.JobStatusProcessing
	j.ProcessingStartedAt = &started
	j.Attempt++
	j.UpdatedAt = now
	return cloneJob(j), nil
}

func (m *memJobRepo) fenced(id string, attempt int) (*model.GenerationJob, error) {
	j, ok := m.jobs[id]
	if !ok || j.Status != model.JobStatusProcessing || j.Attempt != attempt {
		return nil, domain.ErrJobNotClaimable
	}
	return j, nil
}

func (m *memJobRepo) Complete(ctx context.Context, id string, attempt int, result *model.Answer, raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.fenced(id, attempt)
	if err != nil {
		return err
	}
	r := *result
	j.Status = model.JobStatusDone
	j.Result = &r
	j.RawResponse = raw
	j.ErrorDetail = nil
	return nil
}

func (m *memJobRepo) Fail(ctx context.Context, id string, attempt int, detail, raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.fenced(id, attempt)
	if err != nil {
		return err
	}
	j.Status = model.JobStatusError
	j.ErrorDetail = &detail
	j.RawResponse = raw
	return nil
}

func (m *memJobRepo) UpdateResult(ctx context.Context, id string, result *model.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != model.JobStatusDone {
		return domain.ErrNotFound
	}
	r := *result
	j.Result = &r
	return nil
}

func (m *memJobRepo) FindStale(ctx context.Context, startedBefore time.Time) ([]*model.GenerationJob, error) {
	return m.filter(func(j *model.GenerationJob) bool {
		return j.Status == model.JobStatusProcessing && j.ProcessingStartedAt != nil && j.ProcessingStartedAt.Before(startedBefore)
	}), nil
}

func (m *memJobRepo) FindOrphanedPending(ctx context.Context, createdBefore time.Time) ([]*model.GenerationJob, error) {
	return m.filter(func(j *model.GenerationJob) bool {
		return j.Status == model.JobStatusPending && j.CreatedAt.Before(createdBefore)
	}), nil
}

func (m *memJobRepo) ListDoneBySession(ctx context.Context, sessionID string, limit int) ([]*model.GenerationJob, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	done := m.filter(func(j *model.GenerationJob) bool {
		return j.SessionID == sessionID && j.Status == model.JobStatusDone
	})
	if len(done) > limit {
		done = done[len(done)-limit:]
	}
	return done, nil
}

// filter returns matches oldest first.
func (m *memJobRepo) filter(keep func(*model.GenerationJob) bool) []*model.GenerationJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.GenerationJob
	for _, j := range m.jobs {
		if keep(j) {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

// ---- questions ----

type memQuestionRepo struct {
	mu      sync.Mutex
	records []*model.QuestionRecord
	jobs    *memJobRepo

	findErr error
	saveErr error
}

func newMemQuestionRepo(jobs *memJobRepo) *memQuestionRepo {
	return &memQuestionRepo{jobs: jobs}
}

func (m *memQuestionRepo) Save(ctx context.Context, tx repository.Tx, q *model.QuestionRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *q
	m.records = append(m.records, &cp)
	return nil
}

func (m *memQuestionRepo) FindRecentDuplicate(ctx context.Context, sessionID, cleaned string, since time.Time) (*model.QuestionRecord, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.SessionID == sessionID && r.CleanedQuestion == cleaned && !r.CreatedAt.Before(since) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memQuestionRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.SessionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SessionEntry
	for _, r := range m.records {
		if r.SessionID != sessionID {
			continue
		}
		e := &model.SessionEntry{Question: *r}
		if m.jobs != nil {
			for _, j := range m.jobs.filter(func(j *model.GenerationJob) bool { return j.QuestionID == r.ID }) {
				e.JobID, e.JobStatus, e.Result = j.ID, j.Status, j.Result
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memQuestionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// ---- profiles ----

type memProfileRepo struct {
	profiles map[string]*model.Profile
	err      error
}

func (m *memProfileRepo) FindByRequester(ctx context.Context, requesterID string) (*model.Profile, error) {
	if m.err != nil {
		return nil, m.err
	}
	if p, ok := m.profiles[requesterID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

// ---- tx ----

type fakeTxManager struct {
	calls int
}

func (f *fakeTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	f.calls++
	return fn(ctx, repository.NoTX)
}

// ---- model ----

// scriptedLLM answers chat sends from a queue shared by every chat it opens
// and streams a fixed chunk list.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	sends   []string
	opts    []adapter.GenerateOptions
	sendErr error

	chunks    []string
	streamErr error
	prompts   []string

	// streamHang blocks after the chunks until ctx is done.
	streamHang bool
}

func (s *scriptedLLM) Provider() string { return "fake" }

func (s *scriptedLLM) NewChat(ctx context.Context, opts adapter.GenerateOptions) (adapter.Chat, error) {
	s.mu.Lock()
	s.opts = append(s.opts, opts)
	s.mu.Unlock()
	return scriptedChat{llm: s}, nil
}

func (s *scriptedLLM) Stream(ctx context.Context, prompt string, opts adapter.GenerateOptions) iter.Seq2[string, error] {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	chunks, streamErr, hang := s.chunks, s.streamErr, s.streamHang
	s.mu.Unlock()
	return func(yield func(string, error) bool) {
		for _, c := range chunks {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if hang {
			<-ctx.Done()
			yield("", ctx.Err())
			return
		}
		if streamErr != nil {
			yield("", streamErr)
		}
	}
}

func (s *scriptedLLM) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sends)
}

type scriptedChat struct{ llm *scriptedLLM }

func (c scriptedChat) Send(ctx context.Context, msg string) (string, error) {
	s := c.llm
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, msg)
	if s.sendErr != nil {
		return "", s.sendErr
	}
	if len(s.replies) == 0 {
		return "", errors.New("script exhausted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

// ---- runner ----

type fakeRunner struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (f *fakeRunner) Enqueue(jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, jobID)
	return nil
}

// ---- sink ----

type recordingSink struct {
	chunks   []string
	done     bool
	errMsg   string
	failFrom int // Chunk fails from this call on when > 0
}

func (r *recordingSink) Chunk(text string) error {
	if r.failFrom > 0 && len(r.chunks)+1 >= r.failFrom {
		return errors.New("broken pipe")
	}
	r.chunks = append(r.chunks, text)
	return nil
}

func (r *recordingSink) Done() error {
	r.done = true
	return nil
}

func (r *recordingSink) Error(msg string) error {
	r.errMsg = msg
	return nil
}

// ---- wiring ----

type harness struct {
	jobs      *memJobRepo
	questions *memQuestionRepo
	profiles  *memProfileRepo
	tm        *fakeTxManager
	llm       *scriptedLLM
	runner    *fakeRunner
	contexts  *ContextProvider
	answers   *AnswerService
	dedup     *DedupGuard
	orch      *JobOrchestrator
	intake    *QuestionUseCase
	stream    *StreamEmitter
	clock     *fakeClock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newHarness() *harness {
	log := newTestLogger()
	h := &harness{
		jobs:     newMemJobRepo(),
		profiles: &memProfileRepo{profiles: map[string]*model.Profile{}},
		tm:       &fakeTxManager{},
		llm:      &scriptedLLM{},
		runner:   &fakeRunner{},
		clock:    &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	h.questions = newMemQuestionRepo(h.jobs)
	h.contexts = NewContextProvider(h.profiles, log)
	h.answers = NewAnswerService(h.llm, h.jobs, h.contexts, nil, 5, 0, log)
	h.dedup = NewDedupGuard(h.questions, DefaultDedupWindow, log)
	h.dedup.now = h.clock.Now
	h.orch = NewJobOrchestrator(h.jobs, h.questions, h.tm, h.dedup, h.answers, h.contexts, h.runner, log)
	h.orch.now = h.clock.Now
	h.intake = NewQuestionUseCase(h.answers, h.contexts, h.orch, log)
	h.stream = NewStreamEmitter(h.jobs, h.answers, 30*time.Second, log)
	h.stream.now = h.clock.Now
	return h
}
