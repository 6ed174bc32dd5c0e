// File: internal/usecase/job_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/domain/ports/repository"
	"interview-copilot/internal/infra/logging"
	"interview-copilot/internal/infra/metrics"
)

// JobRunner schedules background generation for a pending job.
type JobRunner interface {
	Enqueue(jobID string) error
}

type SubmitRequest struct {
	SessionID   string
	RequesterID string
	Question    string
	// Transcript is the raw text the question was cleaned from, if any.
	Transcript string
	// Deferred leaves the job pending for a streaming client to claim.
	Deferred bool
}

type SubmitResult struct {
	JobID      string `json:"job_id"`
	QuestionID string `json:"question_id"`
	Status     string `json:"status"`
}

// JobOrchestrator owns the synchronous side of the pipeline: admission,
// persistence and hand-off to background workers. It never waits on the model
// during Submit.
type JobOrchestrator struct {
	jobs      repository.GenerationJobRepository
	questions repository.QuestionRepository
	tm        repository.TransactionManager
	dedup     *DedupGuard
	answers   *AnswerService
	contexts  *ContextProvider
	runner    JobRunner
	now       func() time.Time
	log       *zerolog.Logger
}

func NewJobOrchestrator(
	jobs repository.GenerationJobRepository,
	questions repository.QuestionRepository,
	tm repository.TransactionManager,
	dedup *DedupGuard,
	answers *AnswerService,
	contexts *ContextProvider,
	runner JobRunner,
	logger *zerolog.Logger,
) *JobOrchestrator {
	l := logger.With().Str("component", "JobOrchestrator").Logger()
	return &JobOrchestrator{
		jobs:      jobs,
		questions: questions,
		tm:        tm,
		dedup:     dedup,
		answers:   answers,
		contexts:  contexts,
		runner:    runner,
		now:       time.Now,
		log:       &l,
	}
}

// Submit admits a question and returns as soon as the pending job exists.
// A duplicate returns ErrDuplicateQuestion together with the earlier
// question id.
func (o *JobOrchestrator) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	question := model.NormalizeQuestion(req.Question)
	if strings.TrimSpace(req.SessionID) == "" || question == "" {
		return nil, domain.ErrInvalidArgument
	}

	if prev, dup := o.dedup.Lookup(ctx, req.SessionID, question); dup {
		metrics.IncJobDuplicate()
		o.log.Info().Str("session_id", req.SessionID).Str("question_id", prev.ID).
			Str("question", logging.Redact(question)).Msg("duplicate question suppressed")
		return &SubmitResult{QuestionID: prev.ID}, domain.ErrDuplicateQuestion
	}

	now := o.now()
	rec := &model.QuestionRecord{
		ID:              uuid.NewString(),
		SessionID:       req.SessionID,
		Transcript:      req.Transcript,
		CleanedQuestion: question,
		CreatedAt:       now,
	}
	job, err := model.NewGenerationJob(rec.ID, req.SessionID, req.RequesterID, question, now)
	if err != nil {
		return nil, err
	}

	err = o.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := o.questions.Save(ctx, tx, rec); err != nil {
			return fmt.Errorf("save question: %w", err)
		}
		if err := o.jobs.Create(ctx, tx, job); err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	mode := "background"
	if req.Deferred {
		mode = "deferred"
	}
	metrics.IncJobSubmitted(mode)

	if !req.Deferred && o.runner != nil {
		if err := o.runner.Enqueue(job.ID); err != nil {
			// The row is durable; the sweeper re-drives orphaned pending jobs.
			o.log.Warn().Err(err).Str("job_id", job.ID).Msg("enqueue failed; job left pending")
		}
	}

	o.log.Debug().Str("job_id", job.ID).Str("session_id", req.SessionID).Str("mode", mode).Msg("job submitted")
	return &SubmitResult{JobID: job.ID, QuestionID: rec.ID, Status: string(model.JobStatusProcessing)}, nil
}

func (o *JobOrchestrator) Get(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	return o.jobs.FindByID(ctx, repository.NoTX, jobID)
}

func (o *JobOrchestrator) ListSession(ctx context.Context, sessionID string) ([]*model.SessionEntry, error) {
	if sessionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return o.questions.ListBySession(ctx, sessionID)
}

// Shorten condenses a finished answer and stores it on the job.
func (o *JobOrchestrator) Shorten(ctx context.Context, jobID string) (string, error) {
	job, err := o.finished(ctx, jobID)
	if err != nil {
		return "", err
	}
	short, err := o.answers.Shorten(ctx, job.Result.FullAnswer)
	if err != nil {
		return "", err
	}
	result := *job.Result
	result.Shortened = short
	if err := o.jobs.UpdateResult(ctx, job.ID, &result); err != nil {
		return "", err
	}
	return short, nil
}

// AddExample rewrites a finished answer around the requester's projects and
// stores it on the job.
func (o *JobOrchestrator) AddExample(ctx context.Context, jobID string) (string, error) {
	job, err := o.finished(ctx, jobID)
	if err != nil {
		return "", err
	}
	profile := o.contexts.Resolve(ctx, job.RequesterID)
	augmented, err := o.answers.AddExample(ctx, job.Result.FullAnswer, profile.Projects)
	if err != nil {
		return "", err
	}
	result := *job.Result
	result.AugmentedAnswer = augmented
	if err := o.jobs.UpdateResult(ctx, job.ID, &result); err != nil {
		return "", err
	}
	return augmented, nil
}

func (o *JobOrchestrator) finished(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	job, err := o.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusDone || job.Result == nil || job.Result.FullAnswer == "" {
		return nil, domain.ErrJobNotFinished
	}
	return job, nil
}

// validateJobID rejects ids the store could never have issued.
func validateJobID(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrInvalidArgument)
	}
	if _, err := uuid.Parse(jobID); err != nil {
		return fmt.Errorf("%w: job id %q is not a uuid", domain.ErrInvalidArgument, jobID)
	}
	return nil
}
