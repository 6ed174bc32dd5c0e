package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/domain/ports/adapter"
	"interview-copilot/internal/domain/ports/repository"
	"interview-copilot/internal/domain/ports/usecase"
	"interview-copilot/internal/infra/logging"
	"interview-copilot/internal/infra/metrics"
)

const alertTimeout = 10 * time.Second

var _ usecase.JobProcessor = (*GenerationProcessor)(nil)

// GenerationProcessor drives one job from claim to a terminal state on the
// background path. Generation failures are recorded on the job, never
// returned to the caller.
type GenerationProcessor struct {
	jobs       repository.GenerationJobRepository
	generator  usecase.AnswerGenerator
	alerts     adapter.AlertNotifier
	pool       *Pool
	staleAfter time.Duration
	now        func() time.Time
	log        *zerolog.Logger
}

func NewGenerationProcessor(
	jobs repository.GenerationJobRepository,
	generator usecase.AnswerGenerator,
	alerts adapter.AlertNotifier,
	pool *Pool,
	staleAfter time.Duration,
	logger *zerolog.Logger,
) *GenerationProcessor {
	l := logger.With().Str("component", "GenerationProcessor").Logger()
	return &GenerationProcessor{
		jobs:       jobs,
		generator:  generator,
		alerts:     alerts,
		pool:       pool,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        &l,
	}
}

// Enqueue hands the job to the pool without waiting for it.
func (p *GenerationProcessor) Enqueue(jobID string) error {
	return p.pool.Submit(func(ctx context.Context) error {
		_, err := p.Process(ctx, jobID)
		return err
	})
}

// Process claims jobID and runs generation. Losing the claim is not an
// error: another worker or a streaming client owns the job. The attempt,
// its final write included, is bounded by model.AttemptBudget so it ends
// before the job can be seen as stale.
func (p *GenerationProcessor) Process(ctx context.Context, jobID string) (usecase.Outcome, error) {
	ctx = logging.WithJobID(ctx, jobID)
	log := logging.With(ctx, p.log)
	defer logging.TraceDuration(log, "GenerationProcessor.Process")()

	job, err := p.jobs.Claim(ctx, jobID, p.now(), p.staleAfter)
	switch {
	case errors.Is(err, domain.ErrJobNotClaimable):
		metrics.IncClaimConflict()
		log.Debug().Msg("job already owned or finished")
		return usecase.OutcomeSkipped, nil
	case err != nil:
		return usecase.OutcomeSkipped, fmt.Errorf("claim job %s: %w", jobID, err)
	}

	log.Info().Int("attempt", job.Attempt).Str("session_id", job.SessionID).Msg("processing generation job")
	start := time.Now()
	budget, writeTimeout := model.AttemptBudget(p.staleAfter)

	gctx, cancelGen := context.WithTimeout(ctx, budget)
	answer, raw, genErr := p.generator.GenerateAnswer(gctx, job)
	expired := gctx.Err() != nil
	cancelGen()
	if genErr != nil && ctx.Err() != nil {
		// Shutting down: leave the attempt to go stale so the next sweep retries it.
		log.Warn().Err(genErr).Msg("generation interrupted; left for recovery")
		return usecase.OutcomeInterrupted, ctx.Err()
	}
	if genErr != nil && expired {
		genErr = fmt.Errorf("%w: attempt exceeded %s", domain.ErrLLMTimeout, budget)
	}

	// Final writes outlive the worker context.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	elapsed := time.Since(start)

	if genErr != nil {
		if err := p.jobs.Fail(wctx, job.ID, job.Attempt, genErr.Error(), raw); err != nil {
			log.Warn().Err(err).Int("attempt", job.Attempt).Msg("could not mark job failed")
			return usecase.OutcomeSkipped, nil
		}
		metrics.IncJobFinished(string(model.JobStatusError), "background", elapsed.Milliseconds())
		log.Error().Err(genErr).Dur("duration", elapsed).Msg("generation job failed")
		p.alert(job, genErr)
		return usecase.OutcomeFailed, nil
	}

	if err := p.jobs.Complete(wctx, job.ID, job.Attempt, answer, raw); err != nil {
		log.Warn().Err(err).Int("attempt", job.Attempt).Msg("could not store answer")
		return usecase.OutcomeSkipped, nil
	}
	metrics.IncJobFinished(string(model.JobStatusDone), "background", elapsed.Milliseconds())
	log.Info().Dur("duration", elapsed).Msg("generation job finished")
	return usecase.OutcomeDone, nil
}

func (p *GenerationProcessor) alert(job *model.GenerationJob, cause error) {
	if p.alerts == nil {
		return
	}
	text := fmt.Sprintf("Generation job %s failed (session %s, attempt %d): %v", job.ID, job.SessionID, job.Attempt, cause)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		if err := p.alerts.Notify(ctx, text); err != nil {
			p.log.Warn().Err(err).Str("job_id", job.ID).Msg("alert delivery failed")
		}
	}()
}
