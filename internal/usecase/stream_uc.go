// File: internal/usecase/stream_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/domain/ports/repository"
	"interview-copilot/internal/infra/logging"
	"interview-copilot/internal/infra/metrics"
)

// EventSink is one client's server-push channel. Implementations write each
// call as a discrete event and flush it.
type EventSink interface {
	Chunk(text string) error
	Done() error
	Error(msg string) error
}

// StreamEmitter claims a job and forwards model chunks to a single client
// in production order, then stores the concatenation as the result.
type StreamEmitter struct {
	jobs       repository.GenerationJobRepository
	answers    *AnswerService
	staleAfter time.Duration
	now        func() time.Time
	log        *zerolog.Logger
}

func NewStreamEmitter(jobs repository.GenerationJobRepository, answers *AnswerService, staleAfter time.Duration, logger *zerolog.Logger) *StreamEmitter {
	l := logger.With().Str("component", "StreamEmitter").Logger()
	return &StreamEmitter{jobs: jobs, answers: answers, staleAfter: staleAfter, now: time.Now, log: &l}
}

// Stream returns an error without emitting anything when the job cannot be
// streamed (unknown or owned by another worker). A finished job is replayed.
// If the client goes away mid-stream the job is left processing for the
// recovery sweeper. Generation and the final write share the attempt
// budget so a live stream never looks stale.
func (e *StreamEmitter) Stream(ctx context.Context, jobID string, sink EventSink) error {
	log := logging.With(logging.WithJobID(ctx, jobID), e.log)

	if err := validateJobID(jobID); err != nil {
		return err
	}
	job, err := e.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case model.JobStatusDone:
		if job.Result != nil && job.Result.FullAnswer != "" {
			if err := sink.Chunk(job.Result.FullAnswer); err != nil {
				return err
			}
		}
		return sink.Done()
	case model.JobStatusError:
		detail := "generation failed"
		if job.ErrorDetail != nil {
			detail = *job.ErrorDetail
		}
		return sink.Error(detail)
	}

	started := e.now()
	claimed, err := e.jobs.Claim(ctx, jobID, started, e.staleAfter)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotClaimable) {
			metrics.IncClaimConflict()
		}
		return err
	}

	budget, writeTimeout := model.AttemptBudget(e.staleAfter)
	gctx, cancelGen := context.WithTimeout(ctx, budget)
	defer cancelGen()

	prompt := e.answers.StreamPrompt(gctx, claimed)
	var full strings.Builder
	for chunk, err := range e.answers.Stream(gctx, prompt) {
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("client went away; leaving job for recovery")
				return ctx.Err()
			}
			if gctx.Err() != nil {
				err = fmt.Errorf("%w: attempt exceeded %s", domain.ErrLLMTimeout, budget)
			}
			e.fail(ctx, log, claimed, err, full.String(), started)
			_ = sink.Error(err.Error())
			return err
		}
		if chunk == "" {
			continue
		}
		full.WriteString(chunk)
		if err := sink.Chunk(chunk); err != nil {
			log.Info().Err(err).Msg("client write failed; leaving job for recovery")
			return err
		}
		metrics.IncStreamChunk()
	}

	text := full.String()
	if strings.TrimSpace(text) == "" {
		e.fail(ctx, log, claimed, domain.ErrEmptyResponse, "", started)
		_ = sink.Error(domain.ErrEmptyResponse.Error())
		return domain.ErrEmptyResponse
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	answer := &model.Answer{FullAnswer: text, Streamed: true}
	if err := e.jobs.Complete(wctx, claimed.ID, claimed.Attempt, answer, text); err != nil {
		log.Error().Err(err).Int("attempt", claimed.Attempt).Msg("could not store streamed answer")
		_ = sink.Error("answer could not be saved")
		return fmt.Errorf("complete streamed job: %w", err)
	}
	metrics.IncJobFinished(string(model.JobStatusDone), "stream", time.Since(started).Milliseconds())
	return sink.Done()
}

// fail records the terminal error best-effort; a lost race with a newer
// attempt is only logged.
func (e *StreamEmitter) fail(ctx context.Context, log *zerolog.Logger, job *model.GenerationJob, cause error, raw string, started time.Time) {
	_, writeTimeout := model.AttemptBudget(e.staleAfter)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := e.jobs.Fail(wctx, job.ID, job.Attempt, cause.Error(), raw); err != nil {
		log.Warn().Err(err).Int("attempt", job.Attempt).Msg("could not mark streamed job failed")
	}
	metrics.IncJobFinished(string(model.JobStatusError), "stream", time.Since(started).Milliseconds())
}
