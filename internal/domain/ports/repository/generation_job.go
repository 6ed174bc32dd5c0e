package repository

import (
	"context"
	"time"

	"interview-copilot/internal/domain/model"
)

type GenerationJobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.GenerationJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.GenerationJob, error)

	// Claim atomically moves a pending job, or a processing job whose
	// attempt started before now-staleAfter, into processing with a fresh
	// start time and an incremented attempt. Returns domain.ErrJobNotClaimable
	// when the job exists but is not eligible, domain.ErrNotFound when absent.
	Claim(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (*model.GenerationJob, error)

	// Complete and Fail only apply while the job is still processing under
	// the given attempt. A superseded attempt gets domain.ErrJobNotClaimable.
	Complete(ctx context.Context, id string, attempt int, result *model.Answer, raw string) error
	Fail(ctx context.Context, id string, attempt int, detail, raw string) error

	// UpdateResult rewrites the result of a done job (refinements).
	UpdateResult(ctx context.Context, id string, result *model.Answer) error

	FindStale(ctx context.Context, startedBefore time.Time) ([]*model.GenerationJob, error)
	FindOrphanedPending(ctx context.Context, createdBefore time.Time) ([]*model.GenerationJob, error)

	// ListDoneBySession returns at most limit finished jobs, oldest first.
	ListDoneBySession(ctx context.Context, sessionID string, limit int) ([]*model.GenerationJob, error)
}
