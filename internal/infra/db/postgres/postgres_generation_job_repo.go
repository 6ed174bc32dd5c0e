package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/domain/ports/repository"
)

var _ repository.GenerationJobRepository = (*generationJobRepo)(nil)

type generationJobRepo struct {
	pool *pgxpool.Pool
}

func NewGenerationJobRepo(pool *pgxpool.Pool) *generationJobRepo {
	return &generationJobRepo{pool: pool}
}

const jobColumns = `id, question_id, session_id, requester_id, question, status, attempt,
created_at, updated_at, processing_started_at, result, raw_response, error_detail`

func (r *generationJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.GenerationJob) error {
	const q = `
INSERT INTO generation_jobs (id, question_id, session_id, requester_id, question, status, attempt, created_at, updated_at)
VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $8);`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.QuestionID, job.SessionID, job.RequesterID, job.Question,
		string(job.Status), job.Attempt, job.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert generation job: %w", err)
	}
	return nil
}

func (r *generationJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.GenerationJob, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *generationJobRepo) Claim(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (*model.GenerationJob, error) {
	// Single conditional UPDATE: Postgres row locking serializes competing
	// claimers, and only one of them can observe the pre-update predicate.
	const q = `
UPDATE generation_jobs
SET status = 'processing',
    processing_started_at = $2,
    attempt = attempt + 1,
    updated_at = $2
WHERE id = $1
  AND (status = 'pending'
       OR (status = 'processing' AND processing_started_at < $3))
RETURNING ` + jobColumns + `;`

	row, err := pickRow(ctx, r.pool, nil, q, id, now, now.Add(-staleAfter))
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if errors.Is(err, domain.ErrNotFound) {
		if _, ferr := r.FindByID(ctx, nil, id); ferr != nil {
			return nil, ferr
		}
		return nil, domain.ErrJobNotClaimable
	}
	return job, err
}

func (r *generationJobRepo) Complete(ctx context.Context, id string, attempt int, result *model.Answer, raw string) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	const q = `
UPDATE generation_jobs
SET status = 'done', result = $3, raw_response = $4, error_detail = NULL, updated_at = NOW()
WHERE id = $1 AND status = 'processing' AND attempt = $2;`

	tag, err := execSQL(ctx, r.pool, nil, q, id, attempt, payload, raw)
	if err != nil {
		return fmt.Errorf("complete generation job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotClaimable
	}
	return nil
}

func (r *generationJobRepo) Fail(ctx context.Context, id string, attempt int, detail, raw string) error {
	const q = `
UPDATE generation_jobs
SET status = 'error', error_detail = $3, raw_response = $4, updated_at = NOW()
WHERE id = $1 AND status = 'processing' AND attempt = $2;`

	tag, err := execSQL(ctx, r.pool, nil, q, id, attempt, detail, raw)
	if err != nil {
		return fmt.Errorf("fail generation job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotClaimable
	}
	return nil
}

func (r *generationJobRepo) UpdateResult(ctx context.Context, id string, result *model.Answer) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	tag, err := execSQL(ctx, r.pool, nil,
		`UPDATE generation_jobs SET result = $2, updated_at = NOW() WHERE id = $1 AND status = 'done';`,
		id, payload)
	if err != nil {
		return fmt.Errorf("update job result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *generationJobRepo) FindStale(ctx context.Context, startedBefore time.Time) ([]*model.GenerationJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM generation_jobs
WHERE status = 'processing' AND processing_started_at < $1
ORDER BY processing_started_at;`, startedBefore)
}

func (r *generationJobRepo) FindOrphanedPending(ctx context.Context, createdBefore time.Time) ([]*model.GenerationJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM generation_jobs
WHERE status = 'pending' AND created_at < $1
ORDER BY created_at;`, createdBefore)
}

func (r *generationJobRepo) ListDoneBySession(ctx context.Context, sessionID string, limit int) ([]*model.GenerationJob, error) {
	jobs, err := r.list(ctx, `SELECT `+jobColumns+` FROM generation_jobs
WHERE session_id = $1 AND status = 'done'
ORDER BY created_at DESC
LIMIT $2;`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(jobs)-1; i < j; i, j = i+1, j-1 {
		jobs[i], jobs[j] = jobs[j], jobs[i]
	}
	return jobs, nil
}

func (r *generationJobRepo) list(ctx context.Context, q string, args ...interface{}) ([]*model.GenerationJob, error) {
	rows, err := queryRows(ctx, r.pool, nil, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (*model.GenerationJob, error) {
	var (
		job        model.GenerationJob
		questionID *string
		status     string
		result     []byte
	)
	err := row.Scan(
		&job.ID, &questionID, &job.SessionID, &job.RequesterID, &job.Question, &status, &job.Attempt,
		&job.CreatedAt, &job.UpdatedAt, &job.ProcessingStartedAt, &result, &job.RawResponse, &job.ErrorDetail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: generation job: %v", domain.ErrReadDatabaseRow, err)
	}
	if questionID != nil {
		job.QuestionID = *questionID
	}
	job.Status = model.JobStatus(status)
	if len(result) > 0 {
		var a model.Answer
		if err := json.Unmarshal(result, &a); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
		job.Result = &a
	}
	return &job, nil
}
