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

var _ repository.QuestionRepository = (*questionRepo)(nil)

// TextCipher seals transcripts at rest. Decrypt must accept values that
// were never sealed.
type TextCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
}

type questionRepo struct {
	pool   *pgxpool.Pool
	cipher TextCipher
}

// NewQuestionRepo stores transcripts in plain text when cipher is nil.
func NewQuestionRepo(pool *pgxpool.Pool, cipher TextCipher) *questionRepo {
	return &questionRepo{pool: pool, cipher: cipher}
}

func (r *questionRepo) seal(s string) (string, error) {
	if r.cipher == nil || s == "" {
		return s, nil
	}
	return r.cipher.Encrypt(s)
}

func (r *questionRepo) open(s *string) error {
	if r.cipher == nil {
		return nil
	}
	plain, err := r.cipher.Decrypt(*s)
	if err != nil {
		return fmt.Errorf("decrypt transcript: %w", err)
	}
	*s = plain
	return nil
}

func (r *questionRepo) Save(ctx context.Context, tx repository.Tx, q *model.QuestionRecord) error {
	const sql = `
INSERT INTO question_records (id, session_id, transcript, cleaned_question, created_at)
VALUES ($1, $2, $3, $4, $5);`
	transcript, err := r.seal(q.Transcript)
	if err != nil {
		return fmt.Errorf("seal transcript: %w", err)
	}
	if _, err := execSQL(ctx, r.pool, tx, sql, q.ID, q.SessionID, transcript, q.CleanedQuestion, q.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert question record: %w", err)
	}
	return nil
}

func (r *questionRepo) FindRecentDuplicate(ctx context.Context, sessionID, cleaned string, since time.Time) (*model.QuestionRecord, error) {
	const sql = `
SELECT id, session_id, transcript, cleaned_question, created_at
FROM question_records
WHERE session_id = $1 AND cleaned_question = $2 AND created_at >= $3
ORDER BY created_at DESC
LIMIT 1;`
	row, err := pickRow(ctx, r.pool, nil, sql, sessionID, cleaned, since)
	if err != nil {
		return nil, err
	}
	var q model.QuestionRecord
	if err := row.Scan(&q.ID, &q.SessionID, &q.Transcript, &q.CleanedQuestion, &q.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: question record: %v", domain.ErrReadDatabaseRow, err)
	}
	if err := r.open(&q.Transcript); err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *questionRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.SessionEntry, error) {
	const sql = `
SELECT q.id, q.session_id, q.transcript, q.cleaned_question, q.created_at,
       j.id, j.status, j.result
FROM question_records q
LEFT JOIN generation_jobs j ON j.question_id = q.id
WHERE q.session_id = $1
ORDER BY q.created_at;`
	rows, err := queryRows(ctx, r.pool, nil, sql, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.SessionEntry
	for rows.Next() {
		var (
			e      model.SessionEntry
			jobID  *string
			status *string
			result []byte
		)
		if err := rows.Scan(&e.Question.ID, &e.Question.SessionID, &e.Question.Transcript,
			&e.Question.CleanedQuestion, &e.Question.CreatedAt, &jobID, &status, &result); err != nil {
			return nil, fmt.Errorf("%w: session entry: %v", domain.ErrReadDatabaseRow, err)
		}
		if err := r.open(&e.Question.Transcript); err != nil {
			return nil, err
		}
		if jobID != nil {
			e.JobID = *jobID
		}
		if status != nil {
			e.JobStatus = model.JobStatus(*status)
		}
		if len(result) > 0 {
			var a model.Answer
			if err := json.Unmarshal(result, &a); err != nil {
				return nil, fmt.Errorf("decode job result: %w", err)
			}
			e.Result = &a
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
