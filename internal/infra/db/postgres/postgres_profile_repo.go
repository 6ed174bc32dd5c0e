package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/domain/ports/repository"
)

var _ repository.ProfileRepository = (*profileRepo)(nil)

// profileRepo reads the candidate profile and the most recent interview's
// job description. Both tables are owned by the profile service.
type profileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *profileRepo {
	return &profileRepo{pool: pool}
}

func (r *profileRepo) FindByRequester(ctx context.Context, requesterID string) (*model.Profile, error) {
	if requesterID == "" {
		return nil, domain.ErrNotFound
	}
	const q = `
SELECT p.user_id, COALESCE(p.name, ''), COALESCE(p.target_role, ''), COALESCE(p.years_experience, 0),
       COALESCE(p.tech_stack, '{}'::text[]), COALESCE(p.projects, ''),
       COALESCE((SELECT i.job_description FROM interviews i
                 WHERE i.user_id = p.user_id
                 ORDER BY i.created_at DESC LIMIT 1), '')
FROM profiles p
WHERE p.user_id = $1;`

	row, err := pickRow(ctx, r.pool, nil, q, requesterID)
	if err != nil {
		return nil, err
	}
	var p model.Profile
	if err := row.Scan(&p.RequesterID, &p.Name, &p.TargetRole, &p.YearsExperience,
		&p.TechStack, &p.Projects, &p.JobDescription); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: profile: %v", domain.ErrReadDatabaseRow, err)
	}
	return &p, nil
}
