package repository

import (
	"context"
	"time"

	"interview-copilot/internal/domain/model"
)

type QuestionRepository interface {
	Save(ctx context.Context, tx Tx, q *model.QuestionRecord) error
	// FindRecentDuplicate returns the newest record in session with exactly
	// this cleaned text created at or after since, or domain.ErrNotFound.
	FindRecentDuplicate(ctx context.Context, sessionID, cleaned string, since time.Time) (*model.QuestionRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]*model.SessionEntry, error)
}

type ProfileRepository interface {
	// FindByRequester returns domain.ErrNotFound when no profile exists.
	FindByRequester(ctx context.Context, requesterID string) (*model.Profile, error)
}
