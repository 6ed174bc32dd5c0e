package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"interview-copilot/internal/domain"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusDone, JobStatusError:
		return true
	}
	return false
}

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// GenerationJob is the durable record of one answer generation.
type GenerationJob struct {
	ID                  string
	QuestionID          string
	SessionID           string
	RequesterID         string
	Question            string
	Status              JobStatus
	Attempt             int
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ProcessingStartedAt *time.Time
	Result              *Answer
	RawResponse         string
	ErrorDetail         *string
}

func NewGenerationJob(questionID, sessionID, requesterID, question string, now time.Time) (*GenerationJob, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", domain.ErrInvalidArgument)
	}
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidArgument)
	}
	return &GenerationJob{
		ID:          uuid.NewString(),
		QuestionID:  questionID,
		SessionID:   sessionID,
		RequesterID: requesterID,
		Question:    question,
		Status:      JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanTransition enforces pending -> processing -> {done, error}. A stale
// processing job may be re-claimed (processing -> processing).
func (j *GenerationJob) CanTransition(to JobStatus) bool {
	switch j.Status {
	case JobStatusPending:
		return to == JobStatusProcessing
	case JobStatusProcessing:
		return to == JobStatusProcessing || to == JobStatusDone || to == JobStatusError
	}
	return false
}

// Claimable reports whether a worker may take ownership at now.
func (j *GenerationJob) Claimable(now time.Time, staleAfter time.Duration) bool {
	switch j.Status {
	case JobStatusPending:
		return true
	case JobStatusProcessing:
		return j.IsStale(now, staleAfter)
	}
	return false
}

// IsStale is true for processing jobs whose current attempt started more
// than staleAfter before now.
func (j *GenerationJob) IsStale(now time.Time, staleAfter time.Duration) bool {
	if j.Status != JobStatusProcessing || j.ProcessingStartedAt == nil {
		return false
	}
	return j.ProcessingStartedAt.Before(now.Add(-staleAfter))
}

// AttemptBudget splits staleAfter into the time one attempt may spend
// generating (semaphore wait and every model call included) and the time
// left for its final write. Both together end before the attempt can look
// stale, so a live attempt is never re-claimed.
func AttemptBudget(staleAfter time.Duration) (generate, write time.Duration) {
	write = min(3*time.Second, staleAfter/5)
	margin := min(time.Second, staleAfter/10)
	return staleAfter - write - margin, write
}
