package usecase

import (
	"context"

	"interview-copilot/internal/domain/model"
)

// AnswerGenerator produces the structured answer for a claimed job. It is
// what background workers and the recovery sweeper drive.
type AnswerGenerator interface {
	// GenerateAnswer returns the answer and the raw model text. On failure
	// raw still carries the last response, if any, for diagnostics.
	GenerateAnswer(ctx context.Context, job *model.GenerationJob) (answer *model.Answer, raw string, err error)
}

// Outcome is what a Process call did with the job.
type Outcome int

const (
	// OutcomeSkipped: the claim was lost to another owner or the job is finished.
	OutcomeSkipped Outcome = iota
	OutcomeDone
	OutcomeFailed
	// OutcomeInterrupted: shutdown cut the attempt short; it is left to go stale.
	OutcomeInterrupted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeFailed:
		return "failed"
	case OutcomeInterrupted:
		return "interrupted"
	}
	return "skipped"
}

// JobProcessor claims and drives one job to a terminal state.
type JobProcessor interface {
	Process(ctx context.Context, jobID string) (Outcome, error)
}
