// File: internal/usecase/question_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/infra/logging"
)

const (
	SkipIncomplete = "incomplete"
	SkipDuplicate  = "duplicate"
)

type IntakeRequest struct {
	SessionID   string
	RequesterID string
	Transcript  string
	Deferred    bool
}

// IntakeResult is either a submitted job or a skip with its reason.
type IntakeResult struct {
	Skipped    bool   `json:"skipped"`
	Reason     string `json:"reason,omitempty"`
	Question   string `json:"question,omitempty"`
	QuestionID string `json:"question_id,omitempty"`
	JobID      string `json:"job_id,omitempty"`
	Status     string `json:"status,omitempty"`
}

// QuestionUseCase turns a raw transcript into a submitted job.
type QuestionUseCase struct {
	answers  *AnswerService
	contexts *ContextProvider
	jobs     *JobOrchestrator
	log      *zerolog.Logger
}

func NewQuestionUseCase(answers *AnswerService, contexts *ContextProvider, jobs *JobOrchestrator, logger *zerolog.Logger) *QuestionUseCase {
	l := logger.With().Str("component", "QuestionUseCase").Logger()
	return &QuestionUseCase{answers: answers, contexts: contexts, jobs: jobs, log: &l}
}

func (u *QuestionUseCase) Intake(ctx context.Context, req IntakeRequest) (*IntakeResult, error) {
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Transcript) == "" {
		return nil, domain.ErrInvalidArgument
	}

	profile := u.contexts.Resolve(ctx, req.RequesterID)
	cleaned, err := u.answers.CleanQuestion(ctx, req.Transcript, profile)
	if err != nil {
		return nil, err
	}
	if cleaned.Kind == model.CleanKindIncomplete {
		u.log.Debug().Str("session_id", req.SessionID).Str("transcript", logging.Redact(req.Transcript)).Msg("transcript is not a complete question")
		return &IntakeResult{Skipped: true, Reason: SkipIncomplete}, nil
	}

	res, err := u.jobs.Submit(ctx, SubmitRequest{
		SessionID:   req.SessionID,
		RequesterID: req.RequesterID,
		Question:    cleaned.Question,
		Transcript:  req.Transcript,
		Deferred:    req.Deferred,
	})
	if errors.Is(err, domain.ErrDuplicateQuestion) {
		return &IntakeResult{Skipped: true, Reason: SkipDuplicate, Question: cleaned.Question, QuestionID: res.QuestionID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &IntakeResult{
		Question:   cleaned.Question,
		QuestionID: res.QuestionID,
		JobID:      res.JobID,
		Status:     res.Status,
	}, nil
}
