// File: internal/usecase/answer_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/rs/zerolog"

	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/domain/ports/adapter"
	"interview-copilot/internal/domain/ports/repository"
	ucport "interview-copilot/internal/domain/ports/usecase"
	"interview-copilot/internal/infra/metrics"
	"interview-copilot/internal/infra/structured"
)

// Compile-time check
var _ ucport.AnswerGenerator = (*AnswerService)(nil)

var (
	cleanOptions   = adapter.GenerateOptions{Temperature: 0.1, TopP: 0.9, TopK: 40, JSON: true}
	answerOptions  = adapter.GenerateOptions{Temperature: 0.4, TopP: 0.9, TopK: 40, JSON: true}
	streamOptions  = adapter.GenerateOptions{Temperature: 0.5, TopP: 0.8}
	shortenOptions = adapter.GenerateOptions{Temperature: 0.2, TopP: 0.9, TopK: 40, JSON: true}
	exampleOptions = adapter.GenerateOptions{Temperature: 0.4, TopP: 0.9, TopK: 40, JSON: true}
)

// AnswerService owns every model interaction of the pipeline.
type AnswerService struct {
	llm           adapter.LLMClient
	jobs          repository.GenerationJobRepository
	contexts      *ContextProvider
	tokens        adapter.TokenCounter
	historyLimit  int
	historyTokens int
	log           *zerolog.Logger
}

func NewAnswerService(
	llm adapter.LLMClient,
	jobs repository.GenerationJobRepository,
	contexts *ContextProvider,
	tokens adapter.TokenCounter,
	historyLimit, historyTokens int,
	logger *zerolog.Logger,
) *AnswerService {
	l := logger.With().Str("component", "AnswerService").Logger()
	return &AnswerService{
		llm:           llm,
		jobs:          jobs,
		contexts:      contexts,
		tokens:        tokens,
		historyLimit:  historyLimit,
		historyTokens: historyTokens,
		log:           &l,
	}
}

// CleanQuestion extracts the interviewer's question from a raw transcript.
func (s *AnswerService) CleanQuestion(ctx context.Context, transcript string, profile model.Profile) (model.CleanResult, error) {
	prompt := cleanPrompt(transcript, profile)
	res, err := obtain(ctx, s, prompt, cleanOptions, checkClean, structured.WithSchema(cleanSchema))
	if err != nil {
		return model.CleanResult{}, err
	}
	return res.Value.toResult()
}

// GenerateAnswer builds the answer prompt from the job's question, the
// requester profile and the session's finished answers.
func (s *AnswerService) GenerateAnswer(ctx context.Context, job *model.GenerationJob) (*model.Answer, string, error) {
	profile := s.contexts.Resolve(ctx, job.RequesterID)
	prompt := answerPrompt(job.Question, profile, s.History(ctx, job))
	metrics.ObservePromptTokens("answer", s.count(prompt))

	res, err := obtain(ctx, s, prompt, answerOptions, checkAnswer, structured.WithSchema(answerSchema))
	if err != nil {
		return nil, rawOf(res.Raw, err), err
	}
	answer := res.Value
	return &answer, res.Raw, nil
}

// StreamPrompt is the free-form prompt used by the streaming path.
func (s *AnswerService) StreamPrompt(ctx context.Context, job *model.GenerationJob) string {
	profile := s.contexts.Resolve(ctx, job.RequesterID)
	prompt := streamPrompt(job.Question, profile, s.History(ctx, job))
	metrics.ObservePromptTokens("stream", s.count(prompt))
	return prompt
}

func (s *AnswerService) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return s.llm.Stream(ctx, prompt, streamOptions)
}

func (s *AnswerService) Shorten(ctx context.Context, fullAnswer string) (string, error) {
	res, err := obtain[shortenPayload](ctx, s, shortenPrompt(fullAnswer), shortenOptions, nil, structured.WithSchema(shortenSchema))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Value.ShortVersion), nil
}

func (s *AnswerService) AddExample(ctx context.Context, fullAnswer, projects string) (string, error) {
	res, err := obtain[examplePayload](ctx, s, examplePrompt(fullAnswer, projects), exampleOptions, nil, structured.WithSchema(exampleSchema))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Value.AugmentedAnswer), nil
}

// History returns the session's earlier finished answers, oldest first,
// dropping the oldest turns until the rendered text fits the token budget.
func (s *AnswerService) History(ctx context.Context, job *model.GenerationJob) []Turn {
	if s.historyLimit <= 0 {
		return nil
	}
	done, err := s.jobs.ListDoneBySession(ctx, job.SessionID, s.historyLimit+1)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", job.SessionID).Msg("history lookup failed; continuing without it")
		return nil
	}
	turns := make([]Turn, 0, len(done))
	for _, j := range done {
		if j.ID == job.ID || j.Result == nil {
			continue
		}
		turns = append(turns, Turn{Question: j.Question, Answer: j.Result.Summary()})
	}
	if len(turns) > s.historyLimit {
		turns = turns[len(turns)-s.historyLimit:]
	}
	for len(turns) > 0 && s.historyTokens > 0 && s.count(renderHistory(turns, "")) > s.historyTokens {
		turns = turns[1:]
	}
	return turns
}

func (s *AnswerService) count(text string) int {
	if s.tokens == nil {
		return len(text) / 4
	}
	return s.tokens.Count(text)
}

// obtain opens a fresh conversation and runs the repair protocol in it.
func obtain[T any](ctx context.Context, s *AnswerService, prompt string, opts adapter.GenerateOptions, check func(T) error, sopts ...structured.Option) (structured.Result[T], error) {
	chat, err := s.llm.NewChat(ctx, opts)
	if err != nil {
		return structured.Result[T]{}, fmt.Errorf("open chat: %w", err)
	}
	return structured.Obtain(ctx, prompt, chat.Send, check, sopts...)
}

func rawOf(raw string, err error) string {
	var rerr *structured.RepairError
	if errors.As(err, &rerr) {
		return rerr.Raw
	}
	return raw
}
