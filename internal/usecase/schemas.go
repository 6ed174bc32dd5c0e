package usecase

import (
	"errors"
	"strings"

	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/infra/structured"
)

var (
	cleanSchema = structured.MustCompile("clean.json", `{
  "type": "object",
  "properties": {
    "clean_question": {"type": "string"},
    "incomplete": {"type": "boolean"}
  }
}`)

	answerSchema = structured.MustCompile("answer.json", `{
  "type": "object",
  "required": ["full_answer"],
  "properties": {
    "full_answer": {"type": "string", "minLength": 1},
    "short_version": {"type": "string"},
    "key_points": {"type": "array", "items": {"type": "string"}},
    "followup_topics": {"type": "array", "items": {"type": "string"}},
    "interviewer_intent": {"type": "string"}
  }
}`)

	shortenSchema = structured.MustCompile("shorten.json", `{
  "type": "object",
  "required": ["short_version"],
  "properties": {"short_version": {"type": "string", "minLength": 1}}
}`)

	exampleSchema = structured.MustCompile("example.json", `{
  "type": "object",
  "required": ["augmented_answer"],
  "properties": {"augmented_answer": {"type": "string", "minLength": 1}}
}`)
)

type cleanPayload struct {
	CleanQuestion string `json:"clean_question"`
	Incomplete    bool   `json:"incomplete"`
}

// toResult maps the payload onto the tagged result. A payload with neither
// a question nor the incomplete flag is rejected so the model gets a
// corrective turn.
func (p cleanPayload) toResult() (model.CleanResult, error) {
	q := model.NormalizeQuestion(p.CleanQuestion)
	switch {
	case p.Incomplete:
		return model.Incomplete(), nil
	case q != "":
		return model.Cleaned(q), nil
	}
	return model.CleanResult{}, errors.New(`expected "clean_question" or "incomplete": true`)
}

func checkClean(p cleanPayload) error {
	_, err := p.toResult()
	return err
}

func checkAnswer(a model.Answer) error {
	if strings.TrimSpace(a.FullAnswer) == "" {
		return errors.New("full_answer must not be empty")
	}
	return nil
}

type shortenPayload struct {
	ShortVersion string `json:"short_version"`
}

type examplePayload struct {
	AugmentedAnswer string `json:"augmented_answer"`
}
