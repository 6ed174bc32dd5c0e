package model

import "strings"

// Answer is the structured result stored on a finished job.
type Answer struct {
	FullAnswer        string   `json:"full_answer"`
	ShortVersion      string   `json:"short_version,omitempty"`
	KeyPoints         []string `json:"key_points,omitempty"`
	FollowupTopics    []string `json:"followup_topics,omitempty"`
	InterviewerIntent string   `json:"interviewer_intent,omitempty"`

	// Filled by refinement calls on an already finished job.
	Shortened       string `json:"shortened,omitempty"`
	AugmentedAnswer string `json:"augmented_answer,omitempty"`

	Streamed bool `json:"streamed,omitempty"`
}

// Summary is the text used when the answer is replayed as session history.
func (a *Answer) Summary() string {
	if a == nil {
		return ""
	}
	if s := strings.TrimSpace(a.ShortVersion); s != "" {
		return s
	}
	return strings.TrimSpace(a.FullAnswer)
}

type CleanKind int

const (
	CleanKindCleaned CleanKind = iota
	CleanKindIncomplete
)

func (k CleanKind) String() string {
	if k == CleanKindIncomplete {
		return "incomplete"
	}
	return "cleaned"
}

// CleanResult is the outcome of question extraction: either a cleaned
// question or an explicit incomplete marker.
type CleanResult struct {
	Kind     CleanKind
	Question string
}

func Cleaned(q string) CleanResult { return CleanResult{Kind: CleanKindCleaned, Question: q} }

func Incomplete() CleanResult { return CleanResult{Kind: CleanKindIncomplete} }
