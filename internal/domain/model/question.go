package model

import (
	"strings"
	"time"
)

// QuestionRecord is a cleaned question captured for a session.
type QuestionRecord struct {
	ID              string
	SessionID       string
	Transcript      string
	CleanedQuestion string
	CreatedAt       time.Time
}

// SessionEntry joins a question with the job answering it.
type SessionEntry struct {
	Question  QuestionRecord
	JobID     string
	JobStatus JobStatus
	Result    *Answer
}

// NormalizeQuestion trims surrounding whitespace only. Dedup compares the
// result exactly, so inner spacing still distinguishes two questions.
func NormalizeQuestion(s string) string {
	return strings.TrimSpace(s)
}
