package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")

	// Job lifecycle
	ErrJobNotClaimable    = errors.New("job is not claimable")
	ErrJobNotFinished     = errors.New("job has not finished")
	ErrDuplicateQuestion  = errors.New("duplicate question within dedup window")
	ErrIncompleteQuestion = errors.New("transcript is not a complete question")

	// Model interaction
	ErrLLMTimeout    = errors.New("llm call timed out")
	ErrEmptyResponse = errors.New("llm returned an empty response")
	ErrRateLimited   = errors.New("rate limited")
)
