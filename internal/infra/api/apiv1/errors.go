package apiv1

import (
	"context"
	"errors"
	"net/http"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/infra/structured"
)

// mapError picks the HTTP status and the client-facing message. Internal
// details stay in the logs.
func mapError(err error) (int, string) {
	var repair *structured.RepairError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrDuplicateQuestion):
		return http.StatusConflict, "duplicate question"
	case errors.Is(err, domain.ErrJobNotClaimable):
		return http.StatusConflict, "job is already being generated"
	case errors.Is(err, domain.ErrJobNotFinished):
		return http.StatusConflict, "job is not finished"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate limit exceeded"
	case errors.As(err, &repair),
		errors.Is(err, domain.ErrLLMTimeout),
		errors.Is(err, domain.ErrEmptyResponse):
		return http.StatusBadGateway, "answer generation failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	}
	return http.StatusInternalServerError, "internal error"
}
