// Package structured obtains schema-valid JSON from a chat-style model.
// A response that fails to parse or validate gets a corrective follow-up in
// the same conversation, up to a retry bound.
package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/infra/metrics"
)

// MaxRetries is the number of corrective follow-ups after the first send.
const MaxRetries = 2

const correctivePrompt = "Your previous response could not be used: %s. " +
	"Respond again with ONLY a valid JSON object matching the requested format. " +
	"Do not include markdown fences, comments or any text outside the JSON."

// SendFunc sends one message in an ongoing conversation.
type SendFunc func(ctx context.Context, msg string) (string, error)

type Result[T any] struct {
	Value    T
	Raw      string
	Attempts int
}

// RepairError is returned when every attempt produced unusable output.
// Raw holds the last response for diagnostics.
type RepairError struct {
	Raw      string
	Attempts int
	Err      error
}

func (e *RepairError) Error() string {
	return fmt.Sprintf("structured output invalid after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RepairError) Unwrap() error { return e.Err }

type options struct {
	schema     *jsonschema.Schema
	maxRetries int
}

type Option func(*options)

func WithSchema(s *jsonschema.Schema) Option {
	return func(o *options) { o.schema = s }
}

func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// Obtain sends prompt, then up to MaxRetries corrective messages, until the
// response decodes into T and passes the schema and check. Transport errors
// from send are returned as-is without retrying.
func Obtain[T any](ctx context.Context, prompt string, send SendFunc, check func(T) error, opts ...Option) (Result[T], error) {
	o := options{maxRetries: MaxRetries}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		raw     string
		lastErr error
		msg     = prompt
	)
	total := o.maxRetries + 1
	for attempt := 1; attempt <= total; attempt++ {
		out, err := send(ctx, msg)
		if err != nil {
			metrics.ObserveStructured("send_error", attempt)
			return Result[T]{Raw: raw, Attempts: attempt}, err
		}
		raw = out

		v, err := Decode[T](out, o.schema, check)
		if err == nil {
			metrics.ObserveStructured("valid", attempt)
			return Result[T]{Value: v, Raw: raw, Attempts: attempt}, nil
		}
		lastErr = err
		msg = fmt.Sprintf(correctivePrompt, err.Error())
	}

	metrics.ObserveStructured("exhausted", total)
	return Result[T]{Raw: raw, Attempts: total}, &RepairError{Raw: raw, Attempts: total, Err: lastErr}
}

// ErrEmptyResponse is returned by Decode for blank or fence-only output.
var ErrEmptyResponse = domain.ErrEmptyResponse

// Decode strips known wrapper artifacts, validates against schema (when
// set), unmarshals into T and runs check (when set).
func Decode[T any](raw string, schema *jsonschema.Schema, check func(T) error) (T, error) {
	var zero T
	body := StripArtifacts(raw)
	if body == "" {
		return zero, ErrEmptyResponse
	}
	if schema != nil {
		var doc any
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return zero, fmt.Errorf("invalid json: %w", err)
		}
		if err := schema.Validate(doc); err != nil {
			return zero, fmt.Errorf("schema mismatch: %w", err)
		}
	}
	var v T
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return zero, fmt.Errorf("invalid json: %w", err)
	}
	if check != nil {
		if err := check(v); err != nil {
			return zero, err
		}
	}
	return v, nil
}

var (
	fenceOpen  = regexp.MustCompile("(?i)^```[a-z0-9_-]*\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
)

// StripArtifacts removes markdown code fences and any prose around the
// outermost JSON object or array.
func StripArtifacts(raw string) string {
	s := strings.TrimSpace(raw)
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" || s[0] == '{' || s[0] == '[' {
		return s
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s
	}
	return s[start : end+1]
}

// MustCompile compiles an inline JSON schema document. It panics on a
// malformed schema, so call it from package initialization.
func MustCompile(name, src string) *jsonschema.Schema {
	return jsonschema.MustCompileString(name, src)
}
