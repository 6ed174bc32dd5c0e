package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/ports/adapter"
	"interview-copilot/internal/infra/metrics"
)

// Compile-time check
var _ adapter.LLMClient = (*limitedLLM)(nil)

// limitedLLM caps concurrent provider calls and bounds every call with a
// hard timeout. Expiry surfaces as domain.ErrLLMTimeout even when the
// provider ignores cancellation.
type limitedLLM struct {
	inner   adapter.LLMClient
	sem     chan struct{}
	timeout time.Duration
}

func NewLimitedLLM(inner adapter.LLMClient, maxConcurrent int, timeout time.Duration) adapter.LLMClient {
	l := &limitedLLM{inner: inner, timeout: timeout}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	return l
}

func (l *limitedLLM) Provider() string { return l.inner.Provider() }

func (l *limitedLLM) NewChat(ctx context.Context, opts adapter.GenerateOptions) (adapter.Chat, error) {
	c, err := l.inner.NewChat(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &limitedChat{l: l, inner: c}, nil
}

type limitedChat struct {
	l     *limitedLLM
	inner adapter.Chat
}

func (c *limitedChat) Send(ctx context.Context, msg string) (string, error) {
	release, err := c.l.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	start := time.Now()
	out, err := withTimeout(ctx, c.l.timeout, func(ctx context.Context) (string, error) {
		return c.inner.Send(ctx, msg)
	})
	metrics.ObserveAICall(c.l.Provider(), "chat", outcome(err), time.Since(start).Milliseconds())
	return out, err
}

// Stream pumps the inner sequence through a goroutine so the deadline can
// end iteration even if the provider stalls between chunks.
func (l *limitedLLM) Stream(ctx context.Context, prompt string, opts adapter.GenerateOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		release, err := l.acquire(ctx)
		if err != nil {
			yield("", err)
			return
		}
		defer release()

		start := time.Now()
		sctx, cancel := l.deadline(ctx)
		defer cancel()

		type item struct {
			text string
			err  error
		}
		ch := make(chan item)
		go func() {
			defer close(ch)
			for text, err := range l.inner.Stream(sctx, prompt, opts) {
				select {
				case ch <- item{text, err}:
				case <-sctx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}()

		var streamErr error
		defer func() {
			metrics.ObserveAICall(l.Provider(), "stream", outcome(streamErr), time.Since(start).Milliseconds())
		}()
		for {
			select {
			case it, ok := <-ch:
				if !ok {
					return
				}
				if it.err != nil {
					streamErr = mapDeadline(sctx, ctx, it.err, l.timeout)
					yield("", streamErr)
					return
				}
				if !yield(it.text, nil) {
					return
				}
			case <-sctx.Done():
				streamErr = mapDeadline(sctx, ctx, sctx.Err(), l.timeout)
				yield("", streamErr)
				return
			}
		}
	}
}

func (l *limitedLLM) acquire(ctx context.Context) (func(), error) {
	if l.sem == nil {
		return func() {}, nil
	}
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *limitedLLM) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(tctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return zero, mapDeadline(tctx, ctx, r.err, d)
		}
		return r.v, nil
	case <-tctx.Done():
		return zero, mapDeadline(tctx, ctx, tctx.Err(), d)
	}
}

// mapDeadline reports our own deadline as ErrLLMTimeout while letting a
// cancellation of the caller's context pass through.
func mapDeadline(tctx, parent context.Context, err error, d time.Duration) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", domain.ErrLLMTimeout, d)
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrLLMTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}
