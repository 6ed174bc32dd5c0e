package sched

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/domain/ports/adapter"
	"interview-copilot/internal/domain/ports/repository"
	"interview-copilot/internal/domain/ports/usecase"
	"interview-copilot/internal/infra/metrics"
)

const sweepLockKey = "lock:recovery_sweep"

// sweepLockTTL outlasts a whole sweep: recoveries run concurrently and each
// attempt ends within staleAfter (see model.AttemptBudget), leaving the
// second half for the lookups and claims around them.
func sweepLockTTL(staleAfter time.Duration) time.Duration {
	return 2 * staleAfter
}

// SweepLock keeps replicas from sweeping at the same time. ok is false when
// another holder has the lease.
type SweepLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RecoverySweeper re-drives jobs whose owner died: processing jobs older
// than the stale threshold, and pending jobs nobody picked up (saturated
// queue, crash between insert and enqueue). It is safe to run at any time
// because every re-drive goes through the atomic claim.
type RecoverySweeper struct {
	jobs       repository.GenerationJobRepository
	processor  usecase.JobProcessor
	alerts     adapter.AlertNotifier
	lock       SweepLock
	interval   time.Duration // 0 = startup sweep only
	staleAfter time.Duration
	now        func() time.Time
	log        *zerolog.Logger
}

func NewRecoverySweeper(
	jobs repository.GenerationJobRepository,
	processor usecase.JobProcessor,
	alerts adapter.AlertNotifier,
	interval, staleAfter time.Duration,
	logger *zerolog.Logger,
) *RecoverySweeper {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	compLog := logger.With().Str("component", "RecoverySweeper").Logger()
	return &RecoverySweeper{
		jobs:       jobs,
		processor:  processor,
		alerts:     alerts,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        &compLog,
	}
}

// WithLock makes each sweep conditional on holding the shared lease.
func (w *RecoverySweeper) WithLock(l SweepLock) *RecoverySweeper {
	w.lock = l
	return w
}

// Run sweeps once on startup, then on every tick when an interval is set.
func (w *RecoverySweeper) Run(ctx context.Context) error {
	w.log.Info().Dur("stale_after", w.staleAfter).Dur("interval", w.interval).Msg("Starting recovery sweeper")
	w.runSweep(ctx)
	if w.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping recovery sweeper")
			return ctx.Err()
		case <-ticker.C:
			w.runSweep(ctx)
		}
	}
}

func (w *RecoverySweeper) runSweep(ctx context.Context) {
	if w.lock != nil {
		token, ok, err := w.lock.TryLock(ctx, sweepLockKey, sweepLockTTL(w.staleAfter))
		switch {
		case err != nil:
			// Claims are atomic, so sweeping without the lease is only wasted work.
			w.log.Warn().Err(err).Msg("sweep lock unavailable; sweeping anyway")
		case !ok:
			w.log.Debug().Msg("another replica is sweeping")
			return
		default:
			defer func() {
				if err := w.lock.Unlock(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
					w.log.Warn().Err(err).Msg("sweep unlock failed")
				}
			}()
		}
	}

	n, err := w.Sweep(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("recovery sweep error")
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("jobs re-driven")
		w.notify(fmt.Sprintf("Recovery sweeper re-drove %d generation job(s)", n))
	}
}

// Sweep re-drives every stale or orphaned job concurrently and waits for all
// of them. It returns how many this sweep claimed and finished with an
// answer; lost claims and failed generations are not counted. One job's
// failure or panic never affects the others.
func (w *RecoverySweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.staleAfter)

	stale, err := w.jobs.FindStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale jobs: %w", err)
	}
	orphaned, err := w.jobs.FindOrphanedPending(ctx, cutoff)
	if err != nil {
		w.log.Warn().Err(err).Msg("orphaned pending lookup failed; sweeping stale jobs only")
	}

	type target struct {
		job  *model.GenerationJob
		from string
	}
	targets := make([]target, 0, len(stale)+len(orphaned))
	for _, j := range stale {
		targets = append(targets, target{j, "stale"})
	}
	for _, j := range orphaned {
		targets = append(targets, target{j, "orphaned"})
	}

	var (
		wg     sync.WaitGroup
		done   atomic.Int64
		failed atomic.Int64
	)
	for _, t := range targets {
		wg.Add(1)
		go func(job *model.GenerationJob, from string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					w.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Str("job_id", job.ID).Msg("recovery panicked")
				}
			}()
			outcome, err := w.processor.Process(ctx, job.ID)
			if err != nil {
				w.log.Warn().Err(err).Str("job_id", job.ID).Str("from", from).Msg("recovery failed")
				return
			}
			switch outcome {
			case usecase.OutcomeDone:
				metrics.IncJobRecovered(from)
				done.Add(1)
			case usecase.OutcomeFailed:
				metrics.IncJobRecovered(from)
				failed.Add(1)
			}
		}(t.job, t.from)
	}
	wg.Wait()
	if f := failed.Load(); f > 0 {
		w.log.Warn().Int64("count", f).Msg("recovered jobs failed again")
	}
	return int(done.Load()), nil
}

func (w *RecoverySweeper) notify(text string) {
	if w.alerts == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.alerts.Notify(ctx, text); err != nil {
			w.log.Warn().Err(err).Msg("alert delivery failed")
		}
	}()
}
