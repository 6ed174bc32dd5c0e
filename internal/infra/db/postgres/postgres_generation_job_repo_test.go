//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/domain/ports/repository"
	"interview-copilot/internal/infra/security"
)

func seedJob(t *testing.T, ctx context.Context, now time.Time, sessionID, question string) (*model.QuestionRecord, *model.GenerationJob) {
	t.Helper()
	tm := NewTxManager(testPool)
	questions := NewQuestionRepo(testPool, nil)
	jobs := NewGenerationJobRepo(testPool)

	q := &model.QuestionRecord{ID: uuid.NewString(), SessionID: sessionID, Transcript: "raw " + question, CleanedQuestion: question, CreatedAt: now}
	job, err := model.NewGenerationJob(q.ID, sessionID, "user-1", question, now)
	if err != nil {
		t.Fatalf("NewGenerationJob: %v", err)
	}
	err = tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := questions.Save(ctx, tx, q); err != nil {
			return err
		}
		return jobs.Create(ctx, tx, job)
	})
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return q, job
}

func TestGenerationJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewGenerationJobRepo(testPool)
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("should create and find a pending job", func(t *testing.T) {
		cleanup(t)
		_, job := seedJob(t, ctx, now, "s-1", "What is a mutex?")

		got, err := repo.FindByID(ctx, nil, job.ID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if got.Status != model.JobStatusPending || got.Attempt != 0 {
			t.Errorf("unexpected job state: %+v", got)
		}
		if got.ProcessingStartedAt != nil {
			t.Error("expected pending job without processing start")
		}
		if _, err := repo.FindByID(ctx, nil, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("exactly one concurrent claimer wins", func(t *testing.T) {
		cleanup(t)
		_, job := seedJob(t, ctx, now, "s-1", "Explain channels")

		var wins, losses atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Claim(ctx, job.ID, now, 30*time.Second)
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, domain.ErrJobNotClaimable):
					losses.Add(1)
				default:
					t.Errorf("unexpected claim error: %v", err)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 || losses.Load() != 7 {
			t.Fatalf("expected 1 win and 7 losses, got %d/%d", wins.Load(), losses.Load())
		}
	})

	t.Run("stale processing job is reclaimed and the old attempt is fenced", func(t *testing.T) {
		cleanup(t)
		_, job := seedJob(t, ctx, now, "s-1", "What is GC?")

		first, err := repo.Claim(ctx, job.ID, now, 30*time.Second)
		if err != nil {
			t.Fatalf("first claim: %v", err)
		}
		if _, err := repo.Claim(ctx, job.ID, now.Add(10*time.Second), 30*time.Second); !errors.Is(err, domain.ErrJobNotClaimable) {
			t.Fatalf("expected fresh job to be unclaimable, got %v", err)
		}

		stale, err := repo.FindStale(ctx, now.Add(31*time.Second).Add(-30*time.Second))
		if err != nil || len(stale) != 1 {
			t.Fatalf("expected one stale job, got %d (%v)", len(stale), err)
		}

		second, err := repo.Claim(ctx, job.ID, now.Add(31*time.Second), 30*time.Second)
		if err != nil {
			t.Fatalf("stale reclaim: %v", err)
		}
		if second.Attempt != first.Attempt+1 {
			t.Errorf("expected attempt %d, got %d", first.Attempt+1, second.Attempt)
		}

		if err := repo.Complete(ctx, job.ID, first.Attempt, &model.Answer{FullAnswer: "late"}, "late"); !errors.Is(err, domain.ErrJobNotClaimable) {
			t.Errorf("expected superseded attempt to be fenced, got %v", err)
		}
		if err := repo.Complete(ctx, job.ID, second.Attempt, &model.Answer{FullAnswer: "ok", KeyPoints: []string{"a"}}, `{"full_answer":"ok"}`); err != nil {
			t.Fatalf("Complete: %v", err)
		}

		done, _ := repo.FindByID(ctx, nil, job.ID)
		if done.Status != model.JobStatusDone || done.Result == nil || done.Result.FullAnswer != "ok" {
			t.Errorf("unexpected done job: %+v", done)
		}
		if _, err := repo.Claim(ctx, job.ID, now.Add(time.Hour), 30*time.Second); !errors.Is(err, domain.ErrJobNotClaimable) {
			t.Errorf("expected done job to be unclaimable, got %v", err)
		}
	})

	t.Run("fail records detail and raw text", func(t *testing.T) {
		cleanup(t)
		_, job := seedJob(t, ctx, now, "s-1", "Define idempotency")
		claimed, _ := repo.Claim(ctx, job.ID, now, 30*time.Second)
		if err := repo.Fail(ctx, job.ID, claimed.Attempt, "invalid json", "not json"); err != nil {
			t.Fatalf("Fail: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, job.ID)
		if got.Status != model.JobStatusError || got.ErrorDetail == nil || *got.ErrorDetail != "invalid json" {
			t.Errorf("unexpected failed job: %+v", got)
		}
		if got.RawResponse != "not json" {
			t.Errorf("expected raw text retained, got %q", got.RawResponse)
		}
	})

	t.Run("orphaned pending jobs and session history", func(t *testing.T) {
		cleanup(t)
		_, old := seedJob(t, ctx, now.Add(-time.Minute), "s-2", "Old question")
		_, _ = seedJob(t, ctx, now, "s-2", "New question")

		orphaned, err := repo.FindOrphanedPending(ctx, now.Add(-30*time.Second))
		if err != nil || len(orphaned) != 1 || orphaned[0].ID != old.ID {
			t.Fatalf("unexpected orphaned set: %v (%v)", orphaned, err)
		}

		claimed, _ := repo.Claim(ctx, old.ID, now, 30*time.Second)
		_ = repo.Complete(ctx, old.ID, claimed.Attempt, &model.Answer{FullAnswer: "full", ShortVersion: "short"}, "")
		if err := repo.UpdateResult(ctx, old.ID, &model.Answer{FullAnswer: "full", Shortened: "tiny"}); err != nil {
			t.Fatalf("UpdateResult: %v", err)
		}

		history, err := repo.ListDoneBySession(ctx, "s-2", 5)
		if err != nil || len(history) != 1 {
			t.Fatalf("unexpected history: %v (%v)", history, err)
		}
		if history[0].Result.Shortened != "tiny" {
			t.Errorf("expected refined result, got %+v", history[0].Result)
		}
	})
}

func TestQuestionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewQuestionRepo(testPool, nil)
	now := time.Now().UTC().Truncate(time.Millisecond)

	cleanup(t)
	q, job := seedJob(t, ctx, now, "s-3", "What is a deadlock?")

	t.Run("duplicate lookup honours the window boundary", func(t *testing.T) {
		got, err := repo.FindRecentDuplicate(ctx, "s-3", "What is a deadlock?", now.Add(-8*time.Second))
		if err != nil || got.ID != q.ID {
			t.Fatalf("expected duplicate %s, got %v (%v)", q.ID, got, err)
		}
		if _, err := repo.FindRecentDuplicate(ctx, "s-3", "What is a deadlock?", now.Add(time.Millisecond)); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound outside window, got %v", err)
		}
		if _, err := repo.FindRecentDuplicate(ctx, "s-other", "What is a deadlock?", now.Add(-8*time.Second)); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected other session to miss, got %v", err)
		}
	})

	t.Run("session listing joins job status", func(t *testing.T) {
		entries, err := repo.ListBySession(ctx, "s-3")
		if err != nil || len(entries) != 1 {
			t.Fatalf("unexpected entries: %v (%v)", entries, err)
		}
		if entries[0].JobID != job.ID || entries[0].JobStatus != model.JobStatusPending {
			t.Errorf("unexpected entry: %+v", entries[0])
		}
	})
}

func TestProfileRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewProfileRepo(testPool)
	cleanup(t)

	if _, err := repo.FindByRequester(ctx, "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err := testPool.Exec(ctx, `INSERT INTO profiles (user_id, name, target_role, years_experience, tech_stack, projects)
VALUES ('u-9', 'Ada', 'Backend Engineer', 6, ARRAY['Go','Postgres'], 'payments platform')`)
	if err != nil {
		t.Fatalf("insert profile: %v", err)
	}
	_, err = testPool.Exec(ctx, `INSERT INTO interviews (id, user_id, job_description, created_at)
VALUES ($1, 'u-9', 'old jd', NOW() - INTERVAL '1 day'), ($2, 'u-9', 'new jd', NOW())`, uuid.NewString(), uuid.NewString())
	if err != nil {
		t.Fatalf("insert interviews: %v", err)
	}

	p, err := repo.FindByRequester(ctx, "u-9")
	if err != nil {
		t.Fatalf("FindByRequester: %v", err)
	}
	if p.Name != "Ada" || p.YearsExperience != 6 || len(p.TechStack) != 2 || p.JobDescription != "new jd" {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestQuestionRepo_EncryptedTranscript_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	cleanup(t)

	enc, err := security.NewEncryptionService("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewEncryptionService: %v", err)
	}
	repo := NewQuestionRepo(testPool, enc)
	now := time.Now().UTC().Truncate(time.Millisecond)
	q := &model.QuestionRecord{ID: uuid.NewString(), SessionID: "s-enc", Transcript: "um so what is a channel", CleanedQuestion: "What is a channel?", CreatedAt: now}
	if err := repo.Save(ctx, nil, q); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var stored string
	if err := testPool.QueryRow(ctx, `SELECT transcript FROM question_records WHERE id = $1`, q.ID).Scan(&stored); err != nil {
		t.Fatalf("read raw row: %v", err)
	}
	if !security.IsSealed(stored) {
		t.Fatalf("transcript stored in plain text: %q", stored)
	}

	got, err := repo.FindRecentDuplicate(ctx, "s-enc", "What is a channel?", now.Add(-time.Second))
	if err != nil {
		t.Fatalf("FindRecentDuplicate: %v", err)
	}
	if got.Transcript != q.Transcript {
		t.Errorf("transcript = %q, want %q", got.Transcript, q.Transcript)
	}
}
