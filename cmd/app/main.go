// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"interview-copilot/internal/config"
	"interview-copilot/internal/domain/ports/adapter"
	"interview-copilot/internal/domain/ports/repository"
	aiAdapters "interview-copilot/internal/infra/adapters/ai"
	tele "interview-copilot/internal/infra/adapters/telegram"
	"interview-copilot/internal/infra/api"
	"interview-copilot/internal/infra/api/apiv1"
	pg "interview-copilot/internal/infra/db/postgres"
	"interview-copilot/internal/infra/logging"
	"interview-copilot/internal/infra/metrics"
	red "interview-copilot/internal/infra/redis"
	"interview-copilot/internal/infra/relay"
	"interview-copilot/internal/infra/sched"
	"interview-copilot/internal/infra/security"
	"interview-copilot/internal/infra/worker"
	"interview-copilot/internal/usecase"
)

// Set with -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("exit")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("commit", commit).Bool("dev", cfg.Runtime.Dev).Msg("starting")

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	if cfg.Database.MigrateOnStart {
		if err := pg.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info().Msg("migrations applied")
	}
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis (optional) ----
	var (
		limiter api.Limiter
		locker  sched.SweepLock
		cache   *red.Client
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			// Every Redis user fails open, so a missing Redis only degrades.
			logger.Warn().Err(err).Msg("redis unavailable; rate limiting and sweep lock disabled")
		} else {
			defer rc.Close()
			limiter = red.NewRateLimiter(rc)
			locker = red.NewLocker(rc)
			cache = rc
		}
	}

	// ---- AI ----
	llm, err := aiAdapters.NewFromConfig(ctx, cfg.AI)
	if err != nil {
		return err
	}
	tokens := aiAdapters.NewTokenCounter(cfg.AI.TokenEncoding)
	logger.Info().Str("provider", llm.Provider()).Msg("llm client ready")

	// ---- Alerts ----
	var alerts adapter.AlertNotifier = tele.NewNoopNotifier(logger)
	if cfg.Alerts.TelegramToken != "" {
		n, err := tele.NewAlertNotifier(cfg.Alerts, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram alerts disabled")
		} else {
			alerts = n
		}
	}

	// ---- Repositories ----
	jobRepo := pg.NewGenerationJobRepo(pool)
	var transcripts pg.TextCipher
	if cfg.Security.TranscriptKey != "" {
		enc, err := security.NewEncryptionService(cfg.Security.TranscriptKey)
		if err != nil {
			return err
		}
		transcripts = enc
	}
	questionRepo := pg.NewQuestionRepo(pool, transcripts)
	var profileRepo repository.ProfileRepository = pg.NewProfileRepo(pool)
	if cache != nil {
		profileRepo = pg.NewProfileRepoCacheDecorator(profileRepo, cache, cfg.Redis.ProfileTTL, logger)
	}
	txManager := pg.NewTxManager(pool)

	// ---- Use cases ----
	contexts := usecase.NewContextProvider(profileRepo, logger)
	answers := usecase.NewAnswerService(llm, jobRepo, contexts, tokens, cfg.Jobs.HistoryLimit, cfg.AI.HistoryTokens, logger)
	dedup := usecase.NewDedupGuard(questionRepo, cfg.Jobs.DedupWindow, logger)

	workers := worker.NewPool(cfg.Jobs.Workers, cfg.Jobs.QueueSize, logger)
	workers.Start(ctx)
	processor := worker.NewGenerationProcessor(jobRepo, answers, alerts, workers, cfg.Jobs.StaleAfter, logger)

	jobs := usecase.NewJobOrchestrator(jobRepo, questionRepo, txManager, dedup, answers, contexts, processor, logger)
	questions := usecase.NewQuestionUseCase(answers, contexts, jobs, logger)
	streams := usecase.NewStreamEmitter(jobRepo, answers, cfg.Jobs.StaleAfter, logger)

	// ---- Recovery sweeper ----
	sweeper := sched.NewRecoverySweeper(jobRepo, processor, alerts, cfg.Jobs.SweepInterval, cfg.Jobs.StaleAfter, logger)
	if locker != nil {
		sweeper = sweeper.WithLock(locker)
	}
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("recovery sweeper stopped")
		}
	}()

	// ---- Relay ----
	relays := relay.NewManager(
		relay.NewGeminiLiveDialer(cfg.Relay.LiveURL, cfg.AI.GeminiKey),
		relay.ConfigFrom(cfg.Relay, cfg.Server.AllowedOrigins),
		logger,
	)

	// ---- HTTP ----
	router := api.NewRouter(api.Deps{
		Server:    cfg.Server,
		RateLimit: cfg.Redis.RateLimit,
		Limiter:   limiter,
		DB:        pool,
		V1:        apiv1.NewServer(questions, jobs, streams, logger),
		Relay:     relays,
		Admin:     api.NewAdmin(cfg.Server.AdminKey, sweeper, relays, logger),
	}, logger)
	server := api.NewServer(cfg.Server, router, logger)

	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	if err := relays.Shutdown(sctx); err != nil {
		logger.Warn().Err(err).Msg("relay shutdown")
	}
	// In-flight jobs see a cancelled context and stay processing for the
	// next startup sweep.
	stop()
	workers.Stop()
	logger.Info().Msg("bye")
	return nil
}
