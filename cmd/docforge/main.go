package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/draftworks/docforge/internal/analysis"
	"github.com/draftworks/docforge/internal/checkpoint"
	"github.com/draftworks/docforge/internal/committee"
	"github.com/draftworks/docforge/internal/config"
	"github.com/draftworks/docforge/internal/draft"
	"github.com/draftworks/docforge/internal/engine"
	"github.com/draftworks/docforge/internal/gate"
	"github.com/draftworks/docforge/internal/llm"
	"github.com/draftworks/docforge/internal/metrics"
	"github.com/draftworks/docforge/internal/notify"
	"github.com/draftworks/docforge/internal/registry"
	"github.com/draftworks/docforge/internal/report"
	"github.com/draftworks/docforge/internal/retry"
	"github.com/draftworks/docforge/internal/status"
	"github.com/draftworks/docforge/internal/template"
)

// Exit codes: 0 published, 1 abandoned or runtime failure, 2 bad
// configuration or template.
const (
	exitPublished = 0
	exitAbandoned = 1
	exitConfig    = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		templatePath = flag.String("template", "", "path to the document template (yaml)")
		resume       = flag.Bool("resume", false, "resume the most recent resumable session")
		outDir       = flag.String("out", "", "output directory (overrides DOCFORGE_OUTPUT_DIR)")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return exitConfig
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid config")
		return exitConfig
	}
	if level, perr := zerolog.ParseLevel(cfg.LogLevel); perr == nil {
		zerolog.SetGlobalLevel(level)
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}

	if *templatePath == "" {
		logger.Error().Msg("-template is required")
		flag.Usage()
		return exitConfig
	}
	tmpl, err := template.Load(*templatePath)
	if err != nil {
		logger.Error().Err(err).Str("path", *templatePath).Msg("invalid template")
		return exitConfig
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("topic", tmpl.Topic).
		Int("sections", len(tmpl.Sections)).
		Bool("mock_backend", cfg.MockBackend).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting docforge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warn().Str("signal", sig.String()).Msg("shutdown requested")
		cancel()
	}()

	var provider llm.Provider
	if cfg.MockBackend {
		provider = llm.NewMockProvider()
		logger.Warn().Msg("using mock generation backend")
	} else {
		provider = llm.NewAnthropicProvider(cfg.AnthropicAPIKey,
			llm.WithModel(cfg.Model),
			llm.WithMaxTokens(cfg.MaxTokens),
			llm.WithLogger(logger),
		)
	}

	store, err := checkpoint.New(cfg.CheckpointDB, logger)
	if err != nil {
		// Checkpointing degrades, the session itself can still run.
		logger.Warn().Err(err).Msg("checkpoint store unavailable, session will not be resumable")
		store = nil
	} else {
		defer store.Close()
	}

	reg := registry.FromTemplate(tmpl, logger)
	retryCfg := retry.DefaultConfig()
	retryCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn().Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("provider call retrying")
	}
	router := gate.NewRouter(tmpl)

	reviewers := make([]committee.Reviewer, 0, len(tmpl.Reviewers))
	for _, spec := range tmpl.Reviewers {
		reviewers = append(reviewers, committee.NewLLMReviewer(spec, provider, retryCfg))
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.SlackEnabled() {
		notifier = notify.NewMultiNotifier(
			notify.NewLogNotifier(logger),
			notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannel, logger),
		)
	}

	m := metrics.New()
	eng := engine.New(engine.Deps{
		Template:  tmpl,
		Registry:  reg,
		Processor: draft.NewProcessor(provider, tmpl, retryCfg, cfg.GenerateTimeout, logger),
		Gate:      gate.New(analysis.NewLLMAnalyzer(provider, retryCfg, logger), router, logger),
		Router:    router,
		Panel:     committee.NewPanel(reviewers, cfg.MaxParallel, logger),
		Store:     store,
		Notifier:  notifier,
		Metrics:   m,
	}, engine.Options{
		MaxParallel:         cfg.MaxParallel,
		MaxAttempts:         cfg.MaxAttempts,
		SupermajorityFloor:  cfg.SupermajorityFloor,
		SectionFailureLimit: cfg.SectionFailureLimit,
	}, logger)

	if *resume {
		if store == nil {
			logger.Error().Msg("cannot resume without a checkpoint store")
			return exitConfig
		}
		snap, rerr := resumeSnapshot(store, logger)
		if rerr != nil {
			logger.Error().Err(rerr).Msg("no resumable session")
			return exitConfig
		}
		eng.Resume(snap)
	}

	var statusSrv *status.Server
	if cfg.StatusEnabled() {
		statusSrv = status.NewServer(cfg.StatusAddr, eng, m, logger)
		go func() {
			if serr := statusSrv.Start(); serr != nil {
				logger.Error().Err(serr).Msg("status server failed")
			}
		}()
		defer statusSrv.Shutdown()
	}

	res, err := eng.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("session did not finish")
		return exitAbandoned
	}

	writer := report.NewWriter(cfg.OutputDir, logger)
	dir, err := writer.Write(res)
	if err != nil {
		logger.Error().Err(err).Msg("failed to write artifacts")
		return exitAbandoned
	}

	fmt.Println(res.String())
	fmt.Println("artifacts:", dir)

	if res.Published() {
		return exitPublished
	}
	return exitAbandoned
}

// resumeSnapshot lists every resumable session, applies the resume policy
// and loads the winning checkpoint.
func resumeSnapshot(store *checkpoint.Store, logger zerolog.Logger) (*checkpoint.Snapshot, error) {
	candidates, err := store.ListCandidates()
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		logger.Info().
			Str("ref", c.Ref()).
			Str("title", c.Title).
			Str("status", c.Status).
			Float64("score", c.Score).
			Time("updated_at", c.UpdatedAt).
			Msg("resume candidate")
	}
	chosen := checkpoint.SelectResume(candidates)
	if chosen == nil {
		return nil, errors.New("no published or in-progress sessions found")
	}
	logger.Info().Str("ref", chosen.Ref()).Str("status", chosen.Status).Msg("resuming session")
	return store.Load(chosen.Ref())
}
