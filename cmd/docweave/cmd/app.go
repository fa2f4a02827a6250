package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jmylchreest/docweave/internal/artifactstore"
	"github.com/jmylchreest/docweave/internal/concurrency"
	"github.com/jmylchreest/docweave/internal/config"
	"github.com/jmylchreest/docweave/internal/ffmpeg"
	"github.com/jmylchreest/docweave/internal/llm"
	"github.com/jmylchreest/docweave/internal/observability"
	"github.com/jmylchreest/docweave/internal/orchestrator"
	"github.com/jmylchreest/docweave/internal/promptregistry"
	"github.com/jmylchreest/docweave/internal/remoteclient"
	"github.com/jmylchreest/docweave/internal/sessionmanager"
	"github.com/jmylchreest/docweave/internal/sessionstore"
	"github.com/jmylchreest/docweave/internal/startup"
	"github.com/jmylchreest/docweave/internal/storage"
	"github.com/jmylchreest/docweave/internal/stt"
	"github.com/jmylchreest/docweave/internal/sweeper"
	"github.com/jmylchreest/docweave/internal/trace"
)

// app bundles the services a subcommand drives the pipeline through. Every
// subcommand builds one via newApp and calls Close when done, matching the
// ancestor's "CLI assembles real services and calls them directly" wiring
// style from serve.go, minus the HTTP server and handler registration that
// style relies on.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	sessions *sessionmanager.Manager
	index    *sessionstore.Store
	sweep    *sweeper.Sweeper
	factory  *orchestrator.Factory
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := observability.NewLogger(cfg.Logging)

	if removed, err := startup.CleanupSystemTempDirs(logger); err != nil {
		logger.Warn("failed to clean orphaned temp directories", "error", err)
	} else if removed > 0 {
		logger.Info("cleaned orphaned temp directories on startup", "removed", removed)
	}

	sandbox, err := storage.NewSandbox(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("initializing storage sandbox: %w", err)
	}
	artifacts := artifactstore.New(sandbox)

	prompts := promptregistry.New()
	if cfg.Storage.PromptDir != "" {
		if err := prompts.Load(cfg.Storage.PromptDir); err != nil {
			return nil, fmt.Errorf("loading prompt registry: %w", err)
		}
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening session index database: %w", err)
	}
	index, err := sessionstore.New(db)
	if err != nil {
		return nil, fmt.Errorf("initializing session index: %w", err)
	}

	staleAfter := secondsOrDefault(cfg.Retention.StaleSessionSec, 600)
	sweepInterval := secondsOrDefault(cfg.Retention.ZombieSweepIntervalSec, 60)
	sessions := sessionmanager.New(artifacts, logger, staleAfter, sweepInterval)
	sessions.SetIndex(index)
	sessions.StartSweeper(ctx)

	diskSweeper := sweeper.New(artifacts, index, logger, "", cfg.Retention.DiskSec)
	if err := diskSweeper.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting disk retention sweeper: %w", err)
	}

	tracer := trace.NewManager(artifacts, logger)

	detector := ffmpeg.NewBinaryDetector()
	if info, err := detector.Detect(ctx); err != nil {
		logger.Warn("ffmpeg capability probe failed; transcode/probe stages will error at run time", "error", err)
	} else {
		logger.Info("detected ffmpeg binary", "path", info.FFmpegPath, "version", info.Version)
	}

	if cfg.FFmpeg.HWAccel == "" {
		if accels, err := ffmpeg.NewHWAccelDetector(cfg.FFmpeg.FFmpegPath).Detect(ctx); err != nil {
			logger.Debug("hardware acceleration probe failed; proxy transcodes will run in software", "error", err)
		} else if chosen := firstAvailableHWAccel(accels); chosen != "" {
			logger.Info("selected hardware accelerator for proxy transcodes", "hwaccel", chosen)
			cfg.FFmpeg.HWAccel = chosen
		}
	}

	probe := ffmpeg.NewMediaProbeAdapter(cfg.FFmpeg.FFprobePath)
	transcoder := ffmpeg.NewTranscodeAdapter(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath, cfg.FFmpeg.HWAccel)
	extractor := ffmpeg.NewFrameExtractAdapter(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath, cfg.FFmpeg.KeyframeDedupThreshold)

	sttRemote := stt.NewRemoteAdapter(remoteclient.New(cfg.STT.Remote))
	sttLocal := stt.NewLocalAdapter(cfg.STT.LocalBinaryPath, cfg.STT.LocalModelPath)
	selector := stt.NewSelector(sttLocal, sttRemote, cfg.Pipeline.STTAutoThresholdSec)

	llmClient := remoteclient.New(cfg.LLM.Remote)
	relevance := llm.NewRelevanceAnalyzer(llmClient, cfg.LLM.RelevanceModel, cfg.LLM.MaxRetries)
	generator := llm.NewGenerator(llmClient, cfg.LLM.GeneratorModel, cfg.LLM.MaxRetries)

	adapterSems := concurrency.NewAdapterSemaphores(cfg.Adapters.Concurrency)
	sessionGate := concurrency.NewSessionGate(cfg.Concurrency.GlobalSessionCap)

	factory, err := orchestrator.NewBuilder().
		WithProbe(probe).
		WithTranscoder(transcoder).
		WithSTT(selector).
		WithRelevance(relevance).
		WithExtractor(extractor).
		WithGenerator(generator).
		WithArtifacts(artifacts).
		WithPrompts(prompts).
		WithSessions(sessions).
		WithTrace(tracer).
		WithAdapterSemaphores(adapterSems).
		WithSessionGate(sessionGate).
		WithConfig(cfg).
		WithLogger(logger).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building orchestrator: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		index:    index,
		sweep:    diskSweeper,
		factory:  factory,
	}, nil
}

// Close stops the background sweepers started by newApp.
func (a *app) Close() {
	a.sessions.StopSweeper()
	a.sweep.Stop()
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	switch cfg.Driver {
	case "mysql":
		return gorm.Open(mysql.Open(cfg.DSN), gormCfg)
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	default:
		return gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	}
}

func secondsOrDefault(secs, def int) time.Duration {
	if secs <= 0 {
		secs = def
	}
	return time.Duration(secs) * time.Second
}

// firstAvailableHWAccel returns the first working, non-"none" accelerator
// HWAccelDetector reports, in the order ffmpeg -hwaccels lists them.
func firstAvailableHWAccel(accels []ffmpeg.HWAccelInfo) string {
	for _, a := range accels {
		if a.Available && a.Type != ffmpeg.HWAccelNone {
			return string(a.Type)
		}
	}
	return ""
}
