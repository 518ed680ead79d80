package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meikuraledutech/procflow"
	"github.com/meikuraledutech/procflow/api"
	"github.com/meikuraledutech/procflow/bpmn"
	"github.com/meikuraledutech/procflow/config"
	"github.com/meikuraledutech/procflow/memory"
	"github.com/meikuraledutech/procflow/metrics"
	"github.com/meikuraledutech/procflow/postgres"
	"github.com/meikuraledutech/procflow/snapshot"
	"github.com/meikuraledutech/procflow/version"
	"github.com/meikuraledutech/procflow/workspace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	path := flag.String("config", os.Getenv("PROCFLOW_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Persistence gateway ───────────────────────────────────────────
	var (
		gw     procflow.Gateway
		schema api.Schema
	)
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		defer pool.Close()
		store := postgres.New(pool)
		gw, schema = store, store
		logger.Info("using postgres gateway")
	} else {
		gw = memory.New()
		logger.Warn("DATABASE_URL is not set, workflows are kept in memory")
	}

	// ── Snapshot mirror ───────────────────────────────────────────────
	var mirror workspace.Mirror
	if cfg.Redis.Addr != "" {
		snaps, err := snapshot.New(ctx, snapshot.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.SnapshotTTL,
		}, logger)
		if err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		defer func() { _ = snaps.Close() }()
		mirror = snaps
	}

	// ── Workspace ─────────────────────────────────────────────────────
	m := metrics.NewCollector("procflow")

	versions := version.NewController(gw, logger).WithRecorder(m)
	versions.Retain = cfg.Versioning.Retention
	versions.Keep = cfg.Versioning.Keep

	reg := workspace.NewRegistry(gw, versions, mirror, logger, workspace.Options{
		Compile: bpmn.Options{
			Strict:             cfg.Compiler.Strict,
			LowerConditions:    cfg.Compiler.LowerConditions,
			DelegateExpression: cfg.Compiler.DelegateExpression,
		},
		StrictPlan: cfg.Plan.Strict,
	}).WithRecorder(m)

	app := api.New(api.Deps{
		Registry: reg,
		Gateway:  gw,
		Schema:   schema,
		Metrics:  m.Handler(),
		Logger:   logger,
	})

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", cfg.Server.Addr))
	if err := app.Listen(cfg.Server.Addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
