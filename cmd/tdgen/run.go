package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/tdgen/internal/api"
	"github.com/kalambet/tdgen/internal/config"
	"github.com/kalambet/tdgen/internal/dataset"
	"github.com/kalambet/tdgen/internal/engine"
	"github.com/kalambet/tdgen/internal/events"
	"github.com/kalambet/tdgen/internal/generation"
	"github.com/kalambet/tdgen/internal/metrics"
	"github.com/kalambet/tdgen/internal/pipeline"
	"github.com/kalambet/tdgen/internal/records"
	"github.com/kalambet/tdgen/internal/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every pending record (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("watch") {
			cfg.Pipeline.Watch, _ = cmd.Flags().GetBool("watch")
		}
		if cmd.Flags().Changed("poll") {
			cfg.Pipeline.PollInterval, _ = cmd.Flags().GetString("poll")
		}
		if cmd.Flags().Changed("metrics-addr") {
			cfg.Metrics.Addr, _ = cmd.Flags().GetString("metrics-addr")
		}
		return runPipeline(cfg)
	},
}

func init() {
	runCmd.Flags().Bool("watch", false, "keep running and poll for new records")
	runCmd.Flags().String("poll", "30s", "poll interval in watch mode")
	runCmd.Flags().String("metrics-addr", "", "serve /metrics, /health and the run ledger on this address")
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func runPipeline(cfg config.Config) error {
	fmt.Fprintf(os.Stderr, "tdgen version %s\n", version)
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(cfg.Generation)
	if err != nil {
		return err
	}
	if oe, ok := eng.(*engine.OllamaEngine); ok {
		if err := oe.EnsureReady(ctx, cfg.Generation.Model, os.Stderr); err != nil {
			return err
		}
	}
	eng = engine.Throttle(eng, cfg.Generation.RequestsPerMinute)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	fileLog, err := events.OpenFileLog(cfg.Log.AccessPath, cfg.Log.FailurePath)
	if err != nil {
		return fmt.Errorf("opening event logs: %w", err)
	}
	defer fileLog.Close()

	runID := uuid.NewString()
	if err := store.StartRun(runID, time.Now()); err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	rec := events.NewRecorder(events.Multi{fileLog, store}, runID)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(metrics.NewEventCollector(store))
	m := metrics.New(reg)

	gen := generation.New(eng,
		generation.Params{
			Model:       cfg.Generation.Model,
			MaxTokens:   cfg.Generation.MaxTokens,
			Temperature: cfg.Generation.Temperature,
		},
		generation.Policy{
			MaxRetries: cfg.Pipeline.MaxRetries,
			Backoff:    cfg.Pipeline.RetryBackoffDuration(),
		},
		rec,
	)
	gen.SetObserver(m)

	orch := pipeline.New(
		records.NewSource(cfg.Pipeline.PendingDir),
		gen,
		dataset.NewWriter(cfg.Pipeline.DatasetPath, cfg.Pipeline.WriteThreshold),
		records.NewLifecycle(cfg.Pipeline.ProcessedDir, rec),
		rec,
		cfg.Pipeline.PacingDuration(),
	)
	orch.SetObserver(m)

	slog.Info("run started",
		"run_id", runID,
		"provider", eng.Name(),
		"model", cfg.Generation.Model,
		"pending", cfg.Pipeline.PendingDir,
		"dataset", cfg.Pipeline.DatasetPath,
		"watch", cfg.Pipeline.Watch,
	)

	g, gctx := errgroup.WithContext(ctx)
	pipelineCtx, pipelineDone := context.WithCancel(gctx)
	defer pipelineDone()

	var sum pipeline.Summary
	var runErr error
	g.Go(func() error {
		defer pipelineDone()
		if cfg.Pipeline.Watch {
			sum, runErr = orch.Watch(gctx, cfg.Pipeline.PollIntervalDuration())
		} else {
			sum, runErr = orch.Run(gctx)
		}
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return runErr
		}
		return nil
	})

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr: cfg.Metrics.Addr,
			Handler: api.NewHandler(api.Deps{
				Ledger:   store,
				Gatherer: reg,
				Token:    cfg.Metrics.Token,
			}),
		}
		g.Go(func() error {
			slog.Info("metrics listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-pipelineCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	waitErr := g.Wait()

	status := storage.RunCompleted
	if ctx.Err() != nil || errors.Is(runErr, context.Canceled) {
		status = storage.RunInterrupted
	}
	if err := store.FinishRun(runID, status, sum.Processed, sum.Failed, sum.Skipped); err != nil {
		slog.Error("recording run finish", "run_id", runID, "error", err)
	}

	if status == storage.RunInterrupted {
		printWarning("Run interrupted; the current record stays pending")
	} else if waitErr == nil {
		printSuccess("Run %s finished", runID[:8])
	}
	printStatus("Processed", "%d", sum.Processed)
	printStatus("Failed", "%d", sum.Failed)
	printStatus("Skipped", "%d", sum.Skipped)
	printStatus("Dataset", "%s", cfg.Pipeline.DatasetPath)
	if sum.Failed > 0 || sum.Skipped > 0 {
		printStep("See %s for failure details", cfg.Log.FailurePath)
	}
	return waitErr
}
