package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mathatom/internal/api"
	"mathatom/internal/capability"
	"mathatom/internal/config"
	"mathatom/internal/pipeline"
	"mathatom/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shared rolling latency stats across all providers.
	stats := capability.NewLLMStats(10 * time.Minute)

	oracles, err := buildOracles(cfg, stats)
	if err != nil {
		log.Error("provider setup failed", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	orch := pipeline.NewOrchestrator(cfg, oracles, db, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting mathatom", "port", cfg.Port, "provider", cfg.Provider)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildOracles wires one provider per capability, honoring the per-task
// vendor overrides.
func buildOracles(cfg config.Config, stats *capability.LLMStats) (pipeline.Oracles, error) {
	providerFor := func(v capability.Vendor) (capability.Provider, error) {
		key, err := cfg.VendorKey(v)
		if err != nil {
			return nil, err
		}
		return capability.NewProvider(v, key, cfg.VendorModel(v), stats)
	}

	base, err := providerFor(cfg.Provider)
	if err != nil {
		return pipeline.Oracles{}, err
	}
	structureP, err := providerFor(cfg.StructureProvider)
	if err != nil {
		return pipeline.Oracles{}, err
	}
	summaryP, err := providerFor(cfg.SummaryProvider)
	if err != nil {
		return pipeline.Oracles{}, err
	}

	return pipeline.Oracles{
		Structure:  capability.NewStructureOracle(structureP),
		Atomicity:  capability.NewAtomicityOracle(base),
		Summary:    capability.NewSummaryOracle(summaryP),
		Classifier: capability.NewClassifier(base),
	}, nil
}
