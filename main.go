package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"agentloop/config"
	"agentloop/internal/adapter/llm"
	"agentloop/internal/firewall"
	"agentloop/internal/gate"
	"agentloop/internal/orchestrator"
	"agentloop/internal/reasoning"
	store "agentloop/internal/repository"
	"agentloop/internal/tools"
	transport "agentloop/internal/transport/http"
	"agentloop/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting agent loop service",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("database", cfg.DatabaseURL),
		zap.String("model", cfg.LLMModel))

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL, cfg.SessionTTL, cfg.StoreMaxBytes)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}
	defer db.Close()

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		logger.Fatal("failed to initialize policy engine", zap.Error(err))
	}

	// Initialize tool registry
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)

	// Initialize LLM backend
	llmClient := llm.NewLLMClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)
	backend := llm.NewBackend(llmClient, cfg.LLMModel, toolSchemas(registry))

	// Initialize orchestration components
	approvalGate := gate.New(logger)
	fw := firewall.New(policyEngine, cfg.MaxToolOutput)
	reasoner := reasoning.New(backend, cfg.ConfidenceThreshold, cfg.MaxIterations, logger)

	orc := orchestrator.New(db, approvalGate, backend, registry, fw, policyEngine,
		reasoner, orchestrator.Config{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			MaxIterations:       cfg.MaxIterations,
			ApprovalTimeout:     cfg.ApprovalTimeout,
		}, logger)

	// Resume sessions interrupted by the previous shutdown
	if err := orc.ResumeActive(ctx); err != nil {
		logger.Fatal("failed to resume active sessions", zap.Error(err))
	}

	// Periodic retention sweep
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed, err := db.Sweep(ctx)
				if err != nil {
					logger.Warn("retention sweep failed", zap.Error(err))
				} else if removed > 0 {
					logger.Info("retention sweep", zap.Int("removed", removed))
				}
			case <-sweepDone:
				return
			}
		}
	}()

	// Create and start the HTTP server
	server := transport.NewServer(orc, db)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()
	logger.Info("API started", zap.Int("port", cfg.HTTPPort))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	close(sweepDone)

	// Graceful shutdown: stop accepting requests, then let running
	// sessions reach their next durable checkpoint.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown server gracefully", zap.Error(err))
	}
	if err := orc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to drain sessions gracefully", zap.Error(err))
	}

	logger.Info("stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// toolSchemas exposes the registry to the model as function definitions.
func toolSchemas(r *tools.Registry) []llm.Tool {
	names := r.Names()
	schemas := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		schemas = append(schemas, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        name,
				Description: r.Description(name),
				Parameters: map[string]any{
					"type":                 "object",
					"properties":           map[string]any{},
					"additionalProperties": true,
				},
			},
		})
	}
	return schemas
}
