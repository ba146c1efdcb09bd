// internal/platform/runner.go
package platform

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/config"
	"github.com/rovshanmuradov/fairlaunch/internal/logger"
)

// Runner owns the daemon lifecycle: config, logging, the platform itself and
// signal-driven shutdown.
type Runner struct {
	log        *logger.Logger
	cfg        *config.Config
	platform   *Platform
	shutdownCh chan os.Signal
}

// NewRunner builds an uninitialized runner.
func NewRunner() *Runner {
	return &Runner{shutdownCh: make(chan os.Signal, 1)}
}

// Initialize loads configuration and builds the platform.
func (r *Runner) Initialize(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r.cfg = cfg

	log, err := logger.New(&logger.Config{
		LogFile:     cfg.LogFile,
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: cfg.DebugLogging,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	r.log = log

	p, err := New(cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("build platform: %w", err)
	}
	r.platform = p
	return nil
}

// Platform returns the assembled platform. Valid after Initialize.
func (r *Runner) Platform() *Platform { return r.platform }

// Run starts the platform and blocks until a signal or ctx cancellation,
// then shuts down gracefully.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.platform.Start(runCtx); err != nil {
		return err
	}
	r.log.Info("🚀 Fair launch platform running")

	select {
	case sig := <-r.shutdownCh:
		r.log.Info("📡 Signal received: " + sig.String())
	case <-runCtx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := r.platform.Shutdown(shutdownCtx); err != nil {
		r.log.Warn("Shutdown finished with errors", zap.Error(err))
	}

	r.log.Info("👋 Platform shut down gracefully")
	return r.log.Sync()
}
