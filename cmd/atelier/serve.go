package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atelierhq/atelier/internal/canvas"
	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/gateway"
	"github.com/atelierhq/atelier/internal/hub"
	"github.com/atelierhq/atelier/internal/imagegen"
	"github.com/atelierhq/atelier/internal/observability"
	"github.com/atelierhq/atelier/internal/tasks"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the atelier server",
		Long: `Start the atelier server.

The server exposes the canvas REST API, the realtime WebSocket endpoint,
/healthz, and /metrics. Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  atelier serve

  # Start with custom config
  atelier serve --config /etc/atelier/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("ATELIER_CONFIG")
			}
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(parent context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	broadcaster := hub.New(logger, metrics)
	manager := canvas.NewManager(canvas.NewStore(), broadcaster, logger)

	var generator imagegen.Generator
	var analyzer imagegen.Analyzer
	if cfg.OpenAI.APIKey != "" {
		client := imagegen.NewOpenAIClient(imagegen.OpenAIConfig{
			APIKey:      cfg.OpenAI.APIKey,
			ImageModel:  cfg.OpenAI.ImageModel,
			ImageSize:   cfg.OpenAI.ImageSize,
			Quality:     cfg.OpenAI.ImageQuality,
			Style:       cfg.OpenAI.ImageStyle,
			VisionModel: cfg.OpenAI.VisionModel,
		})
		generator = client
		analyzer = client
	} else {
		logger.Warn("no OpenAI API key configured; image generation disabled")
	}

	runner := tasks.NewRunner(ctx, manager, generator, logger, metrics)
	server := gateway.NewServer(cfg, manager, runner, analyzer, logger)

	if err := server.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")
	server.Shutdown(nil)
	runner.Wait()
	logger.Info("shutdown complete")
	return nil
}
