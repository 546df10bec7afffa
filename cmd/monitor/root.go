package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ema-monitor/internal/app"
	"github.com/JakeFAU/ema-monitor/internal/config"
	"github.com/JakeFAU/ema-monitor/internal/logging"
	"github.com/JakeFAU/ema-monitor/internal/runner"
	"github.com/JakeFAU/ema-monitor/internal/telemetry"
)

type envKeyType string

const envKey envKeyType = "env"

// env carries what every subcommand needs once configuration is loaded.
type env struct {
	cfg      config.Config
	logger   *zap.Logger
	shutdown telemetry.Shutdown
}

// newApp is a variable so tests can substitute the service container.
var newApp = func(ctx context.Context, cfg config.Config, variant string, logger *zap.Logger) (runnerApp, error) {
	a, err := app.New(ctx, cfg, variant, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// runnerApp is the subset of *app.App the commands use.
type runnerApp interface {
	Run(ctx context.Context) (runner.Result, error)
	TestConnection(ctx context.Context) error
	Close()
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	var envFile string

	cmd := &cobra.Command{
		Use:           "monitor",
		Short:         "Watches the EMA website for trial and approval news.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `monitor performs one scrape of the European Medicines Agency website per
invocation, classifies what it finds, tracks state between runs and posts
notifications to a Discord webhook. Schedule it with cron or a CI runner.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				Service:     cfg.Tracing.ServiceName,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			shutdown, err := telemetry.InitTracerProvider(cmd.Context(), telemetry.Config{
				ServiceName: cfg.Tracing.ServiceName,
				Exporter:    cfg.Tracing.Exporter,
			})
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger, shutdown: shutdown})
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")

	cmd.AddCommand(newVariantCmd(app.VariantTrial, "Checks for the CBP501 Phase III trial start"))
	cmd.AddCommand(newVariantCmd(app.VariantApprovals, "Announces new EMA approval news"))
	cmd.AddCommand(newTestConnectionCmd())

	return cmd
}

// loadDotEnv applies path to the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// close flushes spans and buffered log entries.
func (e *env) close() {
	if err := e.shutdown(context.Background()); err != nil {
		e.logger.Warn("tracing shutdown failed", zap.Error(err))
	}
	_ = e.logger.Sync()
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not initialized")
	}
	return e, nil
}
