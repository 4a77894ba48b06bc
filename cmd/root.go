// Package cmd defines and implements the CLI commands for the leadscraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-scraper/internal/app"
	"github.com/JakeFAU/lead-scraper/internal/config"
	"github.com/JakeFAU/lead-scraper/internal/export"
	"github.com/JakeFAU/lead-scraper/internal/lead"
	"github.com/JakeFAU/lead-scraper/internal/logging"
)

// App defines the application interface that commands use.
// Tests inject a fake through newApp.
type App interface {
	Run(ctx context.Context, urls []string) (app.Result, error)
	Lookup(ctx context.Context, batchID string) ([]lead.Record, error)
	Format() export.Format
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// runtimeKeyType is the key for storing the loaded runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime carries what PersistentPreRunE prepared for subcommands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "leadscraper",
		Short: "Scrape business websites for lead contact data.",
		Long: `leadscraper renders business websites in a headless browser, follows
their contact page, and extracts emails, phone numbers, social links and a
business category into a CSV, XLSX or JSON lead sheet.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before every subcommand: config first, then the logger built from it.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := resolveRuntime(cmd.Context()); err == nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./leadscraper.yaml or $HOME/.leadscraper/leadscraper.yaml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// closeApp releases the app even when the command context is already cancelled.
func closeApp(ctx context.Context, a App, logger *zap.Logger) {
	if err := a.Close(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("close app failed", zap.Error(err))
	}
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
