// Package cmd defines the CLI commands for the newsdesk-sync executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsdesk-sync/internal/config"
	"github.com/JakeFAU/newsdesk-sync/internal/logging"
)

// DefaultConfigPath is read when --config is not given.
const DefaultConfigPath = "config.yaml"

type envKeyType string

const envKey envKeyType = "env"

// env carries what every subcommand needs after startup.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "newsdesk-sync",
		Short: "Crawl news sites and publish articles to a knowledge-base dataset.",
		Long: `newsdesk-sync crawls configured news sites on a schedule, extracts
article text and uploads each article as a document to a knowledge-base
dataset.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config %q: %w", cfgFile, err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, err := resolveEnv(cmd.Context()); err == nil {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", DefaultConfigPath, "path to the YAML config file")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newValidateCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not loaded")
	}
	return e, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
