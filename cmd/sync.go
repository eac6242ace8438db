package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsdesk-sync/internal/app"
)

func newSyncCmd() *cobra.Command {
	var (
		once   bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the crawl-and-publish sync",
		Long: `Runs one sync immediately and then on the configured cron schedule
until interrupted. SIGINT or SIGTERM lets the article in progress finish,
logs the run summary and exits cleanly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSync(ctx, e, once, dryRun)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single sync and exit")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "crawl and clean but do not upload")
	return cmd
}

func runSync(ctx context.Context, e *env, once, dryRun bool) error {
	a, err := app.New(ctx, e.cfg, e.logger, app.Options{DryRun: dryRun})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	if once {
		summary := a.RunOnce(ctx)
		if dryRun {
			for _, doc := range a.DryRunDocuments() {
				e.logger.Info("dry run document",
					zap.String("name", doc.Name),
					zap.String("url", doc.Article.URL),
					zap.Int("chars", len(doc.Content)),
				)
			}
		}
		e.logger.Info("sync finished", zap.String("run_id", summary.RunID))
		return nil
	}
	return a.Run(ctx)
}
