package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/newsdesk-sync/internal/config"
	"github.com/JakeFAU/newsdesk-sync/internal/sites"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and list the configured sites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return validateConfig(cmd.OutOrStdout(), e.cfg, sites.Default())
		},
	}
}

func validateConfig(out io.Writer, cfg config.Config, registry *sites.Registry) error {
	unknown := 0
	for _, id := range cfg.SiteIDs() {
		site := cfg.Sites[id]
		status := "ok"
		if !registry.Has(id) {
			status = "no crawler registered, will be skipped"
			unknown++
		}
		fmt.Fprintf(out, "%-12s %-24s %s (%s)\n", id, site.Name, site.BaseURL, status)
	}
	if err := cfg.Indexer.Validate(); err != nil {
		fmt.Fprintf(out, "indexer: %v (only --dry-run will work)\n", err)
	} else {
		fmt.Fprintf(out, "indexer: dataset %s at %s\n", cfg.Indexer.DatasetID, cfg.Indexer.APIEndpoint)
	}
	if unknown == len(cfg.Sites) {
		return fmt.Errorf("none of the configured sites has a registered crawler (known: %v)", registry.IDs())
	}
	return nil
}
