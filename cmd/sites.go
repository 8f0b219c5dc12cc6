package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-scraper/internal/report"
)

func newSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List configured sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			rows := make([]report.SiteRow, 0, len(cfg.Sites))
			for _, name := range cfg.SiteNames() {
				site := cfg.Sites[name]
				rows = append(rows, report.SiteRow{
					Name:     name,
					Platform: site.Platform,
					StoreID:  site.StoreID,
					Seeds:    site.Seeds,
				})
			}
			report.WriteSites(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}
