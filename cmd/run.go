package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-scraper/internal/app"
	"github.com/JakeFAU/catalog-scraper/internal/report"
)

func newRunCmd() *cobra.Command {
	var opts app.RunOptions
	cmd := &cobra.Command{
		Use:   "run <site>",
		Short: "Crawl one configured site into the catalog",
		Long: `Crawls the named site: listing pages are expanded into category,
pagination and product links, product pages are extracted and persisted.
Progress is checkpointed so an interrupted run resumes unless --no-resume
is given. --dry-run disables duplicate filtering and updates of existing
rows; new rows are still written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			opts.Site = args[0]
			summary, err := appInstance.Run(cmd.Context(), opts)
			if summary.RunID != "" {
				report.WriteSummary(cmd.OutOrStdout(), summary)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.NoResume, "no-resume", false, "discard saved progress and start over")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "disable duplicate filtering and update policy")
	cmd.Flags().IntVar(&opts.MaxItems, "max-items", 0, "stop after this many product pages (0 = no limit)")
	return cmd
}
