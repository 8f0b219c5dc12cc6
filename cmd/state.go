package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or remove resumable crawl state",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear <site>",
		Short: "Delete saved progress for a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := appInstance.Config().Site(args[0]); err != nil {
				return err
			}
			store, err := appInstance.StateStore()
			if err != nil {
				return err
			}
			if err := store.Clear(args[0]); err != nil {
				return fmt.Errorf("clear state: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared state for %s\n", args[0])
			return nil
		},
	})
	return cmd
}
