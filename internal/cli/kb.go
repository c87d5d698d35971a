package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"qaforge/internal/app"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base and generation counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			snap, err := a.Stats.Collect(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every chunk from the knowledge base",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			if err := a.Knowledge.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Knowledge base cleared")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd, clearCmd)
}
