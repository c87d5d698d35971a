package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"qaforge/features/script"
	"qaforge/features/testcase"
	"qaforge/internal/app"
)

var (
	genQuery    string
	genPositive bool

	scriptTestID string
	scriptHTML   string
)

var generateTestsCmd = &cobra.Command{
	Use:   "generate-tests",
	Short: "Generate test cases grounded in the knowledge base",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if genQuery == "" {
			return fmt.Errorf("query is required (use -q)")
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			res, err := a.TestCases.Generate(ctx, testcase.Request{Query: genQuery, IncludeNegative: !genPositive})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var generateScriptCmd = &cobra.Command{
	Use:   "generate-script",
	Short: "Generate a Selenium script for a stored test case",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if scriptTestID == "" {
			return fmt.Errorf("test id is required (use --test-id)")
		}
		var markup string
		if scriptHTML != "" {
			data, err := os.ReadFile(scriptHTML)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", scriptHTML, err)
			}
			markup = string(data)
		}

		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			tc, err := a.TestCases.Lookup(ctx, scriptTestID)
			if err != nil {
				return fmt.Errorf("test case %s not found: %w", scriptTestID, err)
			}
			res, err := a.Scripts.Generate(ctx, script.Request{TestCase: *tc, Markup: markup})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", res.Script.Filename, res.Script.Strategy)
			return nil
		})
	},
}

func init() {
	generateTestsCmd.Flags().StringVarP(&genQuery, "query", "q", "", "feature or requirement to test")
	generateTestsCmd.Flags().BoolVar(&genPositive, "positive-only", false, "skip negative test cases")

	generateScriptCmd.Flags().StringVar(&scriptTestID, "test-id", "", "stored test case id, e.g. TC-001")
	generateScriptCmd.Flags().StringVar(&scriptHTML, "html", "", "page markup file (default: the uploaded page)")

	rootCmd.AddCommand(generateTestsCmd, generateScriptCmd)
}
