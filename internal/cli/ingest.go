package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"qaforge/features/knowledge"
	"qaforge/internal/app"
)

var (
	ingestClear    bool
	ingestExcludes []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Parse, chunk and index a directory of documents",
	Long: `Ingest every supported document under dir (default: the upload
directory) into the knowledge base.

Examples:
  qaforge ingest                       # Index the upload directory
  qaforge ingest ./docs --clear        # Rebuild from ./docs
  qaforge ingest ./docs -x "drafts/**" # Skip drafts`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestClear, "clear", false, "clear the knowledge base before indexing")
	ingestCmd.Flags().StringSliceVarP(&ingestExcludes, "exclude", "x", nil, "glob patterns to skip (relative to dir)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	dir := cfg.UploadDir
	if len(args) > 0 {
		dir = args[0]
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}

	files, err := knowledge.Scan(dir, ingestExcludes)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintf(out, "No supported documents found in %s\n", dir)
		return nil
	}
	fmt.Fprintf(out, "Found %d documents in %s\n", len(files), dir)

	var bar *progressbar.ProgressBar
	progress := func(processed, total int, current string) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Chunking[reset]"),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(cmd.ErrOrStderr())
				}),
			)
		}
		bar.Describe(fmt.Sprintf("[cyan]Chunking[reset] %s", filepath.Base(current)))
		_ = bar.Set(processed)
	}

	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		res, err := a.Knowledge.Ingest(ctx, files, ingestClear, progress)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}

		fmt.Fprintln(out, res.Message)
		fmt.Fprintf(out, "  Documents: %d\n", res.TotalDocuments)
		fmt.Fprintf(out, "  Chunks:    %d\n", res.TotalChunks)
		for _, f := range res.Failed {
			fmt.Fprintf(out, "  Skipped:   %s (%s)\n", f.Filename, f.Reason)
		}
		return nil
	})
}
