package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	ingestCorpus      string
	ingestSkipInvalid bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Rebuild the transcript index from the corpus",
	Long: `Load every transcript under the corpus root, chunk it, embed the chunks
and atomically replace the index.

The previous index stays in place if any step fails. A running server picks
up the new index after POST /api/index/reload.

Examples:
  lectern ingest
  lectern ingest --corpus ./transcripts --skip-invalid`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestCorpus, "corpus", "", "Corpus root override")
	ingestCmd.Flags().BoolVar(&ingestSkipInvalid, "skip-invalid", false, "Skip malformed transcript files instead of failing")
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if ingestCorpus != "" {
		cfg.Corpus.Root = ingestCorpus
	}
	if ingestSkipInvalid {
		cfg.Corpus.Strict = false
	}

	a, err := newApp(ctx, cfg, logger, false)
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}
	defer a.Close()

	fmt.Fprintln(out, contextStyle.Render("→ Indexing "+cfg.Corpus.Root+"..."))
	report, err := a.ingester.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("%s Failed to rebuild index: %w", errorStyle.Render("Error:"), err)
	}

	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✓ Indexed %d chunks from %d videos in %s",
		report.Chunks, report.Videos, report.Duration.Round(time.Millisecond))))
	fmt.Fprintln(out)
	printRow(out, "Segments", fmt.Sprint(report.Segments))
	printRow(out, "Engine", report.Manifest.Engine)
	printRow(out, "Embedding model", report.Manifest.EmbeddingModel)
	printRow(out, "Index", cfg.Index.Path)
	if report.Revision != nil {
		printRow(out, "Corpus revision", report.Revision.String())
	}
	return nil
}
