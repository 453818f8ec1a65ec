package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/lectern/internal/rag"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [video_id]",
	Short: "Show index statistics or one video's chunks",
	Long: `Without arguments, print the index manifest, engine statistics and the
indexed videos. With a video id, print that video's summary and every chunk
with its time range.

Examples:
  lectern inspect
  lectern inspect dQw4w9WgXcQ
  lectern inspect dQw4w9WgXcQ --export chunks.yaml --format yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

var (
	exportFile   string
	exportFormat string
)

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&exportFile, "export", "", "Export the video's chunks to a file: --export <filename>")
	inspectCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format (json, yaml)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := newApp(ctx, cfg, logger, false)
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}
	defer a.Close()

	snap, err := loadSnapshot(ctx, a.index)
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}

	if len(args) == 1 {
		if exportFile != "" {
			return handleExport(cmd, snap, args[0])
		}
		return inspectVideo(cmd, snap, args[0])
	}
	if exportFile != "" {
		return fmt.Errorf("%s --export needs a video id", errorStyle.Render("Error:"))
	}

	m := snap.Manifest()
	fmt.Fprintln(out, headerStyle.Render("Index"))
	printRow(out, "Path", cfg.Index.Path)
	printRow(out, "Engine", m.Engine)
	printRow(out, "Embedding model", fmt.Sprintf("%s (%d dims)", m.EmbeddingModel, m.Dimension))
	printRow(out, "Chunks", fmt.Sprint(m.ChunkCount))
	printRow(out, "Videos", fmt.Sprint(m.VideoCount))
	printRow(out, "Built at", m.BuiltAt.Local().Format("2006-01-02 15:04:05"))
	if m.CorpusRevision != "" {
		printRow(out, "Corpus revision", m.CorpusRevision)
	}

	stats, err := snap.EngineStats(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read engine statistics")
	} else if len(stats) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, headerStyle.Render("Engine"))
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			printRow(out, k, stats[k])
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, headerStyle.Render("Videos"))
	for _, id := range snap.Videos() {
		title := snap.Title(id)
		if title == "" {
			title = "-"
		}
		printRow(out, id, title)
	}
	return nil
}

func inspectVideo(cmd *cobra.Command, snap *rag.Snapshot, videoID string) error {
	out := cmd.OutOrStdout()

	summary, ok := rag.BuildVideoSummary(snap, videoID)
	if !ok {
		return fmt.Errorf("%s video %q is not in the index", errorStyle.Render("Error:"), videoID)
	}
	fmt.Fprintln(out, headerStyle.Render(summary.Title))
	fmt.Fprintln(out, contextStyle.Render(summary.Summary))
	fmt.Fprintln(out)

	chunks, _, err := snap.SearchAll(cmd.Context(), rag.VideoFilter(videoID), 0)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		fmt.Fprintf(out, "%s %s\n",
			labelStyle.Render(fmt.Sprintf("#%d [%s]", c.Ordinal, clockRange(c.Start, c.End))),
			answerStyle.Render(truncateText(c.Text, 100)))
	}
	return nil
}

func handleExport(cmd *cobra.Command, snap *rag.Snapshot, videoID string) error {
	file, err := os.Create(exportFile)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := rag.ExportVideo(snap, videoID, exportFormat, file); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✓ Exported video %s to %s", videoID, exportFile)))
	return nil
}

func printRow(out io.Writer, label, value string) {
	fmt.Fprintln(out, labelStyle.Render(label)+" "+value)
}
