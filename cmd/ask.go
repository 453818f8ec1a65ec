package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/lectern/internal/router"
	"github.com/Yates-Labs/lectern/internal/timestamp"
)

var (
	askVideoID string
	askTitle   string
	askAt      float64
	verbose    bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question, optionally about a video",
	Long: `Ask a natural language question and get an answer routed the same way
the HTTP API routes it.

Without --video-id the question is answered generally. With --video-id the
answer is grounded on that video's transcript, and questions about the
current moment ("what is she saying now?", "explain 2:15") use the chunk
covering that time.

Examples:
  lectern ask "What is a goroutine?"
  lectern ask "What does this slide show?" --video-id dQw4w9WgXcQ --at 95
  lectern ask "Summarize the part about channels" --video-id intro-01 --verbose`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askVideoID, "video-id", "", "Video the question is about")
	askCmd.Flags().StringVar(&askTitle, "title", "", "Video title (defaults to the catalog title)")
	askCmd.Flags().Float64Var(&askAt, "at", 0, "Playback position in seconds")
	askCmd.Flags().BoolVar(&verbose, "verbose", false, "Show branch, reason and sources")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}
	defer a.Close()

	fmt.Fprintln(out)
	fmt.Fprintln(out, headerStyle.Render("Question:"))
	fmt.Fprintln(out, questionStyle.Render(question))
	fmt.Fprintln(out)

	if verbose {
		fmt.Fprintln(out, contextStyle.Render("→ Routing question..."))
	}

	result, err := a.router.Answer(ctx, router.Request{
		Query:      question,
		VideoID:    askVideoID,
		VideoTitle: askTitle,
		Timestamp:  askAt,
	})
	if err != nil {
		return fmt.Errorf("%s Failed to answer: %w", errorStyle.Render("Error:"), err)
	}

	if verbose {
		printRouting(out, result)
	}

	fmt.Fprintln(out, headerStyle.Render("Answer:"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, answerStyle.Render(strings.TrimSpace(result.Answer)))
	fmt.Fprintln(out)
	return nil
}

func printRouting(out io.Writer, result *router.Result) {
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✓ Branch %s (%s)", result.Branch, result.Reason)))
	if result.TimeSensitive {
		fmt.Fprintln(out, contextStyle.Render("  moment: "+timestamp.FormatClock(result.EffectiveTimestamp)))
	}
	for _, c := range result.Sources {
		line := fmt.Sprintf("  [%s] %s %s", clockRange(c.Start, c.End), c.VideoID, truncateText(c.Text, 70))
		fmt.Fprintln(out, contextStyle.Render(line))
	}
	fmt.Fprintln(out)
}

func clockRange(start float64, end *float64) string {
	if end == nil {
		return timestamp.FormatClock(start) + "–?"
	}
	return timestamp.FormatClock(start) + "–" + timestamp.FormatClock(*end)
}

func truncateText(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
