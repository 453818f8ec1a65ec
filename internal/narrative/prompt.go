package narrative

import (
	"fmt"
	"strings"
)

// contextSeparator joins retrieved excerpts inside the grounded prompt.
const contextSeparator = "\n\n"

// TimeAnchoredPrompt asks about the transcript excerpt playing at clock
// (M:SS) in the named video.
func TimeAnchoredPrompt(videoTitle, clock, excerpt, query string) string {
	var b strings.Builder

	b.WriteString("You are an expert AI assistant for the InCuiseNix e-learning platform.\n")
	b.WriteString(fmt.Sprintf("A student watching the video '%s' is asking about the moment at %s.\n", videoTitle, clock))
	b.WriteString(fmt.Sprintf("TRANSCRIPT AT %s: %s\n", clock, strings.TrimSpace(excerpt)))
	b.WriteString(fmt.Sprintf("QUESTION: %s\n", query))
	b.WriteString("Answer the question directly, using the transcript excerpt above as the primary source. ")
	b.WriteString("Explain what is being said at that moment in plain language.\n")

	return b.String()
}

// VideoQuestion prefixes the query with the video title so the grounded
// prompt names the video being discussed.
func VideoQuestion(videoTitle, query string) string {
	return fmt.Sprintf("Regarding the video '%s', %s", videoTitle, query)
}

// GroundedPrompt restricts the answer to the retrieved excerpts, kept in
// ranked order.
func GroundedPrompt(excerpts []string, question string) string {
	var b strings.Builder

	b.WriteString("You are an expert AI assistant for the InCuiseNix e-learning platform.\n")
	b.WriteString("Your goal is to provide accurate and helpful answers based on the transcript of the current video.\n")
	b.WriteString(fmt.Sprintf("CONTEXT: %s\n", strings.Join(excerpts, contextSeparator)))
	b.WriteString(fmt.Sprintf("QUESTION: %s\n", question))
	b.WriteString("Answer the question based ONLY on the context provided. If the context does not contain the answer, ")
	b.WriteString("state that you cannot answer the question based on the available video content.\n")

	return b.String()
}

// GeneralPrompt carries only the query.
func GeneralPrompt(query string) string {
	return "You are a helpful AI assistant. Answer the following question.\nQuestion: " + query
}

// MomentNotFound is the fixed reply when no transcript text covers the
// requested moment. It is returned without calling a model.
func MomentNotFound(clock string) string {
	return fmt.Sprintf("I'm sorry, I couldn't find what was said at %s in this video's transcript. "+
		"Try asking about a different moment, or ask a general question about the video.", clock)
}
