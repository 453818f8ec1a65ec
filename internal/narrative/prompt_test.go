package narrative

import (
	"strings"
	"testing"
)

func TestTimeAnchoredPrompt(t *testing.T) {
	prompt := TimeAnchoredPrompt("Goroutines 101", "0:45", "  The scheduler parks blocked goroutines.\n", "what does this mean?")

	for _, want := range []string{
		"'Goroutines 101'",
		"at 0:45",
		"TRANSCRIPT AT 0:45: The scheduler parks blocked goroutines.\n",
		"QUESTION: what does this mean?",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestVideoQuestion(t *testing.T) {
	got := VideoQuestion("Channels", "how do I close one?")
	if got != "Regarding the video 'Channels', how do I close one?" {
		t.Errorf("unexpected question %q", got)
	}
}

func TestGroundedPrompt(t *testing.T) {
	prompt := GroundedPrompt([]string{"first excerpt", "second excerpt"}, "Regarding the video 'X', why?")

	if !strings.Contains(prompt, "CONTEXT: first excerpt\n\nsecond excerpt\n") {
		t.Errorf("context not joined in order:\n%s", prompt)
	}
	if !strings.Contains(prompt, "QUESTION: Regarding the video 'X', why?") {
		t.Error("prompt missing question")
	}
	if !strings.Contains(prompt, "based ONLY on the context provided") {
		t.Error("prompt missing grounding instruction")
	}
	if strings.Index(prompt, "first excerpt") > strings.Index(prompt, "second excerpt") {
		t.Error("ranked order not preserved")
	}
}

func TestGeneralPrompt(t *testing.T) {
	want := "You are a helpful AI assistant. Answer the following question.\nQuestion: What is a closure?"
	if got := GeneralPrompt("What is a closure?"); got != want {
		t.Errorf("GeneralPrompt() = %q, want %q", got, want)
	}
}

func TestMomentNotFound(t *testing.T) {
	msg := MomentNotFound("1:30")
	if !strings.Contains(msg, "1:30") {
		t.Errorf("apology does not name the time: %s", msg)
	}
	if MomentNotFound("1:30") != msg {
		t.Error("apology must be fixed text")
	}
}
