package transcript

import (
	"testing"

	"github.com/studytutor/chat-client/internal/model"
)

func TestComposeSplitRoundTrip(t *testing.T) {
	cases := []struct {
		reasoning string
		answer    string
	}{
		{"Step 1: consider the premise.", "The answer is 42."},
		{"multi\nline\nreasoning", "multi\nline\nanswer"},
		{"r", "a"},
		{"reasoning with <tags> inside", "answer with [links](x)"},
	}

	for _, c := range cases {
		encoded := Compose(c.reasoning, c.answer)
		r, a := SplitThinking(encoded)
		if r != c.reasoning || a != c.answer {
			t.Errorf("round trip (%q, %q) -> %q -> (%q, %q)", c.reasoning, c.answer, encoded, r, a)
		}
	}
}

func TestComposeEmptyReasoning(t *testing.T) {
	got := Compose("", "just an answer")
	if got != "just an answer" {
		t.Fatalf("Compose = %q, want answer verbatim", got)
	}

	r, a := SplitThinking(got)
	if r != "" || a != "just an answer" {
		t.Errorf("SplitThinking = (%q, %q)", r, a)
	}
}

func TestSplitThinkingConcreteScenario(t *testing.T) {
	r, a := SplitThinking("<thinking>Step 1...</thinking>\n\nFinal answer.")
	if r != "Step 1..." {
		t.Errorf("reasoning = %q, want %q", r, "Step 1...")
	}
	if a != "Final answer." {
		t.Errorf("answer = %q, want %q", a, "Final answer.")
	}
}

func TestSplitThinkingUnterminated(t *testing.T) {
	// Mid-stream: the closing tag has not arrived yet. Everything after the
	// opening tag is in-progress reasoning, not plain text.
	r, a := SplitThinking("<thinking>still working through it")
	if r != "still working through it" {
		t.Errorf("reasoning = %q", r)
	}
	if a != "" {
		t.Errorf("answer = %q, want empty", a)
	}
}

func TestSplitThinkingPlainText(t *testing.T) {
	r, a := SplitThinking("no tags here at all")
	if r != "" || a != "no tags here at all" {
		t.Errorf("SplitThinking = (%q, %q)", r, a)
	}
}

func TestBuilderAccumulates(t *testing.T) {
	var b Builder
	b.Apply(model.DeltaEvent{ReasoningDelta: "think"})
	b.Apply(model.DeltaEvent{ReasoningDelta: "ing"})
	b.Apply(model.DeltaEvent{AnswerDelta: "ans"})
	b.Apply(model.DeltaEvent{AnswerDelta: "wer"})

	want := "<thinking>thinking</thinking>\n\nanswer"
	if got := b.Content(); got != want {
		t.Errorf("Content = %q, want %q", got, want)
	}

	final := b.Finalize()
	if final != want {
		t.Errorf("Finalize = %q, want %q", final, want)
	}

	// Deltas after finalize are ignored.
	b.Apply(model.DeltaEvent{AnswerDelta: "late"})
	if got := b.Content(); got != want {
		t.Errorf("Content after finalize = %q, want %q", got, want)
	}
}

func TestBuilderAnswerOnly(t *testing.T) {
	var b Builder
	b.Apply(model.DeltaEvent{AnswerDelta: "hello"})
	b.Apply(model.DeltaEvent{IsTerminal: true})

	if got := b.Content(); got != "hello" {
		t.Errorf("Content = %q", got)
	}
	if got := b.Answer(); got != "hello" {
		t.Errorf("Answer = %q", got)
	}
}

func TestBuilderMidStreamReasoningOnly(t *testing.T) {
	var b Builder
	b.Apply(model.DeltaEvent{ReasoningDelta: "partial thought"})

	r, a := SplitThinking(b.Content())
	if r != "partial thought" || a != "" {
		t.Errorf("mid-stream split = (%q, %q)", r, a)
	}
}
