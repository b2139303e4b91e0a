// Package transcript reconstructs and post-processes assistant messages:
// folding stream deltas into content, round-tripping the reasoning/answer
// split through the thinking-tag convention, and extracting trailing
// citation blocks.
package transcript

import (
	"strings"

	"github.com/studytutor/chat-client/internal/model"
)

const (
	thinkingOpen  = "<thinking>"
	thinkingClose = "</thinking>"
)

// Builder folds a delta stream into the in-progress assistant message. The
// two channels grow monotonically; Content may be called after every delta
// to re-render the message.
type Builder struct {
	reasoning strings.Builder
	answer    strings.Builder
	finalized bool
}

// Apply appends the event's deltas to the accumulator. Terminal events and
// events after Finalize are ignored.
func (b *Builder) Apply(ev model.DeltaEvent) {
	if b.finalized || ev.IsTerminal {
		return
	}
	if ev.ReasoningDelta != "" {
		b.reasoning.WriteString(ev.ReasoningDelta)
	}
	if ev.AnswerDelta != "" {
		b.answer.WriteString(ev.AnswerDelta)
	}
}

// Content synthesizes the externally visible message text. When the
// reasoning channel is non-empty it is wrapped in thinking tags ahead of the
// answer, which is how the split survives storage as one flat field.
func (b *Builder) Content() string {
	return Compose(b.reasoning.String(), b.answer.String())
}

// Answer returns the accumulated answer channel only.
func (b *Builder) Answer() string {
	return b.answer.String()
}

// Finalize freezes the builder and returns the finished content.
func (b *Builder) Finalize() string {
	b.finalized = true
	return b.Content()
}

// Compose encodes a (reasoning, answer) pair as a single text field. An
// empty reasoning channel yields the answer verbatim, with no tag artifacts.
// SplitThinking trims both channels on recovery, so leading and trailing
// whitespace inside either input does not survive a round trip.
func Compose(reasoning, answer string) string {
	if reasoning == "" {
		return answer
	}
	var sb strings.Builder
	sb.WriteString(thinkingOpen)
	sb.WriteString(reasoning)
	sb.WriteString(thinkingClose)
	if answer != "" {
		sb.WriteString("\n\n")
		sb.WriteString(answer)
	}
	return sb.String()
}

// SplitThinking recovers the (reasoning, answer) pair from stored content.
// An opening tag without its closing tag means the reasoning channel is
// still streaming: everything after the tag is reasoning and the answer is
// empty, never plain text.
func SplitThinking(content string) (reasoning, answer string) {
	start := strings.Index(content, thinkingOpen)
	if start < 0 {
		return "", content
	}

	rest := content[start+len(thinkingOpen):]
	end := strings.Index(rest, thinkingClose)
	if end < 0 {
		return strings.TrimSpace(rest), ""
	}

	reasoning = strings.TrimSpace(rest[:end])
	answer = strings.TrimSpace(content[:start] + rest[end+len(thinkingClose):])
	return reasoning, answer
}
