package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/studytutor/chat-client/internal/model"
	"github.com/studytutor/chat-client/pkg/logger"
)

// chunkReader yields the input in fixed-size chunks to simulate arbitrary
// transport framing.
type chunkReader struct {
	data []byte
	size int
	pos  int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := r.pos + r.size
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}

func collect(t *testing.T, r io.Reader) []model.DeltaEvent {
	t.Helper()
	dec := NewDecoder(r, logger.NewNop())
	var events []model.DeltaEvent
	for {
		ev, err := dec.Next()
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		events = append(events, ev)
		if ev.IsTerminal {
			return events
		}
	}
}

const sampleStream = ": keep-alive\n" +
	"\n" +
	`data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n" +
	`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n" +
	`data: {"choices":[{"delta":{"reasoning":"thinking hard"}}]}` + "\n" +
	`data: {"choices":[{"delta":{"content":" world"}}]}` + "\n" +
	"data: [DONE]\n"

func TestDecodeWholeBuffer(t *testing.T) {
	events := collect(t, strings.NewReader(sampleStream))

	want := []model.DeltaEvent{
		{AnswerDelta: "Hel"},
		{AnswerDelta: "lo"},
		{ReasoningDelta: "thinking hard"},
		{AnswerDelta: " world"},
		{IsTerminal: true},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestDecodeSplitChunks(t *testing.T) {
	whole := collect(t, strings.NewReader(sampleStream))

	// Splitting at every possible offset, including mid-line and
	// mid-JSON-token, must not change the event sequence.
	for size := 1; size <= len(sampleStream); size++ {
		events := collect(t, &chunkReader{data: []byte(sampleStream), size: size})
		if len(events) != len(whole) {
			t.Fatalf("chunk size %d: got %d events, want %d", size, len(events), len(whole))
		}
		for i := range whole {
			if events[i] != whole[i] {
				t.Fatalf("chunk size %d: event %d = %+v, want %+v", size, i, events[i], whole[i])
			}
		}
	}
}

func TestTerminalSentinelStopsDecoding(t *testing.T) {
	input := `data: {"choices":[{"delta":{"content":"before"}}]}` + "\n" +
		"data: [DONE]\n" +
		`data: {"choices":[{"delta":{"content":"after"}}]}` + "\n"

	events := collect(t, strings.NewReader(input))
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].AnswerDelta != "before" {
		t.Errorf("first event = %+v", events[0])
	}
	if !events[1].IsTerminal {
		t.Errorf("second event not terminal: %+v", events[1])
	}

	dec := NewDecoder(strings.NewReader(input), logger.NewNop())
	for {
		ev, err := dec.Next()
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if ev.IsTerminal {
			break
		}
	}
	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after terminal = %v, want io.EOF", err)
	}
}

func TestMalformedLineSkipped(t *testing.T) {
	input := `data: {"choices":[{"delta":{"content":"ok"}}]}` + "\n" +
		"data: {not json at all\n" +
		`data: {"choices":[{"delta":{"content":"still ok"}}]}` + "\n" +
		"data: [DONE]\n"

	events := collect(t, strings.NewReader(input))
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}
	if events[0].AnswerDelta != "ok" || events[1].AnswerDelta != "still ok" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestCommentAndBlankLinesIgnored(t *testing.T) {
	input := ":\n: ping\n\n\n" +
		"event: message\n" +
		`data: {"choices":[{"delta":{"content":"x"}}]}` + "\n" +
		"data: [DONE]\n"

	events := collect(t, strings.NewReader(input))
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].AnswerDelta != "x" {
		t.Errorf("events = %+v", events)
	}
}

func TestTransportCloseWithoutSentinel(t *testing.T) {
	input := `data: {"choices":[{"delta":{"content":"partial"}}]}` + "\n"

	events := collect(t, strings.NewReader(input))
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].AnswerDelta != "partial" || !events[1].IsTerminal {
		t.Errorf("events = %+v", events)
	}
}

func TestTruncatedTailDropped(t *testing.T) {
	input := `data: {"choices":[{"delta":{"content":"done"}}]}` + "\n" +
		`data: {"choices":[{"delta":{"cont`

	events := collect(t, strings.NewReader(input))
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].AnswerDelta != "done" || !events[1].IsTerminal {
		t.Errorf("events = %+v", events)
	}
}

func TestUnterminatedFinalPayloadStillDecoded(t *testing.T) {
	input := `data: {"choices":[{"delta":{"content":"tail"}}]}`

	events := collect(t, strings.NewReader(input))
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].AnswerDelta != "tail" || !events[1].IsTerminal {
		t.Errorf("events = %+v", events)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestTransportErrorSurfaces(t *testing.T) {
	dec := NewDecoder(failingReader{}, logger.NewNop())
	if _, err := dec.Next(); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestBothChannelsInOneEvent(t *testing.T) {
	input := `data: {"choices":[{"delta":{"content":"a","reasoning":"r"}}]}` + "\n" +
		"data: [DONE]\n"

	events := collect(t, strings.NewReader(input))
	if events[0].AnswerDelta != "a" || events[0].ReasoningDelta != "r" {
		t.Errorf("events = %+v", events)
	}
}
