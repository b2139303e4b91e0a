// Package stream decodes the gateway's SSE response into delta events.
package stream

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/studytutor/chat-client/internal/model"
	"github.com/studytutor/chat-client/pkg/logger"
	"github.com/studytutor/chat-client/pkg/metrics"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// chunk mirrors the gateway's per-event JSON payload.
type chunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder turns a raw SSE byte stream into a sequence of model.DeltaEvent.
//
// Bytes are accumulated in a buffer and only newline-terminated lines are
// parsed, so a JSON payload split across transport chunks is simply not
// visible until its line completes. A complete line that still fails to
// parse is genuinely malformed and skipped. After the [DONE] sentinel the
// rest of the buffer is ignored.
type Decoder struct {
	r    io.Reader
	log  *logger.Logger
	buf  []byte
	done bool
	eof  bool
}

// NewDecoder creates a decoder over an SSE response body.
func NewDecoder(r io.Reader, log *logger.Logger) *Decoder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Decoder{r: r, log: log}
}

// Next returns the next delta event. The sequence ends with exactly one
// event whose IsTerminal is true; calls after that return io.EOF. A transport
// failure is returned as-is (including context cancellation errors from the
// underlying request).
func (d *Decoder) Next() (model.DeltaEvent, error) {
	if d.done {
		return model.DeltaEvent{}, io.EOF
	}

	for {
		if line, ok := d.nextLine(); ok {
			ev, emit := d.processLine(line)
			if !emit {
				continue
			}
			if ev.IsTerminal {
				d.done = true
			}
			return ev, nil
		}

		if d.eof {
			// The transport closed without a [DONE] sentinel. A leftover
			// unterminated line may still be a complete final payload; a
			// truncated one is dropped.
			if len(d.buf) > 0 {
				line := string(d.buf)
				d.buf = nil
				if ev, emit := d.processLine(line); emit {
					if ev.IsTerminal {
						d.done = true
					}
					return ev, nil
				}
			}
			d.done = true
			return model.DeltaEvent{IsTerminal: true}, nil
		}

		if err := d.fill(); err != nil {
			if errors.Is(err, io.EOF) {
				d.eof = true
				continue
			}
			return model.DeltaEvent{}, err
		}
	}
}

// nextLine pops one newline-terminated line off the buffer.
func (d *Decoder) nextLine() (string, bool) {
	idx := -1
	for i, b := range d.buf {
		if b == '\n' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}
	line := string(d.buf[:idx])
	d.buf = d.buf[idx+1:]
	return strings.TrimSuffix(line, "\r"), true
}

// processLine decodes one SSE line. The second return value reports whether
// an event should be emitted for it.
func (d *Decoder) processLine(line string) (model.DeltaEvent, bool) {
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
		return model.DeltaEvent{}, false
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return model.DeltaEvent{}, false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == doneSentinel {
		return model.DeltaEvent{IsTerminal: true}, true
	}

	var c chunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		if d.eof && len(d.buf) == 0 {
			// Truncated tail of a dying transport, not worth a warning.
			d.log.Debug("dropping truncated stream tail", zap.Int("bytes", len(payload)))
			return model.DeltaEvent{}, false
		}
		metrics.MalformedChunksTotal.Inc()
		d.log.Warn("skipping malformed stream chunk", zap.Error(err))
		return model.DeltaEvent{}, false
	}

	if len(c.Choices) == 0 {
		return model.DeltaEvent{}, false
	}

	ev := model.DeltaEvent{
		AnswerDelta:    c.Choices[0].Delta.Content,
		ReasoningDelta: c.Choices[0].Delta.Reasoning,
	}
	if ev.Empty() {
		return model.DeltaEvent{}, false
	}
	if ev.AnswerDelta != "" {
		metrics.RecordDelta("answer")
	}
	if ev.ReasoningDelta != "" {
		metrics.RecordDelta("reasoning")
	}
	return ev, true
}

// fill reads one more chunk from the transport into the buffer.
func (d *Decoder) fill() error {
	p := make([]byte, 4096)
	n, err := d.r.Read(p)
	if n > 0 {
		d.buf = append(d.buf, p[:n]...)
		return nil
	}
	if err != nil {
		return err
	}
	return nil
}
