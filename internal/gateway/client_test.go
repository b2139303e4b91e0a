package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/studytutor/chat-client/internal/model"
	"github.com/studytutor/chat-client/pkg/logger"
)

func TestStreamChatHappyPath(t *testing.T) {
	var gotAuth string
	var gotReq ChatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"hi"}}]}` + "\n"))
		w.Write([]byte("data: [DONE]\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0, logger.NewNop())
	rs, err := c.StreamChat(context.Background(), "tok-123", &ChatRequest{
		Messages:     []ChatMessage{{Role: "user", Content: "hello"}},
		Model:        "google/gemini-2.5-flash-lite",
		ThinkingMode: true,
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	defer rs.Close()

	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "google/gemini-2.5-flash-lite" || !gotReq.ThinkingMode || gotReq.WebSearch {
		t.Errorf("request body = %+v", gotReq)
	}

	ev, err := rs.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.AnswerDelta != "hi" {
		t.Errorf("event = %+v", ev)
	}
}

func TestStreamChatErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		check  func(error) bool
		name   string
	}{
		{http.StatusTooManyRequests, `{"error":"Rate limit exceeded. Please try again in a moment."}`,
			func(err error) bool { return errors.Is(err, ErrRateLimited) }, "rate limited"},
		{http.StatusPaymentRequired, `{"error":"Usage limit reached."}`,
			func(err error) bool { return errors.Is(err, ErrQuotaExceeded) }, "quota"},
		{http.StatusInternalServerError, `{"error":"boom"}`,
			func(err error) bool {
				var te *TransportError
				return errors.As(err, &te) && te.Status == http.StatusInternalServerError
			}, "generic"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(c.status)
				w.Write([]byte(c.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, 0, logger.NewNop())
			_, err := client.StreamChat(context.Background(), "tok", &ChatRequest{Model: "m"})
			if err == nil || !c.check(err) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestStreamChatNetworkFailure(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 0, logger.NewNop())
	_, err := c.StreamChat(context.Background(), "tok", &ChatRequest{Model: "m"})

	var te *TransportError
	if !errors.As(err, &te) || te.Status != 0 {
		t.Errorf("err = %v, want status-less TransportError", err)
	}
}

func TestHistoryMessagesWithAttachments(t *testing.T) {
	msgs := []model.Message{
		{Role: model.RoleUser, Content: "plain"},
		{Role: model.RoleUser, Content: "look at this", Attachments: []model.Attachment{
			{MIMEType: "image/png", InlineData: "data:image/png;base64,aaaa"},
			{MIMEType: "application/pdf", Name: "doc.pdf"},
		}},
		{Role: model.RoleAssistant, Content: "nice"},
	}

	out := HistoryMessages(msgs)
	if len(out) != 3 {
		t.Fatalf("got %d messages", len(out))
	}

	if out[0].Content != "plain" {
		t.Errorf("plain message altered: %+v", out[0])
	}

	parts, ok := out[1].Content.([]ContentPart)
	if !ok {
		t.Fatalf("attachment message content is %T", out[1].Content)
	}
	// Text part plus the image; the PDF is metadata-only and stays out of
	// the wire payload.
	if len(parts) != 2 {
		t.Fatalf("got %d parts: %+v", len(parts), parts)
	}
	if parts[0].Type != "text" || parts[0].Text != "look at this" {
		t.Errorf("part 0 = %+v", parts[0])
	}
	if parts[1].Type != "image_url" || parts[1].ImageURL.URL != "data:image/png;base64,aaaa" {
		t.Errorf("part 1 = %+v", parts[1])
	}

	if out[2].Content != "nice" {
		t.Errorf("assistant message altered: %+v", out[2])
	}
}
