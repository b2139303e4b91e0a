// Package gateway is the HTTP client for the LLM gateway.
package gateway

import (
	"github.com/studytutor/chat-client/internal/model"
)

// ChatMessage is one entry of the outbound message history. Content is
// either a plain string or an ordered []ContentPart when attachments ride
// along.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one piece of a multi-part message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageRef carries an inline image as a data URI.
type ImageRef struct {
	URL string `json:"url"`
}

// ChatRequest is the gateway request body. CustomInstructions is forwarded
// untouched; the backend folds it into its system prompt.
type ChatRequest struct {
	Messages           []ChatMessage `json:"messages"`
	Model              string        `json:"model"`
	ThinkingMode       bool          `json:"thinkingMode"`
	WebSearch          bool          `json:"webSearch"`
	CustomInstructions string        `json:"customInstructions,omitempty"`
}

// errorBody is the gateway's JSON error response.
type errorBody struct {
	Error string `json:"error"`
}

// HistoryMessages converts stored messages into the outbound wire form.
// User messages with inline image attachments become multi-part content;
// everything else stays a plain string.
func HistoryMessages(msgs []model.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, historyMessage(msg))
	}
	return out
}

func historyMessage(msg model.Message) ChatMessage {
	if msg.Role != model.RoleUser || len(msg.Attachments) == 0 {
		return ChatMessage{Role: string(msg.Role), Content: msg.Content}
	}

	var parts []ContentPart
	if msg.Content != "" {
		parts = append(parts, ContentPart{Type: "text", Text: msg.Content})
	}
	for _, att := range msg.Attachments {
		if att.IsImage() && att.InlineData != "" {
			parts = append(parts, ContentPart{
				Type:     "image_url",
				ImageURL: &ImageRef{URL: att.InlineData},
			})
		}
	}
	if len(parts) == 0 {
		return ChatMessage{Role: string(msg.Role), Content: msg.Content}
	}
	return ChatMessage{Role: string(msg.Role), Content: parts}
}
