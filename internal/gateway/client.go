package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/studytutor/chat-client/internal/stream"
	"github.com/studytutor/chat-client/pkg/logger"
)

var (
	// ErrRateLimited maps a 429 from the gateway. The client never retries
	// automatically; the user decides when to try again.
	ErrRateLimited = errors.New("rate limited")

	// ErrQuotaExceeded maps a 402 from the gateway.
	ErrQuotaExceeded = errors.New("usage quota exhausted")
)

// TransportError is a network failure or a non-2xx gateway response outside
// the dedicated rate-limit and quota kinds.
type TransportError struct {
	Status  int
	Message string
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("gateway request failed: %s", e.Message)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// Client talks to the LLM gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a gateway client. The timeout bounds the whole exchange
// including the streamed body; zero disables it.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// ResponseStream is a live gateway response: a delta decoder plus the body
// it drains. Close releases the connection.
type ResponseStream struct {
	*stream.Decoder
	body io.ReadCloser
}

// Close closes the underlying response body.
func (s *ResponseStream) Close() error {
	return s.body.Close()
}

// StreamChat posts a chat request and returns the SSE response as a decoder.
// Cancelling ctx aborts the in-flight read; the caller still owns whatever
// deltas it has already consumed.
func (c *Client) StreamChat(ctx context.Context, token string, req *ChatRequest) (*ResponseStream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	c.log.Debug("gateway request",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Bool("thinking_mode", req.ThinkingMode),
		zap.Bool("web_search", req.WebSearch),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg := readErrorMessage(resp.Body)
		c.log.Warn("gateway error response", zap.Int("status", resp.StatusCode), zap.String("message", msg))

		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, msg)
		case http.StatusPaymentRequired:
			return nil, fmt.Errorf("%w: %s", ErrQuotaExceeded, msg)
		default:
			return nil, &TransportError{Status: resp.StatusCode, Message: msg}
		}
	}

	return &ResponseStream{
		Decoder: stream.NewDecoder(resp.Body, c.log),
		body:    resp.Body,
	}, nil
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
		return eb.Error
	}
	return string(data)
}
