package chat

import (
	"errors"
)

var (
	// ErrAuthRequired indicates an operation needing an authenticated
	// session was attempted without one. Not retryable until sign-in.
	ErrAuthRequired = errors.New("authentication required")

	// ErrSendInFlight indicates a send was rejected because the
	// conversation already has a response streaming. Sends are never
	// queued or interleaved.
	ErrSendInFlight = errors.New("a response is already streaming for this conversation")

	// ErrNoConversation indicates the operation needs a selected
	// conversation.
	ErrNoConversation = errors.New("no conversation selected")
)
