package domain

import (
	"fmt"
	"strings"
)

// ChatRequest is a free-form nutrition question. Context is caller-supplied
// background (for example a recommendation summary) rendered as text.
type ChatRequest struct {
	UserID  string
	Message string
	Context string
}

func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	return nil
}

// ChatReply is the assistant answer. Fallback is set when the model could not be
// reached and the fixed apology was returned instead.
type ChatReply struct {
	Message  string
	Fallback bool
}
