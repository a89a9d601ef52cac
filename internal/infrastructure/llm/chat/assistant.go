package chat

import (
	"context"
	"errors"
	"strings"
)

// Assistant answers free-form nutrition questions in plain text.
type Assistant struct {
	client *Client
}

func NewAssistant(client *Client) *Assistant {
	return &Assistant{client: client}
}

// Chat returns the model reply, or the configured fallback reply with the error.
func (a *Assistant) Chat(ctx context.Context, message, background string) (string, error) {
	prompts := a.client.prompts
	system := prompts.ChatSystem
	if background != "" {
		system += "\nContext: " + background
	}

	messages := []message{
		{Role: "system", Content: system},
		{Role: "user", Content: message},
	}
	reply, err := a.client.complete(ctx, "chat", a.client.textModel, messages, false)
	if err != nil {
		return prompts.ChatFallback, err
	}
	if strings.TrimSpace(reply) == "" {
		return prompts.ChatFallback, errors.New("model chat returned an empty reply")
	}
	return reply, nil
}
