package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
	"github.com/kirillkom/health-ai-service/internal/core/ports"
)

// ChatUseCase answers nutrition questions. A model failure is not surfaced to the
// caller; the assistant's fallback reply is returned instead.
type ChatUseCase struct {
	assistant ports.ChatAssistant
	logger    *slog.Logger
}

func NewChatUseCase(assistant ports.ChatAssistant, logger *slog.Logger) *ChatUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatUseCase{assistant: assistant, logger: logger}
}

func (uc *ChatUseCase) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatReply, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.ChatReply{}, domain.ErrUnauthorized
	}
	if err := req.Validate(); err != nil {
		return domain.ChatReply{}, err
	}

	text, err := uc.assistant.Chat(ctx, strings.TrimSpace(req.Message), strings.TrimSpace(req.Context))
	if err != nil {
		uc.logger.Warn("chat_fallback", "user_id", req.UserID, "error", err)
		return domain.ChatReply{Message: text, Fallback: true}, nil
	}
	return domain.ChatReply{Message: text}, nil
}
