package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// FallbackReply is returned when the model produces an empty completion.
const FallbackReply = "Sorry, I couldn't generate a response. Please try again."

// Service is the chat backend, talking to any OpenAI-compatible endpoint.
type Service struct {
	llm    llms.Model
	logger *zap.Logger
}

func New(baseURL, token, model string, logger *zap.Logger) (*Service, error) {
	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return NewWithModel(llm, logger), nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(model llms.Model, logger *zap.Logger) *Service {
	return &Service{llm: model, logger: logger}
}

// Chat sends a single user message and returns the model's reply verbatim,
// apart from surrounding whitespace. The reply may itself describe an error;
// telling those apart is left to the caller.
func (s *Service) Chat(ctx context.Context, text string) (string, error) {
	completion, err := llms.GenerateFromSinglePrompt(ctx, s.llm, text)
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}

	completion = strings.TrimSpace(completion)
	if completion == "" {
		s.logger.Warn("Model returned an empty completion")
		return FallbackReply, nil
	}

	s.logger.Debug("Generated completion", zap.Int("length", len(completion)))
	return completion, nil
}
