package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openaiapi "github.com/sashabaranov/go-openai"

	"github.com/philosophers/agora/backend/internal/adapter"
)

// GeminiBaseURL is Gemini's OpenAI-compatible endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// Config selects the endpoint and default sampling parameters.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
}

// ChatModel implements eino's model.ChatModel over the chat completions API.
type ChatModel struct {
	api *openaiapi.Client
	cfg Config
}

func NewChatModel(cfg Config) (*ChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("model is required")
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}

	clientCfg := openaiapi.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &ChatModel{
		api: openaiapi.NewClientWithConfig(clientCfg),
		cfg: cfg,
	}, nil
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Model:       &m.cfg.Model,
		Temperature: m.cfg.Temperature,
		TopP:        m.cfg.TopP,
		MaxTokens:   m.cfg.MaxTokens,
	}, opts...)

	req := openaiapi.ChatCompletionRequest{
		Model:    *options.Model,
		Messages: toAPIMessages(input),
		Stream:   false,
	}
	if options.Temperature != nil {
		req.Temperature = *options.Temperature
	}
	if options.TopP != nil {
		req.TopP = *options.TopP
	}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}

	resp, err := m.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, m.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned empty response", m.cfg.Provider)
	}

	return schema.AssistantMessage(resp.Choices[0].Message.Content, nil), nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return adapter.SingleChunkStream(ctx, func(ctx context.Context) (*schema.Message, error) {
		return m.Generate(ctx, input, opts...)
	})
}

// BindTools is not supported: personas never call tools.
func (m *ChatModel) BindTools(_ []*schema.ToolInfo) error {
	return errors.New("tool calling is not supported")
}

func (m *ChatModel) wrapError(err error) error {
	var apiErr *openaiapi.APIError
	if errors.As(err, &apiErr) {
		return &adapter.APIError{Provider: m.cfg.Provider, Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openaiapi.RequestError
	if errors.As(err, &reqErr) {
		return &adapter.APIError{Provider: m.cfg.Provider, Status: reqErr.HTTPStatusCode, Err: err}
	}
	return fmt.Errorf("%s request: %w", m.cfg.Provider, err)
}

func toAPIMessages(msgs []*schema.Message) []openaiapi.ChatCompletionMessage {
	res := make([]openaiapi.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		var role string
		switch m.Role {
		case schema.System:
			role = openaiapi.ChatMessageRoleSystem
		case schema.User:
			role = openaiapi.ChatMessageRoleUser
		case schema.Assistant:
			role = openaiapi.ChatMessageRoleAssistant
		default:
			continue
		}
		res = append(res, openaiapi.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	return res
}
