package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/philosophers/agora/backend/internal/adapter"
)

const (
	DefaultModel     = string(anthropic.ModelClaude3_7SonnetLatest)
	defaultMaxTokens = 1024
	providerName     = "anthropic"
)

// Config selects the endpoint and default sampling parameters.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
}

// ChatModel implements eino's model.ChatModel over the Messages API.
type ChatModel struct {
	client anthropic.Client
	cfg    Config
}

func NewChatModel(cfg Config) (*ChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// One attempt per user message; the SDK retries by default.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &ChatModel{client: anthropic.NewClient(opts...), cfg: cfg}, nil
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	maxTokens := defaultMaxTokens
	if m.cfg.MaxTokens != nil {
		maxTokens = *m.cfg.MaxTokens
	}
	options := model.GetCommonOptions(&model.Options{
		Model:       &m.cfg.Model,
		Temperature: m.cfg.Temperature,
		TopP:        m.cfg.TopP,
		MaxTokens:   &maxTokens,
	}, opts...)

	system, messages := toAPIMessages(input)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(*options.Model),
		MaxTokens: int64(*options.MaxTokens),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if options.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*options.Temperature))
	}
	if options.TopP != nil {
		params.TopP = anthropic.Float(float64(*options.TopP))
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &adapter.APIError{Provider: providerName, Status: apiErr.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("%s request: %w", providerName, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return schema.AssistantMessage(text.String(), nil), nil
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

// toAPIMessages splits system directives out of the turn list, since the
// Messages API carries them in a separate field.
func toAPIMessages(msgs []*schema.Message) (string, []anthropic.MessageParam) {
	var system []string
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.System:
			system = append(system, m.Content)
		case schema.User:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case schema.Assistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return strings.Join(system, "\n\n"), out
}
