package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/philosophers/agora/backend/internal/model/chat"
	"github.com/philosophers/agora/backend/internal/model/persona"
)

var logger = logrus.WithField("component", "ai")

// Service sends one persona-scoped completion request per call.
type Service struct {
	chatModel model.ChatModel
	personas  *persona.Registry
	provider  string
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the response client. A nil chatModel is allowed and means
// no credential was configured: every Complete then fails with
// ErrMissingCredential without touching the network.
func NewService(ctx context.Context, personas *persona.Registry, provider string, chatModel model.ChatModel) (*Service, error) {
	svc := &Service{
		chatModel: chatModel,
		personas:  personas,
		provider:  provider,
	}
	if chatModel == nil {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	svc.chain = runnable
	return svc, nil
}

// Configured reports whether a chat model is available.
func (s *Service) Configured() bool {
	return s.chain != nil
}

// Provider names the backing chat provider.
func (s *Service) Provider() string {
	return s.provider
}

// Complete asks the model for the persona's reply to newMessage. history is the
// conversation before newMessage. Failures are always *CompletionError, except
// for an id outside the persona set, which is returned as persona.ErrNotFound.
func (s *Service) Complete(ctx context.Context, id persona.ID, history chat.Conversation, newMessage string) (string, error) {
	p, err := s.personas.Lookup(id)
	if err != nil {
		return "", err
	}

	if s.chain == nil {
		return "", NewCompletionError(ErrMissingCredential, nil)
	}

	response, err := s.chain.Invoke(ctx, buildChainInput(p, history, newMessage))
	if err != nil {
		classified := classify(err)
		logger.WithFields(logrus.Fields{
			"persona":  id,
			"provider": s.provider,
			"kind":     classified.Kind,
		}).WithError(err).Warn("completion failed")
		return "", classified
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", NewCompletionError(ErrUnknown, fmt.Errorf("%s returned an empty reply", s.provider))
	}

	logger.WithFields(logrus.Fields{
		"persona": id,
		"history": len(history),
		"length":  len(response.Content),
	}).Debug("generated response")
	return response.Content, nil
}

func buildChainInput(p persona.Persona, history chat.Conversation, userMessage string) map[string]any {
	return map[string]any{
		"system":  BuildSystemPrompt(p),
		"history": buildHistoryMessages(history),
		"query":   userMessage,
	}
}

// BuildSystemPrompt returns the directive attached to every request for p. It
// never becomes part of the stored conversation.
func BuildSystemPrompt(p persona.Persona) string {
	return fmt.Sprintf("%s\n\nStay in character as %s for the whole conversation. Answer in the language the user writes in.",
		p.Instruction, p.Name)
}

func buildHistoryMessages(messages chat.Conversation) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}
