package chat

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// Role tags who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// legacyModelRole is the name some chat APIs use for the assistant side.
const legacyModelRole = "model"

// ParseRole normalises a stored role tag.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RoleUser):
		return RoleUser, nil
	case string(RoleAssistant), legacyModelRole:
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown message role %q", raw)
	}
}

// UnmarshalJSON accepts the legacy "model" role.
func (r *Role) UnmarshalJSON(data []byte) error {
	var raw string
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	role, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Message is a single conversation turn. Messages are never edited once appended.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}

// Conversation is the ordered message log of one persona.
type Conversation []Message

// Clone returns an independent copy, never nil.
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}
