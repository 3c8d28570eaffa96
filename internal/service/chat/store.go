package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/philosophers/agora/backend/internal/model/chat"
	"github.com/philosophers/agora/backend/internal/model/persona"
	"github.com/philosophers/agora/backend/internal/storage"
)

const keyPrefix = "conversation:"

var ErrCorrupt = errors.New("stored conversation is corrupt")

// Store persists one conversation per persona in a keyed storage backend.
type Store struct {
	kv storage.KV
}

// NewStore wraps kv. The store does not own kv and never closes it.
func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// Key returns the storage key holding the conversation of id.
func Key(id persona.ID) string {
	return keyPrefix + string(id)
}

// Load returns the stored conversation of id. A persona that never spoke has an
// empty conversation and no error.
func (s *Store) Load(ctx context.Context, id persona.ID) (chat.Conversation, error) {
	data, ok, err := s.kv.Get(ctx, Key(id))
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	if !ok || len(data) == 0 {
		return chat.Conversation{}, nil
	}

	var conv chat.Conversation
	if err := sonic.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, id, err)
	}
	if conv == nil {
		conv = chat.Conversation{}
	}
	return conv, nil
}

// Save replaces the stored conversation of id. Saving an empty conversation
// removes the key so that Has reports false.
func (s *Store) Save(ctx context.Context, id persona.ID, conv chat.Conversation) error {
	if len(conv) == 0 {
		if err := s.kv.Delete(ctx, Key(id)); err != nil {
			return fmt.Errorf("clear conversation %s: %w", id, err)
		}
		return nil
	}

	data, err := sonic.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", id, err)
	}
	if err := s.kv.Put(ctx, Key(id), data); err != nil {
		return fmt.Errorf("save conversation %s: %w", id, err)
	}
	return nil
}

// Clear removes the stored conversation of id.
func (s *Store) Clear(ctx context.Context, id persona.ID) error {
	return s.Save(ctx, id, nil)
}

// Has reports whether id has any stored history.
func (s *Store) Has(ctx context.Context, id persona.ID) (bool, error) {
	_, ok, err := s.kv.Get(ctx, Key(id))
	if err != nil {
		return false, fmt.Errorf("inspect conversation %s: %w", id, err)
	}
	return ok, nil
}
