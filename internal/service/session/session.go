// Package session binds the active persona, its conversation and the
// in-flight request flag into the single runtime Session of the process.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/philosophers/agora/backend/internal/model/chat"
	"github.com/philosophers/agora/backend/internal/model/persona"
	"github.com/philosophers/agora/backend/internal/service/ai"
)

// State is the controller state.
type State string

const (
	Idle      State = "idle"
	Switching State = "switching"
	Sending   State = "sending"
)

var (
	ErrBusy         = errors.New("session is busy")
	ErrEmptyMessage = errors.New("message is empty")
	ErrClosed       = errors.New("session is closed")
	// ErrPersist marks a change that is in memory but did not reach the store.
	ErrPersist = errors.New("conversation not persisted")
)

// ConversationStore is the durable backing of per-persona conversations.
type ConversationStore interface {
	Load(ctx context.Context, id persona.ID) (chat.Conversation, error)
	Save(ctx context.Context, id persona.ID, conv chat.Conversation) error
	Clear(ctx context.Context, id persona.ID) error
}

// Completer produces the persona's reply. history excludes newMessage.
type Completer interface {
	Complete(ctx context.Context, id persona.ID, history chat.Conversation, newMessage string) (string, error)
}

// Snapshot is a point-in-time copy of the session for the view.
type Snapshot struct {
	ID       string            `json:"id"`
	Persona  persona.ID        `json:"personaId"`
	State    State             `json:"state"`
	Sending  bool              `json:"sending"`
	Messages chat.Conversation `json:"messages"`
}

// Session is safe for concurrent use. Sending and persona switching exclude
// each other: while a send is in flight every other mutation fails with ErrBusy.
type Session struct {
	id       string
	store    ConversationStore
	client   Completer
	personas *persona.Registry
	log      *logrus.Entry

	mu          sync.Mutex
	state       State
	active      persona.ID
	conv        chat.Conversation
	closed      bool
	subscribers map[int]chan Snapshot
	nextSub     int
}

// New starts a session on initial, loading its stored conversation.
func New(ctx context.Context, store ConversationStore, client Completer, personas *persona.Registry, initial persona.ID) (*Session, error) {
	if _, err := personas.Lookup(initial); err != nil {
		return nil, err
	}

	conv, err := store.Load(ctx, initial)
	if err != nil {
		return nil, fmt.Errorf("load initial conversation: %w", err)
	}

	id := uuid.NewString()
	s := &Session{
		id:          id,
		store:       store,
		client:      client,
		personas:    personas,
		log:         logrus.WithFields(logrus.Fields{"component": "session", "session": id}),
		state:       Idle,
		active:      initial,
		conv:        conv,
		subscribers: make(map[int]chan Snapshot),
	}
	s.log.WithFields(logrus.Fields{"persona": initial, "messages": len(conv)}).Info("session started")
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SwitchPersona activates id and loads its conversation. It is rejected with
// ErrBusy while a send is in flight so that a late reply can never land in
// another persona's log. On a load error the previous persona stays active.
func (s *Session) SwitchPersona(ctx context.Context, id persona.ID) error {
	if _, err := s.personas.Lookup(id); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.acceptLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	previous := s.active
	s.state = Switching
	s.publishLocked()
	s.mu.Unlock()

	conv, err := s.store.Load(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	if err != nil {
		s.publishLocked()
		s.log.WithError(err).WithField("persona", id).Error("switch persona failed")
		return fmt.Errorf("switch to %s: %w", id, err)
	}
	s.active = id
	s.conv = conv
	s.publishLocked()

	s.log.WithFields(logrus.Fields{"from": previous, "to": id, "messages": len(conv)}).Info("persona switched")
	return nil
}

// Send appends text as a user message, asks the Completer for a reply and
// appends that reply. Both appends are persisted before the state changes.
//
// A failed completion is not fatal: its user-facing text becomes the assistant
// message, the session returns to Idle, and the completion error is returned
// next to the message for the caller's information.
func (s *Session) Send(ctx context.Context, text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	// In-flight requests are never cancelled: a caller that goes away does not
	// abort the round trip or either write.
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if err := s.acceptLocked(); err != nil {
		s.mu.Unlock()
		return chat.Message{}, err
	}
	id := s.active
	history := s.conv.Clone()
	s.state = Sending
	s.conv = append(history.Clone(), chat.UserMessage(text))
	pending := s.conv.Clone()
	s.publishLocked()
	s.mu.Unlock()

	if err := s.store.Save(ctx, id, pending); err != nil {
		s.mu.Lock()
		s.conv = history
		s.state = Idle
		s.publishLocked()
		s.mu.Unlock()
		return chat.Message{}, fmt.Errorf("%w: user message: %w", ErrPersist, err)
	}

	reply, completionErr := s.client.Complete(ctx, id, history, text)

	var answer chat.Message
	if completionErr != nil {
		answer = chat.AssistantMessage(ai.UserMessage(completionErr))
		s.log.WithError(completionErr).WithField("persona", id).Warn("reply failed")
	} else {
		answer = chat.AssistantMessage(reply)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.WithField("persona", id).Info("discarding reply for closed session")
		return answer, ErrClosed
	}
	s.conv = append(s.conv, answer)
	final := s.conv.Clone()
	s.mu.Unlock()

	saveErr := s.store.Save(ctx, id, final)
	if saveErr != nil {
		s.log.WithError(saveErr).WithField("persona", id).Error("persist reply failed")
		saveErr = fmt.Errorf("%w: assistant message: %w", ErrPersist, saveErr)
	}

	s.mu.Lock()
	s.state = Idle
	s.publishLocked()
	s.mu.Unlock()

	return answer, errors.Join(completionErr, saveErr)
}

// Clear empties the active conversation and its stored copy.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acceptLocked(); err != nil {
		return err
	}
	if err := s.store.Clear(ctx, s.active); err != nil {
		return fmt.Errorf("clear %s: %w", s.active, err)
	}
	s.conv = chat.Conversation{}
	s.publishLocked()

	s.log.WithField("persona", s.active).Info("conversation cleared")
	return nil
}

// Subscribe delivers a snapshot after every change. Slow readers only see the
// latest snapshot. The returned func unsubscribes.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	key := s.nextSub
	s.nextSub++
	s.subscribers[key] = ch
	ch <- s.snapshotLocked()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[key]; ok {
			delete(s.subscribers, key)
			close(sub)
		}
	}
}

// Close tears the session down. A reply that arrives afterwards is dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for key, ch := range s.subscribers {
		delete(s.subscribers, key)
		close(ch)
	}
	s.log.Info("session closed")
}

func (s *Session) acceptLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.state != Idle {
		return ErrBusy
	}
	return nil
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:       s.id,
		Persona:  s.active,
		State:    s.state,
		Sending:  s.state == Sending,
		Messages: s.conv.Clone(),
	}
}

func (s *Session) publishLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// drop the stale snapshot, keep the latest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
