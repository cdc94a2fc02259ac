package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/conversation"
)

type Conversations struct {
	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	messages      []domain.Message
}

func NewConversations() *Conversations {
	return &Conversations{conversations: make(map[string]*domain.Conversation)}
}

func (s *Conversations) FindOrCreate(_ context.Context, phoneNumber, displayName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.conversations[phoneNumber]; ok {
		return c.ID, nil
	}
	c := &domain.Conversation{
		ID:          len(s.conversations) + 1,
		PhoneNumber: phoneNumber,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	s.conversations[phoneNumber] = c
	return c.ID, nil
}

func (s *Conversations) AppendMessage(_ context.Context, conversationID int, content string, outbound bool, providerMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.messages = append(s.messages, domain.Message{
		ID:                len(s.messages) + 1,
		ConversationID:    conversationID,
		Content:           content,
		Outbound:          outbound,
		ProviderMessageID: providerMessageID,
		CreatedAt:         now,
	})
	for _, c := range s.conversations {
		if c.ID == conversationID {
			c.LastMessageAt = &now
		}
	}
	return nil
}

// Messages returns a copy of every stored message.
func (s *Conversations) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

var _ conversation.Repository = (*Conversations)(nil)
