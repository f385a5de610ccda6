// Package memory keeps users and messages in process memory. It backs
// STORE_DRIVER=memory for local runs and the service and handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sinchita-code/quickchat/internal/models"
	"github.com/sinchita-code/quickchat/internal/repository"
)

type UserStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*models.User
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
		now:     time.Now,
	}
}

func (s *UserStore) Create(ctx context.Context, email, fullName, bio, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, taken := s.byEmail[key]; taken {
		return nil, repository.ErrDuplicateEmail
	}

	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		FullName:     fullName,
		Bio:          bio,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}
	s.byID[u.ID] = u
	s.byEmail[key] = u.ID

	out := *u
	return &out, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	out := *s.byID[id]
	return &out, nil
}

func (s *UserStore) ListExcept(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.byID))
	for id, u := range s.byID {
		if id != userID {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].FullName != users[j].FullName {
			return users[i].FullName < users[j].FullName
		}
		return users[i].ID.String() < users[j].ID.String()
	})
	return users, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, userID uuid.UUID, fullName, bio string, profilePic *string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return nil, nil
	}
	u.FullName = fullName
	u.Bio = bio
	if profilePic != nil {
		pic := *profilePic
		u.ProfilePic = &pic
	}
	out := *u
	return &out, nil
}

// MessageStore keeps messages in insertion order, which is also creation
// order, so conversation listing needs no sort.
type MessageStore struct {
	mu       sync.RWMutex
	messages []*models.Message
	byID     map[uuid.UUID]*models.Message
	now      func() time.Time
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		byID: make(map[uuid.UUID]*models.Message),
		now:  time.Now,
	}
}

func (s *MessageStore) Create(ctx context.Context, in repository.NewMessage) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &models.Message{
		ID:         uuid.New(),
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Text:       in.Text,
		Image:      in.Image,
		CreatedAt:  s.now().UTC(),
	}
	s.messages = append(s.messages, msg)
	s.byID[msg.ID] = msg

	out := *msg
	return &out, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.byID[messageID]
	if !ok {
		return nil, nil
	}
	out := *msg
	return &out, nil
}

func (s *MessageStore) ListConversation(ctx context.Context, a, b uuid.UUID) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, 0)
	for _, m := range s.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *MessageStore) MarkDelivered(ctx context.Context, messageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.byID[messageID]; ok {
		m.Delivered = true
	}
	return nil
}

func (s *MessageStore) MarkSeen(ctx context.Context, messageID, receiverID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok || m.ReceiverID != receiverID || m.Seen {
		return false, nil
	}
	m.Seen = true
	return true, nil
}

func (s *MessageStore) MarkConversationSeen(ctx context.Context, senderID, receiverID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.messages {
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.Seen {
			m.Seen = true
			n++
		}
	}
	return n, nil
}

func (s *MessageStore) UnseenCounts(ctx context.Context, receiverID uuid.UUID) (map[uuid.UUID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[uuid.UUID]int)
	for _, m := range s.messages {
		if m.ReceiverID == receiverID && !m.Seen {
			counts[m.SenderID]++
		}
	}
	return counts, nil
}

var (
	_ repository.UserRepository    = (*UserStore)(nil)
	_ repository.MessageRepository = (*MessageStore)(nil)
)
