package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sinchita-code/quickchat/internal/models"
)

// ErrDuplicateEmail is returned by UserRepository.Create when the email is
// already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// Lookups return nil, nil when the row does not exist. Only real storage
// failures come back as errors.

// UserRepository handles user accounts.
type UserRepository interface {
	// Create inserts a user and returns it with ID and CreatedAt populated.
	Create(ctx context.Context, email, fullName, bio, passwordHash string) (*models.User, error)

	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByEmail is used for login and the signup uniqueness check.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// ListExcept returns every user but the given one, ordered by name.
	// Returns an empty slice (not nil) so JSON serializes to [].
	ListExcept(ctx context.Context, userID uuid.UUID) ([]models.User, error)

	// UpdateProfile sets name and bio, and the avatar when profilePic is non-nil.
	UpdateProfile(ctx context.Context, userID uuid.UUID, fullName, bio string, profilePic *string) (*models.User, error)
}

// NewMessage holds the client-controlled fields of a message.
type NewMessage struct {
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Text       string
	Image      *string
}

// MessageRepository handles direct message persistence.
type MessageRepository interface {
	// Create persists a message with delivered=false, seen=false.
	Create(ctx context.Context, msg NewMessage) (*models.Message, error)

	GetByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error)

	// ListConversation returns every message between a and b in either
	// direction, oldest first.
	ListConversation(ctx context.Context, a, b uuid.UUID) ([]models.Message, error)

	MarkDelivered(ctx context.Context, messageID uuid.UUID) error

	// MarkSeen flags one message as seen if receiverID is its receiver.
	// Reports whether the flag changed.
	MarkSeen(ctx context.Context, messageID, receiverID uuid.UUID) (bool, error)

	// MarkConversationSeen flags every unseen sender→receiver message as
	// seen and returns how many rows changed.
	MarkConversationSeen(ctx context.Context, senderID, receiverID uuid.UUID) (int64, error)

	// UnseenCounts returns, per sender, how many messages to receiverID are
	// still unseen. Senders with zero are omitted.
	UnseenCounts(ctx context.Context, receiverID uuid.UUID) (map[uuid.UUID]int, error)
}
