package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sinchita-code/quickchat/internal/models"
	"github.com/sinchita-code/quickchat/internal/repository"
)

const messageColumns = `id, sender_id, receiver_id, text, image, delivered, seen, created_at`

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Text,
		&msg.Image,
		&msg.Delivered,
		&msg.Seen,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MessageStore) Create(ctx context.Context, in repository.NewMessage) (*models.Message, error) {
	// delivered and seen take their column defaults (false).
	query := `
		INSERT INTO messages (sender_id, receiver_id, text, image, created_at)
		VALUES ($1, $2, $3, $4, clock_timestamp())
		RETURNING ` + messageColumns

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, in.SenderID, in.ReceiverID, in.Text, in.Image))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) ListConversation(ctx context.Context, a, b uuid.UUID) ([]models.Message, error) {
	// The id tiebreak keeps the order total when two rows share a timestamp.
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, a, b)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func (s *MessageStore) MarkDelivered(ctx context.Context, messageID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE messages SET delivered = true WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (s *MessageStore) MarkSeen(ctx context.Context, messageID, receiverID uuid.UUID) (bool, error) {
	query := `
		UPDATE messages SET seen = true
		WHERE id = $1 AND receiver_id = $2 AND seen = false`

	tag, err := s.pool.Exec(ctx, query, messageID, receiverID)
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *MessageStore) MarkConversationSeen(ctx context.Context, senderID, receiverID uuid.UUID) (int64, error) {
	query := `
		UPDATE messages SET seen = true
		WHERE sender_id = $1 AND receiver_id = $2 AND seen = false`

	tag, err := s.pool.Exec(ctx, query, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation seen: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *MessageStore) UnseenCounts(ctx context.Context, receiverID uuid.UUID) (map[uuid.UUID]int, error) {
	// One grouped query instead of a COUNT per sidebar user.
	query := `
		SELECT sender_id, COUNT(*)
		FROM messages
		WHERE receiver_id = $1 AND seen = false
		GROUP BY sender_id`

	rows, err := s.pool.Query(ctx, query, receiverID)
	if err != nil {
		return nil, fmt.Errorf("unseen counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var sender uuid.UUID
		var n int
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, fmt.Errorf("scan unseen count: %w", err)
		}
		counts[sender] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unseen counts: %w", err)
	}
	return counts, nil
}
