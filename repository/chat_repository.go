package repository

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"legalmatch-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChatRepository handles database operations for conversations and messages
type ChatRepository struct {
	db *pgxpool.Pool
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{db: db}
}

const conversationColumns = `id, participant_a, participant_b, last_message_at, created_at`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	conv := &models.Conversation{}
	if err := row.Scan(&conv.ID, &conv.ParticipantA, &conv.ParticipantB, &conv.LastMessageAt, &conv.CreatedAt); err != nil {
		return nil, err
	}
	return conv, nil
}

// orderedPair returns the participants in the order stored by the
// participant_a < participant_b check
func orderedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

// FindOrCreateConversation returns the conversation between a and b,
// creating it if needed. Argument order does not matter.
func (r *ChatRepository) FindOrCreateConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	first, second := orderedPair(a, b)
	query := `
		INSERT INTO conversations (participant_a, participant_b)
		VALUES ($1, $2)
		ON CONFLICT (participant_a, participant_b) DO UPDATE SET participant_a = EXCLUDED.participant_a
		RETURNING ` + conversationColumns

	conv, err := scanConversation(r.db.QueryRow(ctx, query, first, second))
	if err != nil {
		return nil, fmt.Errorf("failed to find or create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID
func (r *ChatRepository) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return conv, nil
}

// ListConversations retrieves a user's conversations, most recently active first
func (r *ChatRepository) ListConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// CreateMessage persists msg and bumps the conversation's activity time
func (r *ChatRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_id, recipient_id, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, seen, created_at`,
		msg.ConversationID, msg.SenderID, msg.RecipientID, msg.Text,
	).Scan(&msg.ID, &msg.Seen, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", translate(err))
	}

	_, err = tx.Exec(ctx, `UPDATE conversations SET last_message_at = $2 WHERE id = $1`, msg.ConversationID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}

	return tx.Commit(ctx)
}

// ListMessages retrieves up to limit messages of a conversation, newest
// first, optionally only those created before a point in time
func (r *ChatRepository) ListMessages(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, recipient_id, text, seen, created_at
		FROM messages
		WHERE conversation_id = $1`
	args := []interface{}{conversationID}
	argIndex := 2

	if before != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argIndex)
		args = append(args, *before)
		argIndex++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.RecipientID, &msg.Text, &msg.Seen, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// MarkSeen marks every unseen message of the conversation addressed to
// readerID as seen and returns how many changed
func (r *ChatRepository) MarkSeen(ctx context.Context, conversationID, readerID uuid.UUID) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages SET seen = TRUE
		WHERE conversation_id = $1 AND recipient_id = $2 AND NOT seen`, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages seen: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UnseenCounts returns the number of unseen messages addressed to userID,
// per conversation. Conversations with nothing unseen are omitted.
func (r *ChatRepository) UnseenCounts(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT conversation_id, COUNT(*)
		FROM messages
		WHERE recipient_id = $1 AND NOT seen
		GROUP BY conversation_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unseen messages: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
