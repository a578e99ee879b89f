package repository

import (
	"context"
	"fmt"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message models.Message) (*models.Message, error) {
	query := `
		INSERT INTO messages (id, conversation_key, sender_role, sender_id, kind, payload, sent_date, sent_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, conversation_key, sender_role, sender_id, kind, payload, sent_date, sent_time
	`

	var stored models.Message
	var payload []byte
	err := r.db.QueryRow(ctx, query,
		uuid.NewString(),
		message.ConversationKey,
		message.SenderRole,
		message.SenderID,
		message.Kind,
		[]byte(message.Data),
		message.SentDate,
		message.SentTime,
	).Scan(
		&stored.ID,
		&stored.ConversationKey,
		&stored.SenderRole,
		&stored.SenderID,
		&stored.Kind,
		&payload,
		&stored.SentDate,
		&stored.SentTime,
	)
	if err != nil {
		return nil, translate(err)
	}
	stored.Data = payload
	return &stored, nil
}

// ListByConversation returns the thread in persisted append order.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationKey string) ([]models.Message, error) {
	query := `
		SELECT id, conversation_key, sender_role, sender_id, kind, payload, sent_date, sent_time
		FROM messages
		WHERE conversation_key = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.Query(ctx, query, conversationKey)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		var payload []byte
		if err := rows.Scan(
			&message.ID,
			&message.ConversationKey,
			&message.SenderRole,
			&message.SenderID,
			&message.Kind,
			&payload,
			&message.SentDate,
			&message.SentTime,
		); err != nil {
			return nil, translate(err)
		}
		message.Data = payload
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return messages, nil
}

// PostgresMessageStore serializes appends per conversation with a transaction
// scoped advisory lock, so append order is the persisted order.
type PostgresMessageStore struct {
	pool *pgxpool.Pool
}

func NewPostgresMessageStore(pool *pgxpool.Pool) *PostgresMessageStore {
	return &PostgresMessageStore{pool: pool}
}

func (s *PostgresMessageStore) Append(ctx context.Context, message models.Message) (*models.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, translate(err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", message.ConversationKey); err != nil {
		return nil, translate(err)
	}

	stored, err := NewMessageRepository(tx).Create(ctx, message)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit message: %w", translate(err))
	}
	return stored, nil
}

func (s *PostgresMessageStore) History(ctx context.Context, conversationKey string) ([]models.Message, error) {
	return NewMessageRepository(s.pool).ListByConversation(ctx, conversationKey)
}
