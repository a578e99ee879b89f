// Package sqlitestore implements the request ledger, the message store and the
// profile directory on an embedded SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/curasync-homepage/curasync-web-app/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS connection_requests (
	id             TEXT PRIMARY KEY,
	requester_role TEXT NOT NULL,
	requester_id   TEXT NOT NULL,
	target_role    TEXT NOT NULL,
	target_id      TEXT NOT NULL,
	category       TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	created_date   TEXT NOT NULL,
	created_time   TEXT NOT NULL,
	accepted_date  TEXT NOT NULL DEFAULT '',
	accepted_time  TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS connection_requests_one_pending
	ON connection_requests (requester_id, target_id, category)
	WHERE status = 'pending';

CREATE INDEX IF NOT EXISTS connection_requests_target
	ON connection_requests (target_id, status);

CREATE TABLE IF NOT EXISTS messages (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT NOT NULL UNIQUE,
	conversation_key TEXT NOT NULL,
	sender_role      TEXT NOT NULL,
	sender_id        TEXT NOT NULL,
	kind             TEXT NOT NULL,
	payload          TEXT NOT NULL,
	sent_date        TEXT NOT NULL,
	sent_time        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_conversation ON messages (conversation_key, seq);

CREATE TABLE IF NOT EXISTS profiles (
	user_id      TEXT PRIMARY KEY,
	role         TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);
`

// Store keeps a single connection open; SQLite serializes writers anyway and
// the mutex keeps append order equal to persisted order.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// Only the pending-pair index is unique; other constraint failures
		// are not duplicates.
		if sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return repository.ErrDuplicatePending
		}
	}
	return fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
}

const requestColumns = `id, requester_role, requester_id, target_role, target_id, category, status,
	created_date, created_time, accepted_date, accepted_time`

func (s *Store) Create(ctx context.Context, input repository.CreateRequestInput) (*models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request := models.ConnectionRequest{
		ID:            uuid.NewString(),
		RequesterRole: input.RequesterRole,
		RequesterID:   input.RequesterID,
		TargetRole:    input.TargetRole,
		TargetID:      input.TargetID,
		Category:      input.Category,
		Status:        models.RequestPending,
		CreatedDate:   input.CreatedDate,
		CreatedTime:   input.CreatedTime,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connection_requests (
			id, requester_role, requester_id, target_role, target_id, category, status, created_date, created_time
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		request.ID,
		string(request.RequesterRole),
		request.RequesterID,
		string(request.TargetRole),
		request.TargetID,
		string(request.Category),
		string(request.Status),
		request.CreatedDate,
		request.CreatedTime,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &request, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.ConnectionRequest, error) {
	var request models.ConnectionRequest
	err := s.db.GetContext(ctx, &request, `SELECT `+requestColumns+` FROM connection_requests WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err)
	}
	return &request, nil
}

func (s *Store) ListByRole(ctx context.Context, role models.Role, id string) ([]models.ConnectionRequest, error) {
	requests := make([]models.ConnectionRequest, 0)
	err := s.db.SelectContext(ctx, &requests, `
		SELECT `+requestColumns+`
		FROM connection_requests
		WHERE (requester_id = ? AND requester_role = ?)
		   OR (target_id = ? AND target_role = ?)
		ORDER BY created_date, created_time, id
	`, id, string(role), id, string(role))
	if err != nil {
		return nil, translate(err)
	}
	return requests, nil
}

func (s *Store) MarkAccepted(ctx context.Context, id string, acceptedDate string, acceptedTime string) (*models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE connection_requests
		SET status = 'accepted', accepted_date = ?, accepted_time = ?
		WHERE id = ? AND status = 'pending'
	`, acceptedDate, acceptedTime, id)
	if err != nil {
		return nil, translate(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, translate(err)
	}

	request, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, repository.ErrAlreadyAccepted
	}
	return request, nil
}

func (s *Store) HasAccepted(ctx context.Context, a string, b string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM connection_requests
			WHERE status = 'accepted'
			  AND ((requester_id = ? AND target_id = ?) OR (requester_id = ? AND target_id = ?))
		)
	`, a, b, b, a)
	if err != nil {
		return false, translate(err)
	}
	return exists, nil
}

type messageRow struct {
	ID              string `db:"id"`
	ConversationKey string `db:"conversation_key"`
	SenderRole      string `db:"sender_role"`
	SenderID        string `db:"sender_id"`
	Kind            string `db:"kind"`
	Payload         string `db:"payload"`
	SentDate        string `db:"sent_date"`
	SentTime        string `db:"sent_time"`
}

func (r messageRow) message() models.Message {
	return models.Message{
		ID:              r.ID,
		ConversationKey: r.ConversationKey,
		SenderRole:      models.Role(r.SenderRole),
		SenderID:        r.SenderID,
		Kind:            models.Kind(r.Kind),
		Data:            []byte(r.Payload),
		SentDate:        r.SentDate,
		SentTime:        r.SentTime,
	}
}

func (s *Store) Append(ctx context.Context, message models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := messageRow{
		ID:              uuid.NewString(),
		ConversationKey: message.ConversationKey,
		SenderRole:      string(message.SenderRole),
		SenderID:        message.SenderID,
		Kind:            string(message.Kind),
		Payload:         string(message.Data),
		SentDate:        message.SentDate,
		SentTime:        message.SentTime,
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO messages (id, conversation_key, sender_role, sender_id, kind, payload, sent_date, sent_time)
		VALUES (:id, :conversation_key, :sender_role, :sender_id, :kind, :payload, :sent_date, :sent_time)
	`, row)
	if err != nil {
		return nil, translate(err)
	}
	stored := row.message()
	return &stored, nil
}

func (s *Store) History(ctx context.Context, conversationKey string) ([]models.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, conversation_key, sender_role, sender_id, kind, payload, sent_date, sent_time
		FROM messages
		WHERE conversation_key = ?
		ORDER BY seq ASC
	`, conversationKey)
	if err != nil {
		return nil, translate(err)
	}

	messages := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.message())
	}
	return messages, nil
}

func (s *Store) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	query, args, err := sqlx.In(`SELECT user_id, display_name FROM profiles WHERE user_id IN (?)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("build names query: %w", err)
	}
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, name string
		if err := rows.Scan(&userID, &name); err != nil {
			return nil, translate(err)
		}
		names[userID] = name
	}
	return names, translate(rows.Err())
}

type profileRow struct {
	UserID      string `db:"user_id"`
	Role        string `db:"role"`
	DisplayName string `db:"display_name"`
	UpdatedAt   string `db:"updated_at"`
}

func (s *Store) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, role, display_name, updated_at FROM profiles WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, translate(err)
	}

	updatedAt, err := time.Parse(time.RFC3339, row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: parse updated_at: %w", repository.ErrUnavailable, err)
	}
	return &models.Profile{
		UserID:      row.UserID,
		Role:        models.Role(row.Role),
		DisplayName: row.DisplayName,
		UpdatedAt:   updatedAt,
	}, nil
}

func (s *Store) Upsert(ctx context.Context, profile models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, role, display_name)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET role = excluded.role, display_name = excluded.display_name,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
	`, profile.UserID, string(profile.Role), strings.TrimSpace(profile.DisplayName))
	return translate(err)
}
