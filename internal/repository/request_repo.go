package repository

import (
	"context"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/google/uuid"
)

type CreateRequestInput struct {
	RequesterRole models.Role
	RequesterID   string
	TargetRole    models.Role
	TargetID      string
	Category      models.Category
	CreatedDate   string
	CreatedTime   string
}

// RequestRepository is the Postgres request ledger.
type RequestRepository struct {
	db DBTX
}

func NewRequestRepository(db DBTX) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `id, requester_role, requester_id, target_role, target_id, category, status,
	created_date, created_time, COALESCE(accepted_date, ''), COALESCE(accepted_time, '')`

func scanRequest(row interface{ Scan(dest ...any) error }) (*models.ConnectionRequest, error) {
	var request models.ConnectionRequest
	err := row.Scan(
		&request.ID,
		&request.RequesterRole,
		&request.RequesterID,
		&request.TargetRole,
		&request.TargetID,
		&request.Category,
		&request.Status,
		&request.CreatedDate,
		&request.CreatedTime,
		&request.AcceptedDate,
		&request.AcceptedTime,
	)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// Create inserts a pending request. The partial unique index on pending rows
// turns a second pending request for the same triple into ErrDuplicatePending.
func (r *RequestRepository) Create(ctx context.Context, input CreateRequestInput) (*models.ConnectionRequest, error) {
	query := `
		INSERT INTO connection_requests (
			id, requester_role, requester_id, target_role, target_id, category, status, created_date, created_time
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8)
		RETURNING ` + requestColumns

	request, err := scanRequest(r.db.QueryRow(ctx, query,
		uuid.NewString(),
		input.RequesterRole,
		input.RequesterID,
		input.TargetRole,
		input.TargetID,
		input.Category,
		input.CreatedDate,
		input.CreatedTime,
	))
	if err != nil {
		return nil, translate(err)
	}
	return request, nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.ConnectionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM connection_requests WHERE id = $1`

	request, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return request, nil
}

// ListByRole returns every request the party takes part in, on either side.
func (r *RequestRepository) ListByRole(ctx context.Context, role models.Role, id string) ([]models.ConnectionRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM connection_requests
		WHERE (requester_id = $1 AND requester_role = $2)
		   OR (target_id = $1 AND target_role = $2)
		ORDER BY created_date, created_time, id
	`

	rows, err := r.db.Query(ctx, query, id, role)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	requests := make([]models.ConnectionRequest, 0)
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, translate(err)
		}
		requests = append(requests, *request)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return requests, nil
}

// MarkAccepted is the only mutation path. The status guard in the UPDATE makes
// a concurrent or repeated accept fail with ErrAlreadyAccepted.
func (r *RequestRepository) MarkAccepted(
	ctx context.Context,
	id string,
	acceptedDate string,
	acceptedTime string,
) (*models.ConnectionRequest, error) {
	query := `
		UPDATE connection_requests
		SET status = 'accepted', accepted_date = $2, accepted_time = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + requestColumns

	request, err := scanRequest(r.db.QueryRow(ctx, query, id, acceptedDate, acceptedTime))
	if err == nil {
		return request, nil
	}
	if translated := translate(err); translated != ErrNotFound {
		return nil, translated
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrAlreadyAccepted
}

func (r *RequestRepository) HasAccepted(ctx context.Context, a string, b string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM connection_requests
			WHERE status = 'accepted'
			  AND ((requester_id = $1 AND target_id = $2) OR (requester_id = $2 AND target_id = $1))
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, a, b).Scan(&exists); err != nil {
		return false, translate(err)
	}
	return exists, nil
}
