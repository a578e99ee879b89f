package repository

import (
	"context"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
)

// ProfileRepository reads display names maintained by the profile service.
type ProfileRepository struct {
	db DBTX
}

func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	query := `
		SELECT user_id, role, display_name, updated_at
		FROM profiles
		WHERE user_id = $1
	`

	var profile models.Profile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.Role,
		&profile.DisplayName,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &profile, nil
}

// DisplayNames resolves names for many users at once; unknown ids are omitted.
func (r *ProfileRepository) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT user_id, display_name
		FROM profiles
		WHERE user_id = ANY($1)
	`, userIDs)
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
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return names, nil
}

func (r *ProfileRepository) Upsert(ctx context.Context, profile models.Profile) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO profiles (user_id, role, display_name, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET role = EXCLUDED.role, display_name = EXCLUDED.display_name, updated_at = NOW()
	`, profile.UserID, profile.Role, profile.DisplayName)
	return translate(err)
}
