package services

import (
	"context"
	"errors"
	"strings"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"go.uber.org/zap"
)

type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	Upsert(ctx context.Context, profile models.Profile) error
}

// ProfileService maintains the display names the request listings and
// contacts resolve counterparts with.
type ProfileService struct {
	store ProfileStore
	log   *zap.Logger
}

func NewProfileService(store ProfileStore, log *zap.Logger) *ProfileService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileService{store: store, log: log}
}

// GetProfile returns the caller's profile. A caller who never set one gets an
// empty display name rather than NotFound.
func (s *ProfileService) GetProfile(ctx context.Context, actor models.Identity) (*models.Profile, error) {
	if !validIdentity(actor) {
		return nil, ErrForbidden
	}
	profile, err := s.store.GetByUserID(ctx, actor.UserID)
	if errors.Is(err, ErrNotFound) {
		return &models.Profile{UserID: actor.UserID, Role: actor.Role}, nil
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *ProfileService) UpdateDisplayName(ctx context.Context, actor models.Identity, displayName string) (*models.Profile, error) {
	if !validIdentity(actor) {
		return nil, ErrForbidden
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, ErrInvalidInput
	}

	if err := s.store.Upsert(ctx, models.Profile{
		UserID:      actor.UserID,
		Role:        actor.Role,
		DisplayName: displayName,
	}); err != nil {
		return nil, err
	}
	s.log.Info("profile updated", zap.String("user_id", actor.UserID), zap.String("role", string(actor.Role)))
	return s.store.GetByUserID(ctx, actor.UserID)
}
