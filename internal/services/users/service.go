// Package users manages profiles and device registration. Profiles are
// created lazily: any authenticated caller is upserted on first write.
package users

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/quickgig/quickgig/internal/domain/user"
	"github.com/quickgig/quickgig/internal/errors"
	"github.com/quickgig/quickgig/internal/storage"
	"github.com/quickgig/quickgig/pkg/logger"
)

// Service coordinates user profiles.
type Service struct {
	users storage.UserStore
	log   *logger.Logger
}

// New creates a configured users service.
func New(users storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{users: users, log: log}
}

// Ensure upserts the caller's profile. Empty fields are left untouched on an
// existing record; the rating aggregate is never written here.
func (s *Service) Ensure(ctx context.Context, id, displayName, phone string) (user.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return user.User{}, errors.Invalid("user id is required")
	}
	u, err := s.users.EnsureUser(ctx, user.User{
		ID:          id,
		DisplayName: strings.TrimSpace(displayName),
		Phone:       strings.TrimSpace(phone),
	})
	if err != nil {
		return user.User{}, errors.Unavailable("user store unavailable", err)
	}
	return u, nil
}

// Get returns one profile with its rating aggregate.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return user.User{}, errors.NotFound("user", id)
		}
		return user.User{}, errors.Unavailable("user store unavailable", err)
	}
	return u, nil
}

// SetDeviceToken registers the push token for the caller's device. An empty
// token unregisters push delivery.
func (s *Service) SetDeviceToken(ctx context.Context, id, token string) (user.User, error) {
	u, err := s.users.SetDeviceToken(ctx, id, strings.TrimSpace(token))
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return user.User{}, errors.NotFound("user", id)
		}
		return user.User{}, errors.Unavailable("user store unavailable", err)
	}
	s.log.WithField("user_id", id).Debug("device token updated")
	return u, nil
}
