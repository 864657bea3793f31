// Package rating maintains the per-user rating aggregate. Entities stay
// plain data; the running-mean rule lives here and is applied through an
// optimistic conditional write so concurrent ratings never lose a score.
package rating

import (
	"context"
	"errors"
	"fmt"

	"github.com/quickgig/quickgig/internal/domain/user"
	"github.com/quickgig/quickgig/internal/storage"
	"github.com/quickgig/quickgig/pkg/logger"
)

const maxRetries = 16

// Aggregator folds rating scores into user records.
type Aggregator struct {
	users storage.UserStore
	log   *logger.Logger
}

// New constructs an aggregator.
func New(users storage.UserStore, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.NewDefault("rating")
	}
	return &Aggregator{users: users, log: log}
}

// Apply folds one score into userID's aggregate. The caller guarantees
// at-most-once invocation per engagement slot; this method only guarantees
// the arithmetic stays exact under concurrent appliers.
func (a *Aggregator) Apply(ctx context.Context, userID string, score int) (user.User, error) {
	if score < 1 || score > 5 {
		return user.User{}, fmt.Errorf("score %d out of range [1,5]", score)
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		u, err := a.users.GetUser(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			u, err = a.users.EnsureUser(ctx, user.User{ID: userID})
		}
		if err != nil {
			return user.User{}, err
		}

		average, count := user.FoldRating(u.RatingAverage, u.RatingCount, score)
		updated, err := a.users.UpdateUserRating(ctx, userID, average, count, u.RatingCount)
		if errors.Is(err, storage.ErrStale) {
			continue
		}
		if err != nil {
			return user.User{}, err
		}

		a.log.WithField("user_id", userID).
			WithField("rating_count", updated.RatingCount).
			Debug("rating aggregate updated")
		return updated, nil
	}
	return user.User{}, fmt.Errorf("rating aggregate for user %s contended beyond %d attempts", userID, maxRetries)
}
