package service

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// UserResolver finds or creates the local user record for an email address.
type UserResolver struct {
	store  store.Store
	logger *zap.Logger
}

// NewUserResolver creates a new user resolver
func NewUserResolver(st store.Store) *UserResolver {
	return &UserResolver{
		store:  st,
		logger: util.GetLogger(),
	}
}

// Resolve returns the user id for an email, creating the user if absent.
// An empty email means a guest order and resolves to nil. A concurrent
// create for the same email loses with a uniqueness conflict and falls back
// to re-reading the winner's row, so callers never see the race.
func (r *UserResolver) Resolve(ctx context.Context, email string) (*int64, error) {
	if email == "" {
		return nil, nil
	}

	user, err := r.store.GetUserByEmail(ctx, email)
	if err == nil {
		return &user.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	newUser := &models.User{Email: email}
	err = r.store.CreateUser(ctx, newUser)
	if err == nil {
		r.logger.Info("Created user", zap.Int64("user_id", newUser.ID), zap.String("email", email))
		return &newUser.ID, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Lost the insert race; the row exists now.
	user, err = r.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read user after conflict: %w", err)
	}
	return &user.ID, nil
}
