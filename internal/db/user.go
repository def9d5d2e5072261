package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"thirdcoast.systems/edits/pkg/utils/passwords"
)

// NewUserParams contains the parameters for creating a new user
type NewUserParams struct {
	Username string
	Email    string
	Password string // plaintext password
	Role     string
}

// NewUser creates a user with a hashed password and an empty profile in one transaction.
// The first user ever registered becomes an admin unless a role is given.
func (db *DatabaseConnection) NewUser(ctx context.Context, params NewUserParams) (*User, error) {
	hashedPassword, err := passwords.NewPassword(passwords.Input{
		Password: params.Password,
	})
	if err != nil {
		return nil, err
	}

	q, tx, err := db.NewWithTX(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	role := UserRole(params.Role)
	if params.Role == "" {
		role = UserRoleUser
		n, err := q.CountUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("count users: %w", err)
		}
		if n == 0 {
			role = UserRoleAdmin
		}
	}

	user, err := q.insertUser(ctx, &insertUserParams{
		ID:       PGUUID(uuid.New()),
		Email:    params.Email,
		Password: string(hashedPassword),
		UserName: params.Username,
		Role:     role,
	})
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	if err := q.insertProfile(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit user: %w", err)
	}
	return user, nil
}

// ToggleFollow flips whether follower follows followee and reports the new state.
func (db *DatabaseConnection) ToggleFollow(ctx context.Context, follower, followee pgtype.UUID) (bool, error) {
	q, tx, err := db.NewWithTX(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	arg := &FollowParams{FollowerID: follower, FolloweeID: followee}
	removed, err := q.UnfollowUser(ctx, arg)
	if err != nil {
		return false, fmt.Errorf("unfollow: %w", err)
	}
	following := removed == 0
	if following {
		if err := q.FollowUser(ctx, arg); err != nil {
			return false, fmt.Errorf("follow: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit follow: %w", err)
	}
	return following, nil
}
