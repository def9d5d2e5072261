package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, email, user_name, password, role, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.UserName,
		&i.Password,
		&i.Role,
		&i.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

const insertUser = `INSERT INTO users (id, email, user_name, password, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns

type insertUserParams struct {
	ID       pgtype.UUID
	Email    string
	Password string
	UserName string
	Role     UserRole
}

func (q *Queries) insertUser(ctx context.Context, arg *insertUserParams) (*User, error) {
	row := q.db.QueryRow(ctx, insertUser,
		arg.ID,
		arg.Email,
		arg.UserName,
		arg.Password,
		arg.Role,
	)
	return scanUser(row)
}

const countUsers = `SELECT count(*) FROM users`

func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countUsers).Scan(&n)
	return n, err
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id pgtype.UUID) (*User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}

const getUserByUserName = `SELECT ` + userColumns + ` FROM users WHERE lower(user_name) = lower($1)`

func (q *Queries) GetUserByUserName(ctx context.Context, userName string) (*User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByUserName, userName))
}

const getUserByLogin = `SELECT ` + userColumns + ` FROM users
WHERE lower(user_name) = lower($1) OR lower(email) = lower($1)
ORDER BY (lower(user_name) = lower($1)) DESC
LIMIT 1`

// GetUserByLogin matches a username or an email address, preferring the username.
func (q *Queries) GetUserByLogin(ctx context.Context, login string) (*User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByLogin, login))
}

const insertProfile = `INSERT INTO profiles (user_id) VALUES ($1)
ON CONFLICT (user_id) DO NOTHING`

func (q *Queries) insertProfile(ctx context.Context, userID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, insertProfile, userID)
	return err
}

const getProfile = `SELECT user_id, bio, avatar_ref, updated_at FROM profiles WHERE user_id = $1`

func (q *Queries) GetProfile(ctx context.Context, userID pgtype.UUID) (*Profile, error) {
	var i Profile
	err := q.db.QueryRow(ctx, getProfile, userID).Scan(
		&i.UserID,
		&i.Bio,
		&i.AvatarRef,
		&i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

const updateProfile = `UPDATE profiles
SET bio = $2,
    avatar_ref = COALESCE($3, avatar_ref),
    updated_at = now()
WHERE user_id = $1
RETURNING user_id, bio, avatar_ref, updated_at`

type UpdateProfileParams struct {
	UserID pgtype.UUID
	Bio    string
	// AvatarRef leaves the current avatar untouched when nil.
	AvatarRef *string
}

func (q *Queries) UpdateProfile(ctx context.Context, arg *UpdateProfileParams) (*Profile, error) {
	var i Profile
	err := q.db.QueryRow(ctx, updateProfile, arg.UserID, arg.Bio, arg.AvatarRef).Scan(
		&i.UserID,
		&i.Bio,
		&i.AvatarRef,
		&i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

const getProfileStats = `SELECT
    COALESCE((SELECT sum(views_count) FROM edits WHERE author_id = $1), 0)::bigint AS total_views,
    (SELECT count(*) FROM edit_likes l JOIN edits e ON e.id = l.edit_id WHERE e.author_id = $1) AS total_likes,
    (SELECT count(*) FROM follows WHERE followee_id = $1) AS followers,
    (SELECT count(*) FROM follows WHERE follower_id = $1) AS following,
    EXISTS (SELECT 1 FROM follows WHERE follower_id = $2::uuid AND followee_id = $1) AS is_followed`

type GetProfileStatsParams struct {
	UserID pgtype.UUID
	// ViewerID is invalid for anonymous viewers.
	ViewerID pgtype.UUID
}

type ProfileStats struct {
	TotalViews int64 `json:"total_views"`
	TotalLikes int64 `json:"total_likes"`
	Followers  int64 `json:"followers"`
	Following  int64 `json:"following"`
	IsFollowed bool  `json:"is_followed"`
}

func (q *Queries) GetProfileStats(ctx context.Context, arg *GetProfileStatsParams) (*ProfileStats, error) {
	var i ProfileStats
	err := q.db.QueryRow(ctx, getProfileStats, arg.UserID, arg.ViewerID).Scan(
		&i.TotalViews,
		&i.TotalLikes,
		&i.Followers,
		&i.Following,
		&i.IsFollowed,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}
