package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

type ThumbnailJobStatus string

const (
	ThumbnailJobStatusQueued     ThumbnailJobStatus = "queued"
	ThumbnailJobStatusProcessing ThumbnailJobStatus = "processing"
	ThumbnailJobStatusSucceeded  ThumbnailJobStatus = "succeeded"
	ThumbnailJobStatusFailed     ThumbnailJobStatus = "failed"
)

type User struct {
	ID        pgtype.UUID        `json:"id"`
	Email     string             `json:"email"`
	UserName  string             `json:"user_name"`
	Password  string             `json:"-"`
	Role      UserRole           `json:"role"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

type Profile struct {
	UserID    pgtype.UUID        `json:"user_id"`
	Bio       string             `json:"bio"`
	AvatarRef *string            `json:"avatar_ref"`
	UpdatedAt pgtype.Timestamptz `json:"updated_at"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Edit struct {
	ID           int64              `json:"id"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	VideoRef     string             `json:"video_ref"`
	ThumbnailRef *string            `json:"thumbnail_ref"`
	AuthorID     pgtype.UUID        `json:"author_id"`
	CategoryID   *int64             `json:"category_id"`
	ViewsCount   int64              `json:"views_count"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
	UpdatedAt    pgtype.Timestamptz `json:"updated_at"`
}

type ThumbnailJob struct {
	ID         int64              `json:"id"`
	EditID     int64              `json:"edit_id"`
	Force      bool               `json:"force"`
	Status     ThumbnailJobStatus `json:"status"`
	Attempts   int32              `json:"attempts"`
	LastError  *string            `json:"last_error"`
	CreatedAt  pgtype.Timestamptz `json:"created_at"`
	UpdatedAt  pgtype.Timestamptz `json:"updated_at"`
	StartedAt  pgtype.Timestamptz `json:"started_at"`
	FinishedAt pgtype.Timestamptz `json:"finished_at"`
}
