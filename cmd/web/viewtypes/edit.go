// Package viewtypes holds the JSON shapes the API renders.
package viewtypes

import (
	"fmt"
	"time"

	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/storage"
	"thirdcoast.systems/edits/pkg/utils/markdown"
)

const excerptLength = 140

// PlaceholderPath is served for edits that have no thumbnail yet.
func PlaceholderPath(editID int64) string {
	return fmt.Sprintf("/api/edits/%d/thumbnail", editID)
}

type Author struct {
	ID       string `json:"id"`
	UserName string `json:"user_name"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Edit struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DescriptionHTML string    `json:"description_html"`
	Excerpt         string    `json:"excerpt"`
	VideoURL        string    `json:"video_url"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	HasThumbnail    bool      `json:"has_thumbnail"`
	Author          Author    `json:"author"`
	Category        *Category `json:"category,omitempty"`
	Tags            []string  `json:"tags"`
	Views           int64     `json:"views"`
	Likes           int64     `json:"likes"`
	Liked           bool      `json:"liked"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewEdit renders row. Edits without a thumbnail point at the placeholder endpoint.
func NewEdit(row *db.EditRow, media storage.Storage) Edit {
	v := Edit{
		ID:              row.ID,
		Title:           row.Title,
		Description:     row.Description,
		DescriptionHTML: markdown.HTML(row.Description),
		Excerpt:         markdown.Excerpt(row.Description, excerptLength),
		VideoURL:        media.URL(row.VideoRef),
		ThumbnailURL:    PlaceholderPath(row.ID),
		Author:          Author{ID: row.AuthorID.String(), UserName: row.AuthorName},
		Tags:            row.Tags,
		Views:           row.ViewsCount,
		Likes:           row.LikeCount,
		Liked:           row.Liked,
		CreatedAt:       row.CreatedAt.Time,
		UpdatedAt:       row.UpdatedAt.Time,
	}
	if row.ThumbnailRef != nil && *row.ThumbnailRef != "" {
		v.ThumbnailURL = media.URL(*row.ThumbnailRef)
		v.HasThumbnail = true
	}
	if row.CategoryID != nil && row.CategorySlug != nil {
		v.Category = &Category{ID: *row.CategoryID, Slug: *row.CategorySlug}
		if row.CategoryName != nil {
			v.Category.Name = *row.CategoryName
		}
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
	return v
}

func NewEdits(rows []*db.EditRow, media storage.Storage) []Edit {
	out := make([]Edit, 0, len(rows))
	for _, row := range rows {
		out = append(out, NewEdit(row, media))
	}
	return out
}

// Page wraps a list with the paging that produced it.
type Page[T any] struct {
	Items  []T   `json:"items"`
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

type Profile struct {
	ID         string    `json:"id"`
	UserName   string    `json:"user_name"`
	Bio        string    `json:"bio"`
	BioHTML    string    `json:"bio_html"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	TotalViews int64     `json:"total_views"`
	TotalLikes int64     `json:"total_likes"`
	Followers  int64     `json:"followers"`
	Following  int64     `json:"following"`
	IsFollowed bool      `json:"is_followed"`
	IsSelf     bool      `json:"is_self"`
	JoinedAt   time.Time `json:"joined_at"`
	Edits      []Edit    `json:"edits"`
	Liked      []Edit    `json:"liked"`
}

func NewProfile(user *db.User, profile *db.Profile, stats *db.ProfileStats, media storage.Storage) Profile {
	p := Profile{
		ID:       user.ID.String(),
		UserName: user.UserName,
		JoinedAt: user.CreatedAt.Time,
		Edits:    []Edit{},
		Liked:    []Edit{},
	}
	if profile != nil {
		p.Bio = profile.Bio
		p.BioHTML = markdown.HTML(profile.Bio)
		if profile.AvatarRef != nil && *profile.AvatarRef != "" {
			p.AvatarURL = media.URL(*profile.AvatarRef)
		}
	}
	if stats != nil {
		p.TotalViews = stats.TotalViews
		p.TotalLikes = stats.TotalLikes
		p.Followers = stats.Followers
		p.Following = stats.Following
		p.IsFollowed = stats.IsFollowed
	}
	return p
}
