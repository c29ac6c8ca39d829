package repository

import (
	"context"

	"github.com/iconidentify/vidvault/internal/domain"
)

// UserRepository handles access grants.
type UserRepository interface {
	// GetUser retrieves a user by Telegram id. Returns nil, nil when absent.
	GetUser(ctx context.Context, id int64) (*domain.User, error)

	// UpsertUser creates the user or replaces its username and access window.
	UpsertUser(ctx context.Context, user *domain.User) error
}

// CategoryRepository handles category persistence.
type CategoryRepository interface {
	// ListCategories returns all categories ordered by name.
	ListCategories(ctx context.Context) ([]domain.Category, error)

	// GetCategory retrieves a category by id. Returns nil, nil when absent.
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)

	// CreateCategory inserts a category. Duplicate names yield domain.ErrDuplicateCategory.
	CreateCategory(ctx context.Context, name string) (*domain.Category, error)

	// DeleteCategory removes a category and all of its videos in one transaction
	// and returns the removed videos so their files can be cleaned up.
	DeleteCategory(ctx context.Context, id int64) ([]domain.Video, error)
}

// VideoRepository handles video row persistence. Files live on disk and are
// managed by the media pipeline.
type VideoRepository interface {
	// CreateVideo inserts a video and sets its id.
	CreateVideo(ctx context.Context, video *domain.Video) error

	// GetVideo retrieves a video by id. Returns nil, nil when absent.
	GetVideo(ctx context.Context, id int64) (*domain.Video, error)

	// ListVideos returns the videos of a category ordered by title.
	ListVideos(ctx context.Context, categoryID int64) ([]domain.Video, error)

	// DeleteVideo removes a video row and returns it. Returns nil, nil when absent.
	DeleteVideo(ctx context.Context, id int64) (*domain.Video, error)

	// ReferencedPaths returns every video and thumbnail path stored for file videos.
	ReferencedPaths(ctx context.Context) (map[string]struct{}, error)
}

// Store is the full persistence surface used by the bot.
type Store interface {
	UserRepository
	CategoryRepository
	VideoRepository

	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error

	// Stats returns archive totals.
	Stats(ctx context.Context) (*StoreStats, error)
}

// StoreStats contains archive totals.
type StoreStats struct {
	Users      int
	Categories int
	Videos     int
	Files      int
	Links      int
}
