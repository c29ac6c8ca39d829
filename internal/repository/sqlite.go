package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/iconidentify/vidvault/internal/domain"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open opens the SQLite database at path, creating its directory if needed.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// foreign_keys and busy_timeout are per-connection, so they go in the DSN.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

// Migrate runs all pending database migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by id.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var (
		u     domain.User
		until int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, access_until FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &until)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.AccessUntil = time.UnixMilli(until)
	return &u, nil
}

// UpsertUser creates or replaces a user's access window.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, access_until) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			access_until = excluded.access_until`,
		user.ID, user.Username, user.AccessUntil.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// ListCategories returns all categories ordered by name.
func (s *SQLiteStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCategory retrieves a category by id.
func (s *SQLiteStore) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// CreateCategory inserts a category with a trimmed, non-empty name.
func (s *SQLiteStore) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	name = domain.NormalizeName(name)
	if name == "" {
		return nil, domain.ErrEmptyName
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO categories (name) VALUES (?)`, name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateCategory
		}
		return nil, fmt.Errorf("create category: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &domain.Category{ID: id, Name: name}, nil
}

// DeleteCategory removes a category and its videos atomically and returns the
// removed videos. An unknown id removes nothing and returns an empty slice.
func (s *SQLiteStore) DeleteCategory(ctx context.Context, id int64) ([]domain.Video, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete category: %w", err)
	}
	defer tx.Rollback()

	videos, err := queryVideos(ctx, tx, `
		SELECT id, title, type, path_or_url, category_id, thumbnail_path
		FROM videos WHERE category_id = ? ORDER BY title ASC`, id)
	if err != nil {
		return nil, err
	}

	// Explicit delete keeps the invariant even on a connection without foreign keys.
	if _, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE category_id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete category videos: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete category: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete category: %w", err)
	}
	if videos == nil {
		videos = []domain.Video{}
	}
	return videos, nil
}

// CreateVideo inserts a video row and sets video.ID.
func (s *SQLiteStore) CreateVideo(ctx context.Context, video *domain.Video) error {
	video.Title = domain.NormalizeName(video.Title)
	if err := video.Validate(); err != nil {
		return err
	}

	var thumb sql.NullString
	if video.Kind == domain.KindFile && video.ThumbnailPath != "" {
		thumb = sql.NullString{String: video.ThumbnailPath, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO videos (title, type, path_or_url, category_id, thumbnail_path)
		VALUES (?, ?, ?, ?, ?)`,
		video.Title, string(video.Kind), video.Location, video.CategoryID, thumb,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewOpError("create video", video.CategoryID, domain.ErrCategoryNotFound)
		}
		return fmt.Errorf("create video: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create video: %w", err)
	}
	video.ID = id
	return nil
}

// GetVideo retrieves a video by id.
func (s *SQLiteStore) GetVideo(ctx context.Context, id int64) (*domain.Video, error) {
	videos, err := queryVideos(ctx, s.db, `
		SELECT id, title, type, path_or_url, category_id, thumbnail_path
		FROM videos WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, nil
	}
	return &videos[0], nil
}

// ListVideos returns a category's videos ordered by title.
func (s *SQLiteStore) ListVideos(ctx context.Context, categoryID int64) ([]domain.Video, error) {
	return queryVideos(ctx, s.db, `
		SELECT id, title, type, path_or_url, category_id, thumbnail_path
		FROM videos WHERE category_id = ? ORDER BY title ASC`, categoryID)
}

// DeleteVideo removes a video row and returns what was removed.
func (s *SQLiteStore) DeleteVideo(ctx context.Context, id int64) (*domain.Video, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete video: %w", err)
	}
	defer tx.Rollback()

	videos, err := queryVideos(ctx, tx, `
		SELECT id, title, type, path_or_url, category_id, thumbnail_path
		FROM videos WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete video: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete video: %w", err)
	}
	return &videos[0], nil
}

// ReferencedPaths returns the set of file paths owned by video rows.
func (s *SQLiteStore) ReferencedPaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path_or_url, thumbnail_path FROM videos WHERE type = ?`, string(domain.KindFile))
	if err != nil {
		return nil, fmt.Errorf("list referenced paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var (
			path  string
			thumb sql.NullString
		)
		if err := rows.Scan(&path, &thumb); err != nil {
			return nil, fmt.Errorf("scan referenced path: %w", err)
		}
		paths[filepath.Clean(path)] = struct{}{}
		if thumb.Valid && thumb.String != "" {
			paths[filepath.Clean(thumb.String)] = struct{}{}
		}
	}
	return paths, rows.Err()
}

// Stats returns archive totals.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	var st StoreStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM categories),
			(SELECT COUNT(*) FROM videos),
			(SELECT COUNT(*) FROM videos WHERE type = 'file'),
			(SELECT COUNT(*) FROM videos WHERE type = 'link')`,
	).Scan(&st.Users, &st.Categories, &st.Videos, &st.Files, &st.Links)
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}
	return &st, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryVideos(ctx context.Context, q queryer, query string, args ...any) ([]domain.Video, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var out []domain.Video
	for rows.Next() {
		var (
			v     domain.Video
			kind  string
			thumb sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.Title, &kind, &v.Location, &v.CategoryID, &thumb); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		v.Kind = domain.VideoKind(kind)
		if thumb.Valid {
			v.ThumbnailPath = thumb.String
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
