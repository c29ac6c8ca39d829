package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iconidentify/vidvault/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(db))
	return NewSQLiteStore(db)
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))
}

func TestUsers_UpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u, err := store.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, u, "unknown user should be absent, not an error")

	until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	require.NoError(t, store.UpsertUser(ctx, &domain.User{ID: 100, Username: "alice", AccessUntil: until}))

	u, err = store.GetUser(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice", u.Username)
	assert.True(t, u.AccessUntil.Equal(until))

	later := until.Add(2 * time.Hour)
	require.NoError(t, store.UpsertUser(ctx, &domain.User{ID: 100, Username: "alice2", AccessUntil: later}))

	u, err = store.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "alice2", u.Username)
	assert.True(t, u.AccessUntil.Equal(later))
}

func TestCategories_CreateListOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Travel", "  Cooking ", "Music"} {
		_, err := store.CreateCategory(ctx, name)
		require.NoError(t, err)
	}

	cats, err := store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 3)
	assert.Equal(t, "Cooking", cats[0].Name, "names are trimmed and sorted ascending")
	assert.Equal(t, "Music", cats[1].Name)
	assert.Equal(t, "Travel", cats[2].Name)
}

func TestCategories_CreateValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateCategory(ctx, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyName)

	_, err = store.CreateCategory(ctx, "Demo")
	require.NoError(t, err)

	_, err = store.CreateCategory(ctx, "Demo")
	assert.ErrorIs(t, err, domain.ErrDuplicateCategory)
}

func TestCategories_GetMissing(t *testing.T) {
	store := newTestStore(t)

	c, err := store.GetCategory(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestCategories_DeleteCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cat, err := store.CreateCategory(ctx, "Demo")
	require.NoError(t, err)
	other, err := store.CreateCategory(ctx, "Other")
	require.NoError(t, err)

	videos := []*domain.Video{
		{Title: "B file", Kind: domain.KindFile, Location: "/v/b.mp4", CategoryID: cat.ID, ThumbnailPath: "/t/b.mp4.jpg"},
		{Title: "A link", Kind: domain.KindLink, Location: "https://example.com/a", CategoryID: cat.ID},
		{Title: "C file", Kind: domain.KindFile, Location: "/v/c.mp4", CategoryID: cat.ID},
		{Title: "Keep", Kind: domain.KindLink, Location: "https://example.com/k", CategoryID: other.ID},
	}
	for _, v := range videos {
		require.NoError(t, store.CreateVideo(ctx, v))
	}

	removed, err := store.DeleteCategory(ctx, cat.ID)
	require.NoError(t, err)
	require.Len(t, removed, 3)
	assert.Equal(t, "A link", removed[0].Title)

	gone, err := store.GetCategory(ctx, cat.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	for _, v := range videos[:3] {
		got, err := store.GetVideo(ctx, v.ID)
		require.NoError(t, err)
		assert.Nil(t, got, "video %q should be removed with its category", v.Title)
	}

	kept, err := store.ListVideos(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestCategories_DeleteUnknown(t *testing.T) {
	store := newTestStore(t)

	removed, err := store.DeleteCategory(context.Background(), 404)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestVideos_CreateGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cat, err := store.CreateCategory(ctx, "Demo")
	require.NoError(t, err)

	v := &domain.Video{Title: "Clip", Kind: domain.KindLink, Location: "https://example.com/v", CategoryID: cat.ID, ThumbnailPath: "ignored"}
	require.NoError(t, store.CreateVideo(ctx, v))
	assert.NotZero(t, v.ID)

	got, err := store.GetVideo(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.KindLink, got.Kind)
	assert.Empty(t, got.ThumbnailPath, "links never store a thumbnail")

	deleted, err := store.DeleteVideo(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, "Clip", deleted.Title)

	again, err := store.DeleteVideo(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestVideos_CreateRejectsUnknownCategory(t *testing.T) {
	store := newTestStore(t)

	err := store.CreateVideo(context.Background(), &domain.Video{
		Title: "Orphan", Kind: domain.KindLink, Location: "https://example.com", CategoryID: 77,
	})
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
}

func TestVideos_CreateRejectsEmptyTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cat, err := store.CreateCategory(ctx, "Demo")
	require.NoError(t, err)

	err = store.CreateVideo(ctx, &domain.Video{Title: " ", Kind: domain.KindLink, Location: "https://x.com", CategoryID: cat.ID})
	assert.ErrorIs(t, err, domain.ErrEmptyTitle)
}

func TestVideos_ListOrderedByTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cat, err := store.CreateCategory(ctx, "Demo")
	require.NoError(t, err)

	for _, title := range []string{"zeta", "Alpha", "beta"} {
		require.NoError(t, store.CreateVideo(ctx, &domain.Video{
			Title: title, Kind: domain.KindLink, Location: "https://example.com/" + title, CategoryID: cat.ID,
		}))
	}

	list, err := store.ListVideos(ctx, cat.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"Alpha", "beta", "zeta"}, []string{list[0].Title, list[1].Title, list[2].Title})
}

func TestReferencedPathsAndStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cat, err := store.CreateCategory(ctx, "Demo")
	require.NoError(t, err)

	require.NoError(t, store.CreateVideo(ctx, &domain.Video{Title: "f", Kind: domain.KindFile, Location: "/v/a.mp4", CategoryID: cat.ID, ThumbnailPath: "/t/a.mp4.jpg"}))
	require.NoError(t, store.CreateVideo(ctx, &domain.Video{Title: "l", Kind: domain.KindLink, Location: "https://example.com", CategoryID: cat.ID}))
	require.NoError(t, store.UpsertUser(ctx, &domain.User{ID: 1, AccessUntil: time.Now()}))

	paths, err := store.ReferencedPaths(ctx)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
	assert.Contains(t, paths, "/v/a.mp4")
	assert.Contains(t, paths, "/t/a.mp4.jpg")

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, StoreStats{Users: 1, Categories: 1, Videos: 2, Files: 1, Links: 1}, *st)
	require.NoError(t, store.Ping(ctx))
}

func TestConcurrentWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, store.UpsertUser(ctx, &domain.User{ID: id, AccessUntil: time.Now().Add(time.Hour)}))
		}(i)
	}
	wg.Wait()

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, st.Users)
}
