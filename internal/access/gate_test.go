package access

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iconidentify/vidvault/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockUserRepository implements repository.UserRepository for testing.
type mockUserRepository struct {
	mu     sync.Mutex
	users  map[int64]domain.User
	getErr error
	putErr error
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[int64]domain.User)}
}

func (m *mockUserRepository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *mockUserRepository) UpsertUser(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.users[user.ID] = *user
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGate(repo *mockUserRepository, password string) (*Gate, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	g := NewGate(Config{
		AdminID:      1,
		Password:     password,
		Timeout:      time.Hour,
		AttemptRate:  1,
		AttemptBurst: 3,
	}, repo, testLogger())
	g.SetClock(clock.Now)
	return g, clock
}

func TestGate_AdminAlwaysAuthorized(t *testing.T) {
	repo := newMockUserRepository()
	repo.getErr = errors.New("database is locked")
	g, clock := newTestGate(repo, "secret")

	for i := 0; i < 3; i++ {
		ok, err := g.IsAuthorized(context.Background(), 1)
		if err != nil || !ok {
			t.Fatalf("admin IsAuthorized = %v, %v; want true, nil", ok, err)
		}
		clock.Advance(200 * 365 * 24 * time.Hour)
	}
}

func TestGate_ExpiryIsMonotonic(t *testing.T) {
	repo := newMockUserRepository()
	g, clock := newTestGate(repo, "secret")
	ctx := context.Background()

	first, err := g.GrantAccess(ctx, 50, "bob", time.Hour)
	if err != nil {
		t.Fatalf("GrantAccess failed: %v", err)
	}
	clock.Advance(10 * time.Minute)
	second, err := g.GrantAccess(ctx, 50, "bob", time.Hour)
	if err != nil {
		t.Fatalf("GrantAccess failed: %v", err)
	}
	if !second.After(first) {
		t.Errorf("second grant %v should end after first %v", second, first)
	}
}

func TestGate_AuthorizationWindow(t *testing.T) {
	repo := newMockUserRepository()
	g, clock := newTestGate(repo, "secret")
	ctx := context.Background()

	ok, err := g.IsAuthorized(ctx, 50)
	if err != nil || ok {
		t.Fatalf("unknown user IsAuthorized = %v, %v; want false, nil", ok, err)
	}

	if _, err := g.GrantAccess(ctx, 50, "bob", time.Hour); err != nil {
		t.Fatalf("GrantAccess failed: %v", err)
	}

	clock.Advance(59 * time.Minute)
	if ok, _ := g.IsAuthorized(ctx, 50); !ok {
		t.Error("user should be authorized inside the window")
	}

	clock.Advance(2 * time.Minute)
	if ok, _ := g.IsAuthorized(ctx, 50); ok {
		t.Error("user should be unauthorized after the window")
	}
}

func TestGate_IsAuthorized_StoreError(t *testing.T) {
	repo := newMockUserRepository()
	repo.getErr = errors.New("disk I/O error")
	g, _ := newTestGate(repo, "secret")

	ok, err := g.IsAuthorized(context.Background(), 50)
	if ok {
		t.Error("store failure must not authorize")
	}
	if err == nil {
		t.Error("store failure should be reported")
	}
}

func TestGate_GrantAdmin(t *testing.T) {
	repo := newMockUserRepository()
	g, clock := newTestGate(repo, "secret")
	ctx := context.Background()

	ok, err := g.GrantAdmin(ctx, 50, "bob")
	if err != nil || ok {
		t.Fatalf("GrantAdmin(non-admin) = %v, %v; want false, nil", ok, err)
	}

	ok, err = g.GrantAdmin(ctx, 1, "root")
	if err != nil || !ok {
		t.Fatalf("GrantAdmin(admin) = %v, %v; want true, nil", ok, err)
	}
	u := repo.users[1]
	if u.AccessUntil.Sub(clock.Now()) < 99*365*24*time.Hour {
		t.Errorf("admin grant too short: until %v", u.AccessUntil)
	}
}

func TestGate_Login(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"correct", "secret", nil},
		{"trailing space", "secret ", domain.ErrAccessDenied},
		{"surrounding whitespace", "  secret\n", domain.ErrAccessDenied},
		{"wrong", "guess", domain.ErrAccessDenied},
		{"empty", "", domain.ErrAccessDenied},
		{"prefix", "secre", domain.ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockUserRepository()
			g, clock := newTestGate(repo, "secret")

			until, err := g.Login(context.Background(), 50, "bob", tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if _, ok := repo.users[50]; ok {
					t.Error("rejected login must not create a grant")
				}
				return
			}
			if want := clock.Now().Add(time.Hour); !until.Equal(want) {
				t.Errorf("until = %v, want %v", until, want)
			}
		})
	}
}

func TestGate_PasswordWithSpacesMatchesExactly(t *testing.T) {
	g, _ := newTestGate(newMockUserRepository(), " pass phrase ")

	if err := g.CheckPassword(50, " pass phrase "); err != nil {
		t.Errorf("exact input rejected: %v", err)
	}
	if err := g.CheckPassword(51, "pass phrase"); !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("trimmed input err = %v, want ErrAccessDenied", err)
	}
}

func TestGate_CheckPassword_RateLimited(t *testing.T) {
	g, clock := newTestGate(newMockUserRepository(), "secret")

	for i := 0; i < 3; i++ {
		if err := g.CheckPassword(50, "wrong"); !errors.Is(err, domain.ErrAccessDenied) {
			t.Fatalf("attempt %d: err = %v, want ErrAccessDenied", i, err)
		}
	}
	if err := g.CheckPassword(50, "secret"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("burst exhausted: err = %v, want ErrRateLimited", err)
	}

	// Other users keep their own budget.
	if err := g.CheckPassword(51, "secret"); err != nil {
		t.Errorf("other user should not be throttled: %v", err)
	}

	clock.Advance(2 * time.Second)
	if err := g.CheckPassword(50, "secret"); err != nil {
		t.Errorf("after refill: err = %v, want nil", err)
	}
}

func TestGate_BcryptPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	g, _ := newTestGate(newMockUserRepository(), string(hash))

	if !g.hashed {
		t.Fatal("bcrypt hash should be detected")
	}
	if err := g.CheckPassword(50, "hunter2"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := g.CheckPassword(50, string(hash)); !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("hash itself must not be accepted as password, got %v", err)
	}
}

func TestIsBcryptHash(t *testing.T) {
	if isBcryptHash("secret") {
		t.Error("plain password detected as hash")
	}
	if isBcryptHash("$2a$nonsense") {
		t.Error("malformed hash detected as hash")
	}
}

func TestLimiterCache_ClearIfExceeds(t *testing.T) {
	lc := newLimiterCache[int64](1, 1)
	for i := int64(0); i < 5; i++ {
		lc.get(i)
	}
	if lc.clearIfExceeds(10) {
		t.Error("cache under limit should not be cleared")
	}
	if !lc.clearIfExceeds(3) {
		t.Error("cache over limit should be cleared")
	}
	if len(lc.limiters) != 0 {
		t.Errorf("limiters = %d, want 0", len(lc.limiters))
	}
}
