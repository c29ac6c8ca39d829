// Package access decides who may use the bot. The admin is always authorized;
// everyone else needs a current grant obtained with the shared password.
package access

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/iconidentify/vidvault/internal/domain"
	"github.com/iconidentify/vidvault/internal/repository"
)

// maxTrackedLimiters bounds the per-user limiter cache.
const maxTrackedLimiters = 10000

// Config holds gate configuration.
type Config struct {
	AdminID       int64
	Password      string
	Timeout       time.Duration
	AdminDuration time.Duration
	AttemptRate   float64
	AttemptBurst  int
}

// Gate checks and grants access.
type Gate struct {
	users         repository.UserRepository
	adminID       int64
	password      []byte
	hashed        bool
	timeout       time.Duration
	adminDuration time.Duration
	limiters      *limiterCache[int64]
	now           func() time.Time
	logger        *slog.Logger
}

// NewGate creates a new access gate.
func NewGate(cfg Config, users repository.UserRepository, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Hour
	}
	if cfg.AdminDuration <= 0 {
		cfg.AdminDuration = 100 * 365 * 24 * time.Hour
	}
	if cfg.AttemptRate <= 0 {
		cfg.AttemptRate = 0.2
	}
	if cfg.AttemptBurst <= 0 {
		cfg.AttemptBurst = 5
	}

	return &Gate{
		users:         users,
		adminID:       cfg.AdminID,
		password:      []byte(cfg.Password),
		hashed:        isBcryptHash(cfg.Password),
		timeout:       cfg.Timeout,
		adminDuration: cfg.AdminDuration,
		limiters:      newLimiterCache[int64](cfg.AttemptRate, cfg.AttemptBurst),
		now:           time.Now,
		logger:        logger,
	}
}

// SetClock replaces the time source. Used by tests.
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

// IsAdmin reports whether userID is the configured admin.
func (g *Gate) IsAdmin(userID int64) bool {
	return userID == g.adminID
}

// IsAuthorized reports whether userID may use the bot right now.
// A store failure returns false together with the error.
func (g *Gate) IsAuthorized(ctx context.Context, userID int64) (bool, error) {
	if g.IsAdmin(userID) {
		return true, nil
	}
	u, err := g.users.GetUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check access: %w", err)
	}
	return u.Active(g.now()), nil
}

// GrantAccess sets the user's access window to now+d and returns its end.
func (g *Gate) GrantAccess(ctx context.Context, userID int64, username string, d time.Duration) (time.Time, error) {
	until := g.now().Add(d)
	if err := g.users.UpsertUser(ctx, &domain.User{ID: userID, Username: username, AccessUntil: until}); err != nil {
		return time.Time{}, fmt.Errorf("grant access: %w", err)
	}
	g.logger.Info("access granted", "user_id", userID, "until", until)
	return until, nil
}

// GrantAdmin records the admin with a long-lived grant. It reports false for non-admins.
func (g *Gate) GrantAdmin(ctx context.Context, userID int64, username string) (bool, error) {
	if !g.IsAdmin(userID) {
		return false, nil
	}
	if _, err := g.GrantAccess(ctx, userID, username, g.adminDuration); err != nil {
		return false, err
	}
	return true, nil
}

// CheckPassword verifies a password attempt exactly as typed, surrounding
// whitespace included. Attempts are throttled per user;
// a throttled attempt returns domain.ErrRateLimited without being evaluated.
func (g *Gate) CheckPassword(userID int64, input string) error {
	if g.limiters.clearIfExceeds(maxTrackedLimiters) {
		g.logger.Debug("password limiter cache reset")
	}
	if !g.limiters.get(userID).AllowN(g.now(), 1) {
		return domain.ErrRateLimited
	}

	if g.hashed {
		if bcrypt.CompareHashAndPassword(g.password, []byte(input)) != nil {
			return domain.ErrAccessDenied
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(input), g.password) != 1 {
		return domain.ErrAccessDenied
	}
	return nil
}

// Login checks the password and, on success, grants the default access duration.
func (g *Gate) Login(ctx context.Context, userID int64, username, input string) (time.Time, error) {
	if err := g.CheckPassword(userID, input); err != nil {
		g.logger.Info("password rejected", "user_id", userID, "error", err)
		return time.Time{}, err
	}
	return g.GrantAccess(ctx, userID, username, g.timeout)
}

// Timeout returns the default access duration granted by Login.
func (g *Gate) Timeout() time.Duration {
	return g.timeout
}

func isBcryptHash(s string) bool {
	if !strings.HasPrefix(s, "$2a$") && !strings.HasPrefix(s, "$2b$") && !strings.HasPrefix(s, "$2y$") {
		return false
	}
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// limiterCache keeps one rate limiter per key.
type limiterCache[K comparable] struct {
	limiters map[K]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

func newLimiterCache[K comparable](rps float64, burst int) *limiterCache[K] {
	return &limiterCache[K]{
		limiters: make(map[K]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (lc *limiterCache[K]) get(key K) *rate.Limiter {
	lc.mu.RLock()
	limiter, exists := lc.limiters[key]
	lc.mu.RUnlock()

	if exists {
		return limiter
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	if limiter, exists = lc.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(lc.rate, lc.burst)
	lc.limiters[key] = limiter
	return limiter
}

// clearIfExceeds drops every limiter once the cache grows past maxSize.
func (lc *limiterCache[K]) clearIfExceeds(maxSize int) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if len(lc.limiters) > maxSize {
		lc.limiters = make(map[K]*rate.Limiter)
		return true
	}
	return false
}
