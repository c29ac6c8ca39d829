package domain

import (
	"strings"
	"time"
)

// VideoKind distinguishes stored files from external links.
type VideoKind string

const (
	KindFile VideoKind = "file"
	KindLink VideoKind = "link"
)

// Valid reports whether k is a known kind.
func (k VideoKind) Valid() bool {
	return k == KindFile || k == KindLink
}

// User is a bot user with a time-bounded access grant.
type User struct {
	ID          int64
	Username    string
	AccessUntil time.Time
}

// Active reports whether the user's grant is still valid at now.
func (u *User) Active(now time.Time) bool {
	return u != nil && u.AccessUntil.After(now)
}

// Category groups videos. Names are unique.
type Category struct {
	ID   int64
	Name string
}

// Video is an archived video, either a file on disk or an external link.
type Video struct {
	ID            int64
	Title         string
	Kind          VideoKind
	Location      string // filesystem path for KindFile, URL for KindLink
	CategoryID    int64
	ThumbnailPath string
}

// HasThumbnail reports whether a thumbnail was produced for the video.
func (v *Video) HasThumbnail() bool {
	return v.Kind == KindFile && v.ThumbnailPath != ""
}

// Validate checks the fields required before a video is persisted.
func (v *Video) Validate() error {
	if strings.TrimSpace(v.Title) == "" {
		return ErrEmptyTitle
	}
	if !v.Kind.Valid() {
		return ErrInvalidMediaType
	}
	if v.Location == "" {
		return ErrInvalidURL
	}
	return nil
}

// NormalizeName trims surrounding whitespace from a category name or video title.
func NormalizeName(s string) string {
	return strings.TrimSpace(s)
}
