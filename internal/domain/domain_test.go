package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// =============================================================================
// URL Tests
// =============================================================================

func TestIsValidURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"bare word", "test", true},
		{"too short host", "a.b", false},
		{"full https", "https://x.com", true},
		{"full http", "http://example.com/watch?v=1", true},
		{"bare domain", "youtube.com/watch", true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"scheme only", "https://", false},
		{"three chars", "abc", false},
		{"padded", "  test  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidURL(tt.input); got != tt.want {
				t.Errorf("IsValidURL(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"example.com", "https://example.com"},
		{"http://example.com", "http://example.com"},
		{"HTTPS://Example.com", "HTTPS://Example.com"},
		{" vimeo.com/1 ", "https://vimeo.com/1"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeURL(tt.input); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://www.youtube.com/watch?v=abc", "YouTube"},
		{"youtu.be/abc", "YouTube"},
		{"https://m.youtube.com/shorts/x", "YouTube"},
		{"https://vimeo.com/123", "Vimeo"},
		{"https://x.com/user/status/1", "X"},
		{"https://example.com/v", ""},
		{"test", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := DetectPlatform(tt.input); got != tt.want {
				t.Errorf("DetectPlatform(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Entity Tests
// =============================================================================

func TestUser_Active(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		user *User
		want bool
	}{
		{"nil user", nil, false},
		{"future grant", &User{AccessUntil: now.Add(time.Minute)}, true},
		{"expired grant", &User{AccessUntil: now.Add(-time.Minute)}, false},
		{"expires exactly now", &User{AccessUntil: now}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.Active(now); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVideo_Validate(t *testing.T) {
	tests := []struct {
		name    string
		video   Video
		wantErr error
	}{
		{"valid link", Video{Title: "Clip", Kind: KindLink, Location: "https://example.com/v"}, nil},
		{"valid file", Video{Title: "Clip", Kind: KindFile, Location: "/data/videos/a.mp4"}, nil},
		{"blank title", Video{Title: "  ", Kind: KindLink, Location: "https://example.com"}, ErrEmptyTitle},
		{"unknown kind", Video{Title: "Clip", Kind: "photo", Location: "x"}, ErrInvalidMediaType},
		{"no location", Video{Title: "Clip", Kind: KindLink}, ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.video.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVideo_HasThumbnail(t *testing.T) {
	file := &Video{Kind: KindFile, ThumbnailPath: "/t/a.mp4.jpg"}
	if !file.HasThumbnail() {
		t.Error("file with thumbnail path should report a thumbnail")
	}
	link := &Video{Kind: KindLink, ThumbnailPath: "/t/a.jpg"}
	if link.HasThumbnail() {
		t.Error("links never have thumbnails")
	}
}

// =============================================================================
// Media Tests
// =============================================================================

func TestDocument_IsVideo(t *testing.T) {
	tests := []struct {
		mime string
		want bool
	}{
		{"video/mp4", true},
		{"VIDEO/quicktime", true},
		{"image/jpeg", false},
		{"application/octet-stream", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			if got := (Document{MimeType: tt.mime}).IsVideo(); got != tt.want {
				t.Errorf("IsVideo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMediaKind(t *testing.T) {
	if got := MediaKind(nil); got != "none" {
		t.Errorf("MediaKind(nil) = %q", got)
	}
	if got := MediaKind(Document{}); got != "document" {
		t.Errorf("MediaKind(Document) = %q", got)
	}
	if got := MediaKind(LinkPreview{}); got != "link_preview" {
		t.Errorf("MediaKind(LinkPreview) = %q", got)
	}
	if got := MediaKind(Unsupported{}); got != "unsupported" {
		t.Errorf("MediaKind(Unsupported) = %q", got)
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestOpError(t *testing.T) {
	err := NewOpError("delete category", 7, ErrCategoryNotFound)

	if got, want := err.Error(), "delete category [7]: category not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Error("OpError should unwrap to its cause")
	}

	noID := NewOpError("list categories", 0, errors.New("boom"))
	if got, want := noID.Error(), "list categories: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorClasses(t *testing.T) {
	wrapped := fmt.Errorf("create category: %w", ErrDuplicateCategory)
	if !IsValidation(wrapped) {
		t.Error("duplicate category should be a validation error")
	}
	if IsValidation(ErrDownloadFailed) {
		t.Error("download failure is not a validation error")
	}
	if !IsValidation(NewOpError("ingest", 3, ErrFileTooLarge)) {
		t.Error("wrapped oversize file should be a validation error")
	}
	if !IsPipeline(fmt.Errorf("thumbnail: %w", ErrEmptyVideo)) {
		t.Error("empty video is a pipeline error")
	}
}
