package domain

import (
	"errors"
	"strconv"
)

// Domain errors.
var (
	// ErrCategoryNotFound is returned when a category id does not resolve.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrEmptyName is returned when a category name is blank.
	ErrEmptyName = errors.New("category name cannot be empty")

	// ErrEmptyTitle is returned when a video title is blank.
	ErrEmptyTitle = errors.New("video title cannot be empty")

	// ErrDuplicateCategory is returned when a category with the same name already exists.
	ErrDuplicateCategory = errors.New("category with this name already exists")

	// ErrInvalidURL is returned when a link does not pass URL validation.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrInvalidMediaType is returned when an attachment is not a video.
	ErrInvalidMediaType = errors.New("attachment is not a video")

	// ErrFileTooLarge is returned when an attachment exceeds the download limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrDownloadFailed is returned when the video download fails.
	ErrDownloadFailed = errors.New("video download failed")

	// ErrStorageFull is returned when there is insufficient storage space.
	ErrStorageFull = errors.New("insufficient storage space")

	// ErrEmptyVideo is returned when a video reports zero frames.
	ErrEmptyVideo = errors.New("video has no frames")

	// ErrFrameRead is returned when the sampled frame cannot be decoded.
	ErrFrameRead = errors.New("failed to read video frame")

	// ErrAccessDenied is returned when the access password does not match.
	ErrAccessDenied = errors.New("access denied")

	// ErrRateLimited is returned when a user exceeds the password attempt rate.
	ErrRateLimited = errors.New("rate limited")
)

// OpError wraps an error with the operation that produced it.
type OpError struct {
	Op  string
	ID  int64
	Err error
}

func (e *OpError) Error() string {
	if e.ID != 0 {
		return e.Op + " [" + strconv.FormatInt(e.ID, 10) + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError creates a new OpError.
func NewOpError(op string, id int64, err error) *OpError {
	return &OpError{
		Op:  op,
		ID:  id,
		Err: err,
	}
}

// IsValidation reports whether err is caused by bad user input.
// Validation failures re-prompt the user and keep the current conversation state.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyName,
		ErrEmptyTitle,
		ErrDuplicateCategory,
		ErrInvalidURL,
		ErrInvalidMediaType,
		ErrFileTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsPipeline reports whether err was produced while ingesting media.
func IsPipeline(err error) bool {
	return errors.Is(err, ErrDownloadFailed) ||
		errors.Is(err, ErrStorageFull) ||
		errors.Is(err, ErrEmptyVideo) ||
		errors.Is(err, ErrFrameRead)
}
