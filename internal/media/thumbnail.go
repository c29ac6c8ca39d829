package media

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/iconidentify/vidvault/internal/domain"
)

// FrameSource reads frames out of a video file.
type FrameSource interface {
	// FrameCount returns the number of frames; zero means the video is empty.
	FrameCount(ctx context.Context, videoPath string) (int64, error)

	// FrameAt decodes the frame with the given zero-based index.
	FrameAt(ctx context.Context, videoPath string, index int64) (image.Image, error)
}

// ThumbnailName returns the thumbnail file name for a video file.
func ThumbnailName(videoPath string) string {
	return filepath.Base(videoPath) + ".jpg"
}

// ScaleToLongSide resizes img so its longer side equals size, keeping the
// aspect ratio. Smaller images are scaled up.
func ScaleToLongSide(img image.Image, size int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() >= b.Dy() {
		return imaging.Resize(img, size, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, size, imaging.Lanczos)
}

// extractThumbnail samples the middle frame of videoPath and writes it as a
// JPEG into dir. It returns the thumbnail path.
func extractThumbnail(ctx context.Context, frames FrameSource, videoPath, dir string, size, quality int) (string, error) {
	total, err := frames.FrameCount(ctx, videoPath)
	if err != nil {
		return "", fmt.Errorf("%w: count frames: %w", domain.ErrFrameRead, err)
	}
	if total <= 0 {
		return "", domain.ErrEmptyVideo
	}

	frame, err := frames.FrameAt(ctx, videoPath, total/2)
	if err != nil {
		return "", fmt.Errorf("%w: frame %d of %d: %w", domain.ErrFrameRead, total/2, total, err)
	}

	thumb := ScaleToLongSide(frame, size)
	dst := filepath.Join(dir, ThumbnailName(videoPath))
	if err := writeJPEG(thumb, dst, quality); err != nil {
		return "", err
	}
	return dst, nil
}

func writeJPEG(img image.Image, dst string, quality int) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}

	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	if err := imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close thumbnail: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("move thumbnail into place: %w", err)
	}
	return nil
}
