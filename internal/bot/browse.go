package bot

import (
	"context"
	"os"

	"github.com/iconidentify/vidvault/internal/domain"
)

func (d *Dispatcher) browseMenu(ctx context.Context, c *call) error {
	d.discardDraft(c)
	c.s.Reset()
	cats, err := d.store.ListCategories(ctx)
	if err != nil {
		return err
	}
	return d.reply(ctx, c, browseCategoriesView(cats))
}

// browseCategory sends one message per video of the category followed by a
// closing message. A card that fails to send is logged and skipped.
func (d *Dispatcher) browseCategory(ctx context.Context, c *call, id int64) error {
	cat, err := d.store.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if cat == nil {
		return d.reply(ctx, c, categoryNotFoundView(tokMenuCategories))
	}

	videos, err := d.store.ListVideos(ctx, id)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		return d.reply(ctx, c, emptyCategoryView(cat.Name))
	}

	if err := d.reply(ctx, c, sendingVideosView(cat.Name, len(videos))); err != nil {
		return err
	}
	for _, v := range videos {
		if err := d.sendCard(ctx, c, v); err != nil {
			c.logger.Warn("failed to send video card", "video_id", v.ID, "error", err)
		}
	}
	return d.send(ctx, c, browseFinishedView())
}

func (d *Dispatcher) sendCard(ctx context.Context, c *call, v domain.Video) error {
	if v.Kind == domain.KindLink {
		return d.send(ctx, c, linkCardView(v))
	}

	card := fileCardView(v)
	if v.HasThumbnail() && fileExists(v.ThumbnailPath) {
		err := d.out.SendPhoto(ctx, c.ev.ChatID, v.ThumbnailPath, card)
		if err == nil {
			return nil
		}
		c.logger.Debug("thumbnail upload failed, sending text card", "video_id", v.ID, "error", err)
	}
	return d.send(ctx, c, card)
}

func (d *Dispatcher) playVideo(ctx context.Context, c *call, id int64) error {
	v, err := d.store.GetVideo(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case v == nil:
		d.answer(ctx, c, msgVideoMissing)
		return nil
	case v.Kind != domain.KindFile:
		d.answer(ctx, c, msgNotAFile)
		return nil
	case !fileExists(v.Location):
		c.logger.Warn("stored video file missing", "video_id", v.ID, "path", v.Location)
		d.answer(ctx, c, msgFileMissing)
		return nil
	}

	d.answer(ctx, c, msgSendingVideo)
	return d.out.SendVideo(ctx, c.ev.ChatID, v.Location, fileCardView(*v).Text)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
