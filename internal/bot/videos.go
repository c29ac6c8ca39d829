package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/iconidentify/vidvault/internal/domain"
	"github.com/iconidentify/vidvault/internal/session"
)

func (d *Dispatcher) manageVideos(ctx context.Context, c *call) error {
	d.discardDraft(c)
	c.s.Reset()
	return d.reply(ctx, c, manageVideosView())
}

func (d *Dispatcher) backToVideos(ctx context.Context, c *call) error {
	return d.manageVideos(ctx, c)
}

func (d *Dispatcher) addVideo(ctx context.Context, c *call) error {
	d.discardDraft(c)
	c.s.Set(session.State{Flow: session.FlowVideo, Phase: session.PhaseAwaitingTitle})
	return d.reply(ctx, c, addVideoView())
}

func (d *Dispatcher) deleteVideoMenu(ctx context.Context, c *call) error {
	if st := c.s.State(); st.Flow == session.FlowVideo && st.Phase == session.PhaseAwaitingVideoDelete {
		c.s.Reset()
	}
	cats, err := d.store.ListCategories(ctx)
	if err != nil {
		return err
	}
	return d.reply(ctx, c, deleteVideoCategoryPickerView(cats))
}

func (d *Dispatcher) deleteVideoCategory(ctx context.Context, c *call, categoryID int64) error {
	cat, err := d.store.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if cat == nil {
		return d.reply(ctx, c, categoryNotFoundView(tokVideoDelete))
	}

	videos, err := d.store.ListVideos(ctx, categoryID)
	if err != nil {
		return err
	}
	return d.reply(ctx, c, deleteVideoPickerView(videos))
}

func (d *Dispatcher) deleteVideo(ctx context.Context, c *call, id int64) error {
	v, err := d.store.GetVideo(ctx, id)
	if err != nil {
		return err
	}
	if v == nil {
		return d.reply(ctx, c, videoNotFoundView(tokVideoDelete))
	}

	d.discardDraft(c)
	c.s.Set(session.State{Flow: session.FlowVideo, Phase: session.PhaseAwaitingVideoDelete, TargetID: id})
	return d.reply(ctx, c, confirmDeleteVideoView(v))
}

func (d *Dispatcher) confirmDeleteVideo(ctx context.Context, c *call, id int64) error {
	v, err := d.store.DeleteVideo(ctx, id)
	if err != nil {
		return err
	}
	if st := c.s.State(); st.Flow == session.FlowVideo && st.Phase == session.PhaseAwaitingVideoDelete {
		c.s.Reset()
	}
	if v == nil {
		return d.reply(ctx, c, videoNotFoundView(tokMenuManageVideos))
	}

	if v.Kind == domain.KindFile && !d.media.DeleteFiles(*v) {
		c.logger.Warn("video files not fully removed", "video_id", v.ID)
	}
	c.logger.Info("video deleted", "video_id", v.ID, "title", v.Title, "kind", v.Kind)
	return d.reply(ctx, c, videoDeletedView(v.Title))
}

// selectCategory completes the add-video wizard by persisting the draft into
// the chosen category.
func (d *Dispatcher) selectCategory(ctx context.Context, c *call, categoryID int64) error {
	st := c.s.State()
	if st.Flow != session.FlowVideo || st.Phase != session.PhaseAwaitingCategory {
		return d.reply(ctx, c, sessionExpiredView())
	}

	cat, err := d.store.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if cat == nil {
		return d.categoryGone(ctx, c)
	}

	v := &domain.Video{
		Title:         st.Draft.Title,
		Kind:          st.Draft.Kind,
		Location:      st.Draft.Location,
		CategoryID:    categoryID,
		ThumbnailPath: st.Draft.ThumbnailPath,
	}
	if err := d.store.CreateVideo(ctx, v); err != nil {
		if errors.Is(err, domain.ErrCategoryNotFound) {
			return d.categoryGone(ctx, c)
		}
		return err
	}

	c.s.Reset()
	c.logger.Info("video added", "video_id", v.ID, "title", v.Title, "kind", v.Kind, "category_id", categoryID)
	return d.reply(ctx, c, videoAddedView(v.Title))
}

// categoryGone re-offers the category picker after the chosen category
// vanished. The draft is kept.
func (d *Dispatcher) categoryGone(ctx context.Context, c *call) error {
	cats, err := d.store.ListCategories(ctx)
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		d.discardDraft(c)
		c.s.Reset()
		return d.reply(ctx, c, noCategoriesForVideoView())
	}
	v := selectCategoryView(cats)
	v.Text = "❌ Category not found. It might have been deleted already.\n\n" + v.Text
	return d.reply(ctx, c, v)
}

// videoMessage handles text and attachments sent during the video flow.
func (d *Dispatcher) videoMessage(ctx context.Context, c *call, st session.State) error {
	switch st.Phase {
	case session.PhaseAwaitingTitle:
		return d.videoTitle(ctx, c)
	case session.PhaseAwaitingMedia:
		return d.videoMedia(ctx, c, st)
	case session.PhaseAwaitingCategory:
		return d.showCategorySelection(ctx, c, st.Draft)
	default:
		c.logger.Debug("ignoring message", "phase", st.Phase)
		return nil
	}
}

func (d *Dispatcher) videoTitle(ctx context.Context, c *call) error {
	name := strings.TrimSpace(c.ev.Text)
	if name == "" {
		c.logger.Info("empty video title")
		return d.send(ctx, c, invalidTitleView())
	}

	c.s.Set(session.State{
		Flow:  session.FlowVideo,
		Phase: session.PhaseAwaitingMedia,
		Draft: session.Draft{Title: name},
	})
	return d.send(ctx, c, mediaPromptView(name))
}

// videoMedia accepts the link or file for the draft. Every rejection leaves
// the user in the same phase so they can retry or cancel.
func (d *Dispatcher) videoMedia(ctx context.Context, c *call, st session.State) error {
	text := strings.TrimSpace(c.ev.Text)

	switch m := c.ev.Media.(type) {
	case nil:
		if text == "" {
			return d.send(ctx, c, invalidInputView())
		}
		if !domain.IsValidURL(text) {
			c.logger.Info("invalid video url", "input", text)
			return d.send(ctx, c, invalidURLView())
		}
		return d.acceptLink(ctx, c, st.Draft, text)

	case domain.LinkPreview:
		switch {
		case domain.IsValidURL(text):
			return d.acceptLink(ctx, c, st.Draft, text)
		case m.URL != "":
			return d.acceptLink(ctx, c, st.Draft, m.URL)
		default:
			return d.send(ctx, c, invalidLinkView())
		}

	case domain.Document:
		if !m.IsVideo() {
			c.logger.Info("rejected non-video document", "mime_type", m.MimeType)
			return d.send(ctx, c, invalidFileView())
		}
		return d.ingest(ctx, c, st.Draft, m)

	case domain.Unsupported:
		c.logger.Info("unsupported attachment", "reason", m.Reason)
		return d.send(ctx, c, unsupportedMediaView())

	default:
		return d.send(ctx, c, invalidInputView())
	}
}

func (d *Dispatcher) acceptLink(ctx context.Context, c *call, draft session.Draft, raw string) error {
	draft.Kind = domain.KindLink
	draft.Location = domain.NormalizeURL(raw)
	draft.ThumbnailPath = ""
	c.logger.Info("video link accepted", "url", draft.Location, "platform", domain.DetectPlatform(draft.Location))
	return d.showCategorySelection(ctx, c, draft)
}

// ingest downloads the uploaded video. Pipeline failures are reported and
// leave the draft waiting for another file or link.
func (d *Dispatcher) ingest(ctx context.Context, c *call, draft session.Draft, doc domain.Document) error {
	if err := d.send(ctx, c, downloadingView(doc.Size)); err != nil {
		c.logger.Warn("failed to send progress message", "error", err)
	}

	res, err := d.media.Ingest(ctx, doc)
	if err != nil {
		if domain.IsValidation(err) {
			c.logger.Info("video rejected", "file_id", doc.FileID, "error", err)
		} else {
			c.logger.Error("video ingestion failed", "file_id", doc.FileID, "pipeline", domain.IsPipeline(err), "error", err)
		}
		switch {
		case errors.Is(err, domain.ErrInvalidMediaType):
			return d.send(ctx, c, invalidFileView())
		case errors.Is(err, domain.ErrFileTooLarge):
			return d.send(ctx, c, fileTooLargeView(d.cfg.MaxFileSize))
		case errors.Is(err, domain.ErrStorageFull):
			return d.send(ctx, c, storageFullView())
		default:
			return d.send(ctx, c, ingestErrorView(err))
		}
	}

	draft.Kind = domain.KindFile
	draft.Location = res.VideoPath
	draft.ThumbnailPath = res.ThumbnailPath
	return d.showCategorySelection(ctx, c, draft)
}

// showCategorySelection moves the draft to category selection. Without any
// category the wizard ends and a stored file is removed again.
func (d *Dispatcher) showCategorySelection(ctx context.Context, c *call, draft session.Draft) error {
	cats, err := d.store.ListCategories(ctx)
	if err != nil {
		return err
	}

	c.s.Set(session.State{Flow: session.FlowVideo, Phase: session.PhaseAwaitingCategory, Draft: draft})
	if len(cats) == 0 {
		d.discardDraft(c)
		c.s.Reset()
		return d.send(ctx, c, noCategoriesForVideoView())
	}
	return d.send(ctx, c, selectCategoryView(cats))
}

// discardDraft removes the files of a downloaded but unsaved video.
func (d *Dispatcher) discardDraft(c *call) {
	st := c.s.State()
	if st.Flow != session.FlowVideo || st.Draft.Kind != domain.KindFile || st.Draft.Location == "" {
		return
	}
	d.media.DeleteFiles(domain.Video{
		Title:         st.Draft.Title,
		Kind:          domain.KindFile,
		Location:      st.Draft.Location,
		ThumbnailPath: st.Draft.ThumbnailPath,
	})
	c.logger.Info("discarded unsaved upload", "path", st.Draft.Location)
}
