package bot

import (
	"context"
	"errors"

	"github.com/iconidentify/vidvault/internal/domain"
	"github.com/iconidentify/vidvault/internal/session"
)

func (d *Dispatcher) manageCategories(ctx context.Context, c *call) error {
	d.discardDraft(c)
	c.s.Reset()
	return d.reply(ctx, c, manageCategoriesView())
}

func (d *Dispatcher) backToCategories(ctx context.Context, c *call) error {
	return d.manageCategories(ctx, c)
}

func (d *Dispatcher) addCategory(ctx context.Context, c *call) error {
	d.discardDraft(c)
	c.s.Set(session.State{Flow: session.FlowCategory, Phase: session.PhaseAwaitingName})
	return d.reply(ctx, c, addCategoryView())
}

func (d *Dispatcher) deleteCategoryMenu(ctx context.Context, c *call) error {
	if c.s.State().Flow == session.FlowCategory {
		c.s.Reset()
	}
	cats, err := d.store.ListCategories(ctx)
	if err != nil {
		return err
	}
	return d.reply(ctx, c, deleteCategoryPickerView(cats))
}

func (d *Dispatcher) deleteCategory(ctx context.Context, c *call, id int64) error {
	cat, err := d.store.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if cat == nil {
		return d.reply(ctx, c, categoryNotFoundView(tokCategoryDelete))
	}

	d.discardDraft(c)
	c.s.Set(session.State{Flow: session.FlowCategory, Phase: session.PhaseAwaitingCategoryDelete, TargetID: id})
	return d.reply(ctx, c, confirmDeleteCategoryView(cat))
}

// confirmDeleteCategory removes the category with its videos, then cleans up
// their files. File cleanup failures are logged and never undo the deletion.
func (d *Dispatcher) confirmDeleteCategory(ctx context.Context, c *call, id int64) error {
	cat, err := d.store.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if cat == nil {
		c.s.Reset()
		return d.reply(ctx, c, categoryNotFoundView(tokMenuManageCategories))
	}

	videos, err := d.store.DeleteCategory(ctx, id)
	if err != nil {
		return err
	}
	if c.s.State().Flow == session.FlowCategory {
		c.s.Reset()
	}

	failed := 0
	for _, v := range videos {
		if v.Kind != domain.KindFile {
			continue
		}
		if !d.media.DeleteFiles(v) {
			failed++
		}
	}
	c.logger.Info("category deleted", "category_id", id, "name", cat.Name, "videos", len(videos), "file_cleanup_failures", failed)

	return d.reply(ctx, c, categoryDeletedView(len(videos)))
}

// categoryMessage handles text typed during the category flow.
func (d *Dispatcher) categoryMessage(ctx context.Context, c *call, st session.State) error {
	if st.Phase != session.PhaseAwaitingName {
		c.logger.Debug("ignoring message", "phase", st.Phase)
		return nil
	}

	name := domain.NormalizeName(c.ev.Text)
	if name == "" {
		return d.send(ctx, c, invalidCategoryNameView())
	}

	cat, err := d.store.CreateCategory(ctx, name)
	switch {
	case errors.Is(err, domain.ErrEmptyName):
		return d.send(ctx, c, invalidCategoryNameView())
	case errors.Is(err, domain.ErrDuplicateCategory):
		return d.send(ctx, c, categoryExistsView(name))
	case err != nil:
		return err
	}

	c.s.Reset()
	c.logger.Info("category created", "category_id", cat.ID, "name", cat.Name)
	return d.send(ctx, c, categoryAddedView(cat.Name))
}
