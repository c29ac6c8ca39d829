package bot

import (
	"context"
	"errors"

	"github.com/iconidentify/vidvault/internal/domain"
	"github.com/iconidentify/vidvault/internal/session"
)

// start handles /start. The admin is granted long-lived access on every
// start; other users see the menu while their grant lasts and are asked for
// the password otherwise.
func (d *Dispatcher) start(ctx context.Context, c *call) error {
	uid := c.ev.UserID

	if d.gate.IsAdmin(uid) {
		if _, err := d.gate.GrantAdmin(ctx, uid, c.ev.Username); err != nil {
			return err
		}
		d.discardDraft(c)
		c.s.Reset()
		return d.send(ctx, c, mainMenuView())
	}

	ok, err := d.gate.IsAuthorized(ctx, uid)
	if err != nil {
		return err
	}
	if ok {
		d.discardDraft(c)
		c.s.Reset()
		return d.send(ctx, c, mainMenuView())
	}

	c.s.Set(session.State{Flow: session.FlowAuth, Phase: session.PhaseAwaitingPassword})
	return d.send(ctx, c, welcomeView())
}

// password handles input while the user is asked for the access password.
// A wrong or throttled attempt keeps the user in the same phase.
func (d *Dispatcher) password(ctx context.Context, c *call) error {
	if c.ev.Text == "" {
		return d.send(ctx, c, welcomeView())
	}

	_, err := d.gate.Login(ctx, c.ev.UserID, c.ev.Username, c.ev.Text)
	switch {
	case errors.Is(err, domain.ErrAccessDenied):
		return d.send(ctx, c, View{Text: msgWrongPassword})
	case errors.Is(err, domain.ErrRateLimited):
		return d.send(ctx, c, View{Text: msgTooManyTries})
	case err != nil:
		return err
	}

	c.s.Reset()
	if err := d.send(ctx, c, passwordAcceptedView(d.gate.Timeout())); err != nil {
		return err
	}
	return d.send(ctx, c, mainMenuView())
}

func (d *Dispatcher) backToMain(ctx context.Context, c *call) error {
	d.discardDraft(c)
	c.s.Reset()
	return d.reply(ctx, c, mainMenuView())
}
