// Package ui provides the terminal browser for a vidvault archive.
package ui

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/iconidentify/vidvault/internal/domain"
	"github.com/iconidentify/vidvault/internal/repository"
)

// Archive is the read-only view of the store the browser needs.
type Archive interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListVideos(ctx context.Context, categoryID int64) ([]domain.Video, error)
	Stats(ctx context.Context) (*repository.StoreStats, error)
}

// App is the main TUI application.
type App struct {
	app     *tview.Application
	archive Archive
	dbPath  string

	header     *tview.TextView
	footer     *tview.TextView
	statusBar  *tview.TextView
	categories *tview.List
	videos     *tview.Table

	cats []domain.Category
}

// NewApp creates a new TUI application.
func NewApp(archive Archive, dbPath string) *App {
	a := &App{
		app:     tview.NewApplication(),
		archive: archive,
		dbPath:  dbPath,
	}
	a.setupUI()
	return a
}

// Run loads the archive and blocks until the user quits.
func (a *App) Run() error {
	a.refresh()
	return a.app.Run()
}

func (a *App) setupUI() {
	a.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.header.SetBackgroundColor(tcell.ColorDarkBlue)

	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[yellow]Tab[white]:Switch pane [yellow]r[white]:Refresh [yellow]q[white]:Quit")
	a.footer.SetBackgroundColor(tcell.ColorDarkBlue)

	a.statusBar = tview.NewTextView().SetDynamicColors(true)
	a.statusBar.SetBackgroundColor(tcell.ColorDarkGreen)

	a.categories = tview.NewList().ShowSecondaryText(false)
	a.categories.SetBorder(true).SetTitle(" Categories ")
	a.categories.SetChangedFunc(func(index int, _, _ string, _ rune) {
		a.showVideos(index)
	})

	a.videos = tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	a.videos.SetBorder(true).SetTitle(" Videos ")

	body := tview.NewFlex().
		AddItem(a.categories, 0, 1, true).
		AddItem(a.videos, 0, 3, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 1, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false).
		AddItem(a.footer, 1, 0, false)

	a.app.SetRoot(root, true).SetInputCapture(a.handleKey)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch {
	case event.Key() == tcell.KeyTab:
		if a.categories.HasFocus() {
			a.app.SetFocus(a.videos)
		} else {
			a.app.SetFocus(a.categories)
		}
		return nil
	case event.Rune() == 'q':
		a.app.Stop()
		return nil
	case event.Rune() == 'r':
		a.refresh()
		return nil
	}
	return event
}

func (a *App) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := a.archive.Stats(ctx)
	if err != nil {
		a.setStatus("[red]%v", err)
		return
	}
	a.header.SetText(fmt.Sprintf("[::b]vidvault[::-]  %s  categories: %d  videos: %d (%d files, %d links)  users: %d",
		a.dbPath, stats.Categories, stats.Videos, stats.Files, stats.Links, stats.Users))

	cats, err := a.archive.ListCategories(ctx)
	if err != nil {
		a.setStatus("[red]%v", err)
		return
	}
	a.cats = cats

	current := a.categories.GetCurrentItem()
	a.categories.Clear()
	for _, c := range cats {
		a.categories.AddItem(c.Name, "", 0, nil)
	}
	if current >= len(cats) {
		current = len(cats) - 1
	}
	if current < 0 {
		current = 0
	}
	if len(cats) > 0 {
		a.categories.SetCurrentItem(current)
	}
	a.showVideos(current)
	a.setStatus("[white]refreshed at %s", time.Now().Format("15:04:05"))
}

func (a *App) showVideos(index int) {
	a.videos.Clear()
	for col, h := range []string{"ID", "Title", "Kind", "Location", "Size", "Thumbnail"} {
		a.videos.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}
	if index < 0 || index >= len(a.cats) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	videos, err := a.archive.ListVideos(ctx, a.cats[index].ID)
	if err != nil {
		a.setStatus("[red]%v", err)
		return
	}

	for i, v := range videos {
		row := Describe(v)
		for col, text := range []string{fmt.Sprint(v.ID), v.Title, string(v.Kind), v.Location, row.Size, row.Thumbnail} {
			cell := tview.NewTableCell(text)
			if row.Missing {
				cell.SetTextColor(tcell.ColorRed)
			}
			a.videos.SetCell(i+1, col, cell)
		}
	}
	a.videos.ScrollToBeginning()
}

func (a *App) setStatus(format string, args ...any) {
	a.statusBar.SetText(fmt.Sprintf(format, args...))
}

// Row is the on-disk state of a video as shown to the operator.
type Row struct {
	Size      string
	Thumbnail string
	// Missing is set for file videos whose file is gone.
	Missing bool
}

// Describe inspects the files of a video.
func Describe(v domain.Video) Row {
	if v.Kind != domain.KindFile {
		return Row{Size: "-", Thumbnail: "-"}
	}

	r := Row{Thumbnail: "none"}
	if info, err := os.Stat(v.Location); err == nil {
		r.Size = humanize.Bytes(uint64(info.Size()))
	} else {
		r.Size = "missing"
		r.Missing = true
	}
	if v.HasThumbnail() {
		if _, err := os.Stat(v.ThumbnailPath); err == nil {
			r.Thumbnail = "yes"
		} else {
			r.Thumbnail = "missing"
		}
	}
	return r
}
