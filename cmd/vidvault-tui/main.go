// vidvault-tui browses a vidvault archive from the terminal. It opens the
// bot's SQLite database and never writes to it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/iconidentify/vidvault/cmd/vidvault-tui/internal/ui"
	"github.com/iconidentify/vidvault/internal/repository"
)

func main() {
	dbPath := flag.String("db", getEnv("DATABASE_PATH", "data/vidvault.db"), "Path to the archive database")
	plain := flag.Bool("plain", false, "Print a text listing instead of starting the interface")
	flag.Parse()

	if _, err := os.Stat(*dbPath); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Archive database not found: %s\n", *dbPath)
		os.Exit(1)
	}

	db, err := repository.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening archive: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	store := repository.NewSQLiteStore(db)

	if *plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := writeListing(ctx, os.Stdout, store); err != nil {
			fmt.Fprintf(os.Stderr, "Error listing archive: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := ui.NewApp(store, *dbPath).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}

// writeListing prints every category followed by its videos.
func writeListing(ctx context.Context, w io.Writer, archive ui.Archive) error {
	stats, err := archive.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d categories, %d videos (%d files, %d links)\n",
		stats.Categories, stats.Videos, stats.Files, stats.Links)

	cats, err := archive.ListCategories(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range cats {
		videos, err := archive.ListVideos(ctx, c.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "\n[%d] %s (%d)\n", c.ID, c.Name, len(videos))
		for _, v := range videos {
			row := ui.Describe(v)
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", v.ID, v.Title, v.Kind, v.Location, row.Size)
		}
	}
	return tw.Flush()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
