package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tululu-library/render"
)

func main() {
	defaults := render.DefaultConfig()

	manifest := flag.String("manifest", defaults.ManifestPath, "Path to description.json")
	templatePath := flag.String("template", "", "Template file (embedded default when empty)")
	pagesDir := flag.String("pages", defaults.PagesDir, "Output folder for rendered pages")
	booksPerRow := flag.Int("books-per-row", defaults.BooksPerRow, "Books per row")
	rowsPerPage := flag.Int("rows-per-page", defaults.RowsPerPage, "Rows per page")
	serve := flag.Bool("serve", false, "Watch the template and serve the site")
	addr := flag.String("addr", ":5500", "Dev server listen address")
	root := flag.String("root", ".", "Dev server document root")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg := render.Config{
		ManifestPath: *manifest,
		TemplatePath: *templatePath,
		PagesDir:     *pagesDir,
		BooksPerRow:  *booksPerRow,
		RowsPerPage:  *rowsPerPage,
	}

	if !*serve {
		pages, err := render.RenderSite(cfg)
		if err != nil {
			slog.Error("render failed", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("Rendered %d pages into %s\n", pages, cfg.PagesDir)
		return
	}

	watcher, err := render.NewWatcher(cfg, *root, *addr)
	if err != nil {
		slog.Error("invalid watch configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watcher.Run(ctx); err != nil {
		slog.Error("watch failed", slog.Any("error", err))
		os.Exit(1)
	}
}
