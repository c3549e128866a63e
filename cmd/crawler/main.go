package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tululu-library/catalog"
	"tululu-library/config"
	"tululu-library/models"
	"tululu-library/pipeline"
)

func main() {
	defaultCfg := config.DefaultConfig()
	startDefault := defaultCfg.StartPage
	if value, ok, err := config.EnvInt("TULULU_START_PAGE"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid TULULU_START_PAGE: %v\n", err)
		os.Exit(1)
	} else if ok {
		startDefault = value
	}
	endDefault := defaultCfg.EndPage
	if value, ok, err := config.EnvInt("TULULU_END_PAGE"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid TULULU_END_PAGE: %v\n", err)
		os.Exit(1)
	} else if ok {
		endDefault = value
	}
	destDefault := defaultCfg.DestFolder
	if value, ok := config.EnvString("TULULU_DEST"); ok {
		destDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("TULULU_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	startPage := flag.Int("start-page", startDefault, "First category page to crawl")
	endPage := flag.Int("end-page", endDefault, "Category page to stop before (exclusive)")
	includeEnd := flag.Bool("include-end-page", false, "Treat -end-page as inclusive")
	destFolder := flag.String("dest", destDefault, "Destination folder for books/ and images/")
	skipImgs := flag.Bool("skip-imgs", false, "Do not download cover images")
	skipTxt := flag.Bool("skip-txt", false, "Do not download book texts")
	jsonPath := flag.String("json-path", "", "Folder for description.json (defaults to -dest)")
	categoryURL := flag.String("category-url", defaultCfg.CategoryURL, "Category root URL")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "Per-request timeout")
	onFetchFailure := flag.String("on-fetch-failure", string(defaultCfg.OnFetchFailure), "Fetch failure policy: skip or propagate")
	lenient := flag.Bool("lenient", false, "Keep books that have no text-download link")
	plainNames := flag.Bool("plain-names", false, "Store files without a content-hash suffix")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.CategoryURL = *categoryURL
	cfg.StartPage = *startPage
	cfg.EndPage = *endPage
	cfg.IncludeEndPage = *includeEnd
	cfg.DestFolder = *destFolder
	cfg.SkipImages = *skipImgs
	cfg.SkipText = *skipTxt
	cfg.JSONPath = *jsonPath
	cfg.Timeout = *timeout
	cfg.OnFetchFailure = config.FailurePolicy(*onFetchFailure)
	cfg.AllowMissingText = *lenient
	cfg.PlainFilenames = *plainNames
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	p, err := pipeline.New(cfg)
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(p.Fetcher().Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	slog.Info("starting crawl",
		slog.String("category", cfg.CategoryURL),
		slog.Int("start_page", cfg.StartPage),
		slog.Int("end_page", cfg.EndPage),
		slog.String("dest", cfg.DestFolder),
	)

	result, err := p.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", shutdownErr))
		}
		cancel()
	}

	if err != nil {
		var rangeErr *catalog.RangeError
		if errors.As(err, &rangeErr) {
			slog.Error("bad -start-page/-end-page arguments", slog.Any("error", err))
		} else {
			slog.Error("crawl failed", slog.Any("error", err))
		}
		os.Exit(1)
	}

	printSummary(result, manifestLocation(cfg))
}

func manifestLocation(cfg *config.Config) string {
	dir := cfg.DestFolder
	if cfg.JSONPath != "" {
		dir = cfg.JSONPath
	}
	return filepath.Join(dir, pipeline.ManifestName)
}

func printSummary(result *models.CrawlResult, manifest string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")
	fmt.Printf("  Books:        %d\n", result.BookCount)
	fmt.Printf("  Links seen:   %d\n", result.LinkCount)
	fmt.Printf("  Errors:       %d\n", result.ErrorCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:  %v\n", result.ErrorsByType)
	}
	if len(result.FailedURLs) > 0 {
		fmt.Printf("  Failed URLs:  %d\n", len(result.FailedURLs))
	}
	fmt.Printf("  Duration:     %v\n", result.Duration())
	fmt.Printf("  Manifest:     %s\n", manifest)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
