package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/config"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/models"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/request"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/source"
	"github.com/tachibana-shin/rakuyomi-sub000/internal/wasm"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// sourcehost is a development harness: it loads every extension package
// under the configured paths and can exercise one capability against one
// source from the command line.
func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	sourceID := flag.String("source", "", "Source ID to exercise (empty: list loaded sources)")
	op := flag.String("op", "list", "Capability to call (list, search, details, chapters, pages, deep-link)")
	arg := flag.String("arg", "", "Capability argument (query, manga ID, chapter ID or URL)")
	timeout := flag.Duration("timeout", 30*time.Second, "Capability call timeout")
	flag.Parse()

	logger := zap.L()
	if *logLevel == "debug" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting sourcehost",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	cfg, err := config.LoadHostConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	client := request.NewClient(request.ClientConfig{
		Timeout:   time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		UserAgent: cfg.HTTP.UserAgent,
	}, logger)

	loader := source.NewLoader(client, cfg.SettingsDir, &wasm.RuntimeConfig{
		MemoryPages:  cfg.Wasm.MemoryPages,
		DebugEnabled: cfg.Wasm.Debug,
	}, logger)

	manager := source.NewManager(cfg.ExtensionPaths, loader, logger)
	if err := manager.LoadAll(ctx); err != nil {
		logger.Fatal("Failed to load sources", zap.Error(err))
	}
	defer manager.Shutdown(context.Background())

	if *sourceID == "" {
		for _, src := range manager.Registry().List() {
			fmt.Printf("%s\t%s\t%s\n", src.ID(), src.Name(), src.Generation())
		}
		return
	}

	src, err := manager.GetSource(*sourceID)
	if err != nil {
		logger.Fatal("Unknown source", zap.Error(err))
	}

	callCtx, callCancel := context.WithTimeout(ctx, *timeout)
	defer callCancel()

	result, err := runOp(callCtx, src, *op, *arg)
	if err != nil {
		logger.Fatal("Capability call failed", zap.Error(err))
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}

func runOp(ctx context.Context, src *source.Source, op, arg string) (any, error) {
	switch op {
	case "list":
		return src.ListManga(ctx, models.Listing{Name: arg}, 1)
	case "search":
		return src.SearchManga(ctx, arg, 1, nil)
	case "details":
		return src.GetMangaDetails(ctx, models.Manga{ID: arg})
	case "chapters":
		return src.GetChapterList(ctx, models.Manga{ID: arg})
	case "pages":
		return src.GetPageList(ctx, models.Chapter{ID: arg})
	case "deep-link":
		return src.HandleDeepLink(ctx, arg)
	default:
		return nil, fmt.Errorf("unknown op %q", op)
	}
}
