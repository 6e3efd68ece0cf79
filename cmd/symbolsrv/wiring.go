package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/lexcodex/lspsymbols/internal/config"
	"github.com/lexcodex/lspsymbols/internal/dispatch"
	"github.com/lexcodex/lspsymbols/internal/editengine"
	"github.com/lexcodex/lspsymbols/internal/history"
	"github.com/lexcodex/lspsymbols/internal/langreg"
	"github.com/lexcodex/lspsymbols/internal/manager"
	"github.com/lexcodex/lspsymbols/internal/retriever"
	"github.com/lexcodex/lspsymbols/internal/symbolcache"
)

// app is everything a subcommand needs, assembled once from the loaded
// config and the workspace root. It is the composition root: every
// component below wires the previous one's concrete type into the next
// one's narrow, point-of-use interface, the same layering DESIGN.md's
// per-package entries describe in isolation.
type app struct {
	cfg      *config.Config
	registry *langreg.Registry
	cache    *symbolcache.Cache
	manager  *manager.Manager
	retr     *retriever.Retriever
	editor   *editengine.EditEngine
	dispatch *dispatch.Dispatcher
	history  *history.Store
	logger   *log.Logger
}

func newApp(root, configPath string) (*app, error) {
	logger := log.New(os.Stderr, "symbolsrv ", log.LstdFlags)

	if configPath == "" {
		configPath = filepath.Join(root, config.DefaultFileName)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	registry, err := cfg.BuildRegistry()
	if err != nil {
		return nil, fmt.Errorf("build language registry: %w", err)
	}

	cacheDir := cfg.CacheDir
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(root, cacheDir)
	}
	cache, err := symbolcache.New(cacheDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open symbol cache: %w", err)
	}

	mgr := manager.New(registry, cache, logger)

	histPath := filepath.Join(cacheDir, "activation-history.db")
	histStore, err := history.Open(histPath)
	if err != nil {
		return nil, fmt.Errorf("open activation history: %w", err)
	}
	mgr.SetRecorder(history.NewManagerRecorder(histStore))

	retr := retriever.New(mgr, registry, logger)
	editor := editengine.NewWithManager(mgr, cache)

	d := dispatch.New()
	if err := dispatch.RegisterCoreTools(d, retr, editor); err != nil {
		return nil, fmt.Errorf("register core tools: %w", err)
	}

	return &app{
		cfg:      cfg,
		registry: registry,
		cache:    cache,
		manager:  mgr,
		retr:     retr,
		editor:   editor,
		dispatch: d,
		history:  histStore,
		logger:   logger,
	}, nil
}

func (a *app) Close() error {
	return a.history.Close()
}
