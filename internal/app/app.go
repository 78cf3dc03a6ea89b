// Package app assembles the engine from configuration for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agenthands/kgfuse/internal/cache"
	"github.com/agenthands/kgfuse/internal/config"
	"github.com/agenthands/kgfuse/internal/core"
	"github.com/agenthands/kgfuse/internal/driver"
	"github.com/agenthands/kgfuse/internal/llm"
	"github.com/agenthands/kgfuse/internal/logger"
	"github.com/agenthands/kgfuse/internal/observability"
	"github.com/agenthands/kgfuse/internal/store"
)

type App struct {
	Config *config.Config
	Engine *core.Engine
	Log    *logger.Logger

	closers []func(context.Context) error
}

// LoadConfig reads .env, then path (CONFIG_PATH when empty), then validates.
func LoadConfig(path string) (*config.Config, error) {
	config.LoadDotEnv()
	allowMissing := false
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config/config.toml"
		allowMissing = true
	}
	cfg, err := config.Load(path, allowMissing)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New connects to the graph, builds the embedder (behind the Redis cache when
// one is configured) and returns the assembled engine. Close releases
// everything New opened.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{Config: cfg, Log: log}

	shutdown, err := observability.InitTracing(ctx, cfg.Tracing, os.Stderr, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	d, err := driver.NewBoltDriver(ctx, cfg.Graph, log)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, d.Close)
	if err := d.BuildIndices(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("build indices: %w", err)
	}

	embedder, err := llm.NewEmbedder(ctx, cfg.Embedding, log)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	if c, ok := embedder.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn("embedding cache unavailable, continuing without it", "addr", cfg.Redis.Addr, "error", err)
		} else {
			a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
			embedder = llm.NewCachedEmbedder(embedder, rc, cfg.Embedding.Model, log)
		}
	}

	a.Engine = core.NewEngine(store.NewGraphStore(d, cfg.Graph.QueryTimeout()), embedder, cfg, log)
	return a, nil
}

// Close runs the closers in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
