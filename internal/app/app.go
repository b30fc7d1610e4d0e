package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/evalgraph/internal/config"
	"github.com/vk/evalgraph/internal/ctxlog"
	"github.com/vk/evalgraph/internal/engine"
	"github.com/vk/evalgraph/internal/metrics"
	"github.com/vk/evalgraph/internal/notify"
)

// notifyBuffer is the per-subscriber buffer of the change stream.
const notifyBuffer = 64

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	ctx        context.Context
	config     *Config
	engine     *engine.Engine
	notifier   *notify.Notifier
	promReg    *prometheus.Registry
	page       *config.Page
	httpServer *http.Server
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	logW io.Writer
}

// WithLogWriter sends logs to w instead of stderr.
func WithLogWriter(w io.Writer) Option {
	return func(o *options) { o.logW = w }
}

// NewApp builds the logger, metrics, change stream and engine, then loads
// the page at cfg.PagePath with loader and defines every entity. The
// report is written to outW.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, opts ...Option) (*App, error) {
	o := options{logW: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, o.logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	promReg := prometheus.NewRegistry()
	m, err := metrics.New(promReg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}
	notifier := notify.New(logger, notifyBuffer)

	eng, err := engine.New(ctx, engine.Config{
		Workers:     cfg.Workers,
		EvalTimeout: cfg.EvalTimeout,
		CacheSize:   cfg.CacheSize,
		Metrics:     m,
		Publisher:   notifier,
	})
	if err != nil {
		_ = notifier.Close()
		return nil, err
	}

	a := &App{
		outW:     outW,
		logger:   logger,
		ctx:      ctx,
		config:   cfg,
		engine:   eng,
		notifier: notifier,
		promReg:  promReg,
	}
	if err := a.load(loader); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) load(loader config.Loader) error {
	page, err := config.LoadPaths(a.ctx, loader, a.config.PagePath)
	if err != nil {
		return fmt.Errorf("failed to load page: %w", err)
	}
	specs, err := page.Specs()
	if err != nil {
		return fmt.Errorf("failed to load page: %w", err)
	}
	if err := a.engine.DefineAll(a.ctx, specs); err != nil {
		return fmt.Errorf("failed to load page: %w", err)
	}
	a.page = page
	a.logger.Debug("Page loaded into the engine.", "entities", len(specs))
	return nil
}

// Engine returns the application's engine. This is primarily for testing.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Gatherer exposes the application's metrics registry.
func (a *App) Gatherer() prometheus.Gatherer {
	return a.promReg
}

func (a *App) close() {
	a.engine.Close()
	if err := a.notifier.Close(); err != nil {
		a.logger.Error("Failed to close change stream.", "error", err)
	}
}
