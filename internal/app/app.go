// Package app encapsulates the application's dependencies, configuration,
// and lifecycle: logger, workflow model, handler registry, and the engine
// run itself.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/gridloop/internal/config"
	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/handlers"
	"github.com/vk/gridloop/internal/registry"
)

// coreModules is the default handler set when the caller registers nothing.
var coreModules = []registry.Module{handlers.Core{}}

// App encapsulates one application instance.
type App struct {
	outW     io.Writer
	cfg      *Config
	logger   *slog.Logger
	registry *registry.Registry
	model    *config.Model
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and registry.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, cfg.WorkflowPath)
	if err != nil {
		// A failure to load the workflow is a fatal startup error.
		panic(fmt.Errorf("failed to load workflow: %w", err))
	}
	logger.Debug("Workflow loaded into unified model.", "nodes", len(model.Nodes), "connections", len(model.Connections))

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("Handler modules registered.", "count", len(modules))

	if err := reg.Validate(ctx, model); err != nil {
		// A mismatch between workflow and registered Go code is a
		// programmer error.
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		model:    model,
	}
}

// Registry returns the application's registry. Primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the loaded workflow model. Primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}
