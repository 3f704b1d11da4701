package app

import (
	"context"
	"fmt"

	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/engine"
	"github.com/vk/gridloop/internal/graph"
	"github.com/vk/gridloop/internal/state"
)

// Run builds the graph from the loaded model and executes it once.
func (a *App) Run(ctx context.Context) error {
	return a.RunWithOverrides(ctx, nil)
}

// RunWithOverrides executes the workflow with run-level runtime parameter
// overrides, the programmatic entrypoint the CLI and tests share.
func (a *App) RunWithOverrides(ctx context.Context, overrides engine.Overrides) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.cfg.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.cfg.HealthcheckPort)
	}

	a.logger.Debug("Building workflow graph from config model...")
	g, err := graph.Build(ctx, a.model, a.registry)
	if err != nil {
		return fmt.Errorf("failed to build workflow graph: %w", err)
	}
	a.logger.Debug("Workflow graph built.", "nodes", len(g.Nodes), "units", len(g.Units))

	if len(g.Units) == 0 {
		a.logger.Warn("No nodes found in workflow, execution not required.")
		return nil
	}

	store, closeStore, err := a.newStateStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []engine.Option{
		engine.WithStore(store),
		engine.WithWorkers(a.cfg.WorkerCount),
	}
	if a.cfg.RunTimeout > 0 {
		opts = append(opts, engine.WithRunTimeout(a.cfg.RunTimeout))
	}
	if a.cfg.KeepState {
		opts = append(opts, engine.WithKeepState())
	}
	eng := engine.New(a.registry, opts...)

	a.logger.Info("🚀 Starting workflow run...")
	run, err := eng.Execute(ctx, g, overrides)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Run finished.", "run_id", run.ID, "status", run.Status, "results", len(run.Results))

	a.logger.Debug("App.Run method finished.")
	return nil
}

// newStateStore constructs the configured carried-state backend.
func (a *App) newStateStore(ctx context.Context) (state.Store, func(), error) {
	switch a.cfg.StateBackend {
	case StateBackendRedis:
		store, err := state.NewRedisStore(ctx, a.cfg.RedisURL, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing redis state store: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("Closing redis state store failed.", "error", err)
			}
		}, nil
	default:
		return state.NewMemoryStore(), func() {}, nil
	}
}
