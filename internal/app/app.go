// Package app wires the engine together: configuration, logging, the Lua
// runtime, the scene and the frame loop.
package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/isocore/internal/config"
	"github.com/dshills/isocore/internal/entity"
	"github.com/dshills/isocore/internal/logging"
	"github.com/dshills/isocore/internal/plugin/lua"
)

// Application owns the scene and everything that drives it.
type Application struct {
	cfg config.Config
	log *zap.Logger

	runtime *lua.Runtime
	scene   *entity.Scene
	watcher *lua.Watcher
	metrics *Metrics

	running  atomic.Bool
	closed   atomic.Bool
	shutdown sync.Once
}

// Option configures an Application.
type Option func(*Application)

// WithLogger replaces the logger built from the configuration.
func WithLogger(l *zap.Logger) Option {
	return func(app *Application) {
		app.log = l
	}
}

// New creates an Application from cfg: it builds the logger, the Lua runtime
// and the scene, registers the built-in and archetype component types and
// spawns the configured entities.
func New(cfg config.Config, opts ...Option) (*Application, error) {
	app := &Application{
		cfg:     cfg,
		metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(app)
	}

	if err := app.bootstrap(); err != nil {
		app.Shutdown()
		return nil, err
	}
	return app, nil
}

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap() error {
	// 1. Logger
	if app.log == nil {
		log, err := logging.New(logging.Config{
			Level:  app.cfg.Log.Level,
			Format: app.cfg.Log.Format,
		})
		if err != nil {
			return &InitError{Component: "logger", Err: err}
		}
		app.log = log
	}

	// 2. Script runtime
	cache := lua.NewChunkCache()
	app.runtime = lua.NewRuntime(
		lua.WithScriptDir(app.cfg.Scripts.Dir),
		lua.WithCache(cache),
		lua.WithCallTimeout(app.cfg.Scripts.CallTimeout.Duration),
		lua.WithLogger(app.log),
	)

	// 3. Scene, with the runtime as both loader and caller
	app.scene = entity.NewScene(
		entity.WithLoader(app.runtime),
		entity.WithCaller(app.runtime),
		entity.WithLogger(app.log),
	)
	if err := registerBuiltins(app.scene.Scope()); err != nil {
		return &InitError{Component: "registries", Err: err}
	}

	// 4. Archetypes
	if path := app.cfg.Scene.Archetypes; path != "" {
		archetypes, err := entity.LoadArchetypes(path)
		if err != nil {
			return &InitError{Component: "archetypes", Err: err}
		}
		if err := registerArchetypeTypes(app.scene.Scope(), archetypes); err != nil {
			return &InitError{Component: "registries", Err: err}
		}
		for _, a := range archetypes {
			if err := app.scene.AddArchetype(a); err != nil {
				return &InitError{Component: "archetypes", Err: err}
			}
		}
		app.log.Info("archetypes loaded", zap.String("path", path), zap.Int("count", len(archetypes)))
	}

	// 5. Initial entities
	if err := app.spawnConfigured(); err != nil {
		return err
	}

	// 6. Script watcher. A missing directory only disables hot reload.
	if app.cfg.Scripts.Watch {
		w, err := lua.NewWatcher(cache, app.cfg.Scripts.Dir, lua.WithWatchLogger(app.log))
		if err != nil {
			app.log.Warn("script watcher disabled", zap.String("dir", app.cfg.Scripts.Dir), zap.Error(err))
		} else {
			app.watcher = w
		}
	}
	return nil
}

// spawnConfigured spawns the entities listed in scene.spawn.
func (app *Application) spawnConfigured() error {
	for _, s := range app.cfg.Scene.Spawn {
		count := max(s.Count, 1)
		for i := range count {
			name := s.Name
			if name != "" && count > 1 {
				name = fmt.Sprintf("%s-%d", s.Name, i+1)
			}
			if _, err := app.scene.SpawnArchetype(s.Archetype, name); err != nil {
				return &SpawnError{Archetype: s.Archetype, Index: i, Err: err}
			}
		}
	}
	if n := app.scene.Len(); n > 0 {
		app.log.Info("scene populated", zap.Int("entities", n))
	}
	return nil
}

// Scene returns the scene.
func (app *Application) Scene() *entity.Scene {
	return app.scene
}

// Runtime returns the Lua runtime.
func (app *Application) Runtime() *lua.Runtime {
	return app.runtime
}

// Metrics returns the frame metrics.
func (app *Application) Metrics() *Metrics {
	return app.metrics
}

// Logger returns the application logger.
func (app *Application) Logger() *zap.Logger {
	return app.log
}

// IsRunning reports whether Run is in progress.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Step advances the scene by one frame of dt.
func (app *Application) Step(dt time.Duration) {
	start := time.Now()
	app.scene.Tick(dt)
	app.metrics.RecordFrame(time.Since(start), dt)
}

// Run drives the scene at the configured tick rate until ctx is cancelled or
// loop.frames frames have run. The script watcher, when enabled, runs
// alongside and stops with the loop.
func (app *Application) Run(ctx context.Context) error {
	if app.closed.Load() {
		return ErrClosed
	}
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if app.watcher != nil {
		g.Go(func() error {
			return app.watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return app.loop(gctx)
	})

	err := g.Wait()
	snap := app.metrics.Snapshot()
	app.log.Info("frame loop stopped",
		zap.Uint64("frames", snap.FrameCount),
		zap.Duration("avg_frame", time.Duration(snap.AvgFrameNs)),
		zap.Duration("max_frame", time.Duration(snap.MaxFrameNs)),
		zap.Uint64("overruns", snap.OverrunFrames),
	)
	return err
}

// loop is the fixed-step frame loop. Every frame advances the scene by the
// same dt regardless of scheduling jitter.
func (app *Application) loop(ctx context.Context) error {
	step := app.cfg.FrameDuration()
	limit := app.cfg.Loop.Frames

	ticker := time.NewTicker(step)
	defer ticker.Stop()

	app.log.Info("frame loop started", zap.Duration("step", step), zap.Int("frames", limit))
	for frames := 0; limit == 0 || frames < limit; frames++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			app.Step(step)
		}
	}
	return nil
}

// Shutdown destroys every entity, closes the runtime and flushes the logger.
// Call it after Run has returned. Calling it again is a no-op.
func (app *Application) Shutdown() {
	app.shutdown.Do(func() {
		app.closed.Store(true)
		if app.watcher != nil {
			_ = app.watcher.Close()
		}
		if app.scene != nil {
			app.scene.Close()
		}
		if app.runtime != nil {
			app.runtime.Close()
		}
		if app.log != nil {
			_ = app.log.Sync()
		}
	})
}
