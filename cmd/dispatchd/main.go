package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeyard/dispatch/internal/config"
	"github.com/codeyard/dispatch/internal/discovery"
	"github.com/codeyard/dispatch/internal/eventbus"
	"github.com/codeyard/dispatch/internal/scheduler"
	"github.com/codeyard/dispatch/internal/server"
	"github.com/codeyard/dispatch/internal/state"
	"github.com/codeyard/dispatch/internal/worker"
	"github.com/codeyard/dispatch/pkg/clog"
	"github.com/codeyard/dispatch/pkg/storage"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup storage
	var store storage.Storage
	var localStore *storage.LocalStorage
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		localStore, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
		store = localStore
	}

	// Setup event bus and registry
	bus := eventbus.New()
	registry := worker.NewRegistry()

	// Setup engine with snapshot persistence
	stateStore := state.NewStore(store)
	engine := scheduler.NewEngine(registry, bus, scheduler.WithSink(stateStore))
	if snap, ok, err := stateStore.Load(context.Background()); err != nil {
		slog.Error("failed to load snapshot", "error", err)
		os.Exit(1)
	} else if ok {
		engine.Restore(snap.Tasks)
		slog.Info("restored task queue from snapshot", "tasks", len(snap.Tasks))
	}

	// Setup discovery
	reconciler := discovery.NewReconciler(registry, bus, env.DiscoveryEnv.ActivityWindow)
	provider := discovery.NewSessionProvider(store, env.DiscoveryEnv.SessionsPrefix)
	poller := discovery.NewPoller(provider, reconciler, env.DiscoveryEnv.PollInterval)

	loop := scheduler.NewLoop(engine, env.SchedulerEnv.ReconcileInterval)
	srv := server.NewServer(env, engine, registry, poller)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	go poller.Run(ctx)
	go loop.Run(ctx)

	// Session files on local disk also trigger discovery on change.
	if localStore != nil {
		watcher := discovery.NewWatcher(localStore.BasePath()+"/"+env.DiscoveryEnv.SessionsPrefix, poller)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Error("session watcher error", "error", err)
			}
		}()
	}

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
