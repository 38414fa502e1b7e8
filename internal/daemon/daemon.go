package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sourcegraph/conc"

	agentrepo "github.com/ktagawa/agentq/internal/agent/repositoryimpl"
	"github.com/ktagawa/agentq/internal/archive"
	"github.com/ktagawa/agentq/internal/cliadapter"
	"github.com/ktagawa/agentq/internal/config"
	"github.com/ktagawa/agentq/internal/db"
	"github.com/ktagawa/agentq/internal/eventbus"
	"github.com/ktagawa/agentq/internal/health"
	itemlogrepo "github.com/ktagawa/agentq/internal/itemlog/repositoryimpl"
	"github.com/ktagawa/agentq/internal/notifier"
	pushsubrepo "github.com/ktagawa/agentq/internal/notifier/repositoryimpl"
	"github.com/ktagawa/agentq/internal/queue"
	"github.com/ktagawa/agentq/internal/runner"
	runrecordrepo "github.com/ktagawa/agentq/internal/runrecord/repositoryimpl"
	"github.com/ktagawa/agentq/internal/sequencer"
	"github.com/ktagawa/agentq/internal/server"
	"github.com/ktagawa/agentq/internal/workdir"
	"github.com/ktagawa/agentq/internal/worker"
	workitemrepo "github.com/ktagawa/agentq/internal/workitem/repositoryimpl"
	"github.com/ktagawa/agentq/internal/workspace"
	workspacerepo "github.com/ktagawa/agentq/internal/workspace/repositoryimpl"
	"github.com/ktagawa/agentq/pkg/clog"
	"github.com/ktagawa/agentq/pkg/panicerr"
	"github.com/ktagawa/agentq/pkg/storage"
)

// Run wires the whole daemon and blocks until ctx is cancelled. It owns the
// store, the worker pool, the HTTP server, and the background loops.
func Run(ctx context.Context, env *config.Env) error {
	logger := setupLogger(env)

	conn, err := db.Open(env.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer conn.Close()
	if err := db.Migrate(conn); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	store, err := setupArchiveStorage(ctx, &env.ArchiveEnv)
	if err != nil {
		return fmt.Errorf("setup archive storage: %w", err)
	}

	bus := eventbus.New()

	itemRepo := workitemrepo.NewSQLiteRepository(conn)
	agentRepo := agentrepo.NewSQLiteRepository(conn)
	workspaceRepo := workspacerepo.NewSQLiteRepository(conn)
	runRepo := runrecordrepo.NewSQLiteRepository(conn)
	logRepo := itemlogrepo.NewSQLiteRepository(conn)
	pushSubRepo := pushsubrepo.NewSQLiteRepository(conn)

	seeder := workspace.NewSeeder(workspaceRepo, agentRepo, logger)
	if env.SeedConfigPath != "" {
		seed, err := workspace.ParseSeed(env.SeedConfigPath)
		if err != nil {
			return fmt.Errorf("load seed config: %w", err)
		}
		if err := seeder.Apply(ctx, seed); err != nil {
			return fmt.Errorf("apply seed config: %w", err)
		}
	}

	run := runner.New(logger)
	registry := cliadapter.NewRegistry(&env.AdapterEnv, run)
	monitor := health.NewMonitor(registry)

	dirs, err := workdir.NewManager(env.ScratchRoot, logger)
	if err != nil {
		return fmt.Errorf("setup working dir manager: %w", err)
	}

	q := queue.NewManager(itemRepo, agentRepo, workspaceRepo, runRepo, logRepo, bus, logger)
	seq := sequencer.New(itemRepo, agentRepo, workspaceRepo, runRepo, logRepo,
		registry, run, dirs, bus, logger, &env.RunnerEnv)
	pool := worker.NewPool(itemRepo, seq, q, logger, &env.RunnerEnv)

	pushSender := notifier.NewSender(&env.VAPIDEnv, pushSubRepo)
	pushDispatcher := notifier.NewDispatcher(bus, workspaceRepo, pushSender)

	reaper := archive.NewReaper(itemRepo, runRepo, logRepo, workspaceRepo,
		store, bus, logger, env.SweepInterval)

	srv := server.New(env, q, itemRepo, runRepo, logRepo, agentRepo,
		workspaceRepo, pushSubRepo, bus, monitor, logger)

	// Probe adapters once at startup so the health endpoint has data.
	monitor.Refresh(ctx)

	var wg conc.WaitGroup
	goSafe := func(name string, fn func() error) {
		wg.Go(panicerr.Loop(logger, name, fn))
	}

	goSafe("worker pool", func() error { return pool.Run(ctx) })
	goSafe("push dispatcher", func() error { pushDispatcher.Start(ctx); return nil })
	goSafe("retention reaper", func() error { return reaper.Run(ctx) })
	if env.SeedConfigPath != "" {
		watcher := workspace.NewWatcher(env.SeedConfigPath, seeder, logger)
		goSafe("seed watcher", func() error { return watcher.Run(ctx) })
	}

	serverErr := make(chan error, 1)
	goSafe("http server", func() error {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		return nil
	})

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		wg.Wait()
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}
	wg.Wait()
	return nil
}

func setupLogger(env *config.Env) *slog.Logger {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(clog.NewAttributesHandler(handler))
	slog.SetDefault(logger)
	return logger
}

func setupArchiveStorage(ctx context.Context, env *config.ArchiveEnv) (storage.Storage, error) {
	switch env.Type {
	case "s3":
		return storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
	default:
		return storage.NewLocalStorage(env.BaseDir)
	}
}
