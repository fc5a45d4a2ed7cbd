package application

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"conductor/internal/config"
	"conductor/internal/db"
	"conductor/internal/flow"
	"conductor/internal/lifecycle"
	"conductor/internal/localapi"
	"conductor/internal/logging"
	"conductor/internal/runtime"
	"conductor/internal/statusstore"
	"conductor/internal/store"
	"conductor/internal/taskrunner"
	"conductor/internal/tmux"
	"conductor/internal/watcher"
	"conductor/internal/workermgr"
)

// Serve wires every component and blocks until a signal or a fatal error.
// One process hosts the HTTP API, the per-worker monitors and the PTY
// watcher.
func Serve(ctx context.Context, cfg config.Config) error {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "conductor"})

	if err := ensureDirs(cfg); err != nil {
		return err
	}
	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	adapter := tmux.NewAdapter(&tmux.RealExec{}, cfg.TmuxBin)
	completionHub := runtime.NewCompletionHub()
	wsHub := localapi.NewWSHub()

	registry := runtime.NewRegistry(runtime.RegistryDeps{
		Store:         st,
		Hub:           completionHub,
		Adapter:       adapter,
		Events:        wsHub,
		Logger:        logger,
		SentinelStart: cfg.SentinelStart,
		SentinelEnd:   cfg.SentinelEnd,
		Interval:      cfg.MonitorInterval,
	})
	runner := taskrunner.New(taskrunner.Deps{
		Store:    st,
		ShimsDir: cfg.ShimsDir,
		EnsureRuntime: func(ctx context.Context, workerID, session, workspace string) taskrunner.TaskQueue {
			return registry.EnsureRuntime(ctx, workerID, session, workspace)
		},
		Events: wsHub,
		Logger: logger.With("module", "task_runner"),
	})
	coordinator := flow.NewCoordinator(flow.Deps{
		Store:  st,
		Tasks:  runner,
		Hub:    completionHub,
		Events: wsHub,
		Logger: logger.With("module", "flow"),
	})
	workers := workermgr.New(workermgr.Deps{
		Store:         st,
		Adapter:       adapter,
		WorkspaceRoot: cfg.WorkspaceRoot,
		TmuxBin:       cfg.TmuxBin,
		TtydBin:       cfg.TtydBin,
		TtydHost:      cfg.TtydHost,
		TtydPortStart: cfg.TtydPortStart,
		DefaultCLI:    cfg.DefaultCLIType,
		EnsureRuntime: func(ctx context.Context, workerID, session, workspace string) {
			registry.EnsureRuntime(ctx, workerID, session, workspace)
		},
		Logger: logger.With("module", "worker_manager"),
	})
	server := localapi.NewServer(localapi.Deps{
		Workers: workers,
		Tasks:   runner,
		Flows:   coordinator,
		Store:   st,
		Hub:     wsHub,
		Logger:  logger.With("module", "api"),
	})

	if err := registry.Bootstrap(ctx); err != nil {
		logger.Warn("runtime bootstrap incomplete", "error", err)
	}

	statusDB, err := statusstore.Open(cfg.StatusDBPath)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("open status store: %w", err)
	}
	ptyWatcher := watcher.New(cfg, adapter, statusDB, logger.With("module", "pty_watcher"))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}

	mgr := lifecycle.NewManager()
	mgr.AddRun("http", func(runCtx context.Context) error {
		go func() {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
		logger.Info("local API listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	mgr.AddRun("pty-watcher", ptyWatcher.Run)
	mgr.AddShutdown("close-store", func(context.Context) error {
		return st.Close()
	})

	return mgr.StartAndWait(ctx, os.Interrupt, syscall.SIGTERM)
}

// MigrateUp applies schema migrations to the main database and exits.
func MigrateUp(cfg config.Config) error {
	if err := ensureDirs(cfg); err != nil {
		return err
	}
	gdb, err := db.OpenSQLite(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := db.MigrateUp(gdb); err != nil {
		_ = db.Close(gdb)
		return err
	}
	return db.Close(gdb)
}

// RunWatcher runs the standalone PTY watcher loop until ctx is cancelled.
func RunWatcher(ctx context.Context, cfg config.Config) error {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "pty_watcher"})
	if err := ensureDirs(cfg); err != nil {
		return err
	}
	statusDB, err := statusstore.Open(cfg.StatusDBPath)
	if err != nil {
		return fmt.Errorf("open status store: %w", err)
	}
	adapter := tmux.NewAdapter(&tmux.RealExec{}, cfg.TmuxBin)
	return watcher.New(cfg, adapter, statusDB, logger).Run(ctx)
}

func ensureDirs(cfg config.Config) error {
	dirs := []string{
		cfg.WorkspaceRoot,
		filepath.Dir(cfg.DatabaseURL),
		filepath.Dir(cfg.StatusDBPath),
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
