package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"conductor/internal/store"
	"conductor/internal/tmux"
)

// RegistryDeps carries everything a new runtime needs. NewPane is a test
// seam; the default binds a PaneReader to the first window of the worker's
// session.
type RegistryDeps struct {
	Store         *store.Store
	Hub           *CompletionHub
	Adapter       *tmux.Adapter
	Events        EventSink
	Logger        *slog.Logger
	SentinelStart string
	SentinelEnd   string
	Interval      time.Duration
	NewPane       func(session string) Pane
}

// Registry is the process-wide worker-id -> WorkerRuntime map. Creation is
// guarded so concurrent callers observe a single runtime per worker.
type Registry struct {
	deps RegistryDeps

	mu       sync.Mutex
	runtimes map[string]*WorkerRuntime
}

func NewRegistry(deps RegistryDeps) *Registry {
	if deps.NewPane == nil {
		deps.NewPane = func(session string) Pane {
			return tmux.NewPaneReader(deps.Adapter, tmux.SessionTarget(session))
		}
	}
	return &Registry{
		deps:     deps,
		runtimes: map[string]*WorkerRuntime{},
	}
}

// Bootstrap ensures a runtime for every worker known to the store. Called
// once on process start so monitors survive restarts.
func (g *Registry) Bootstrap(ctx context.Context) error {
	workers, err := g.deps.Store.ListWorkers()
	if err != nil {
		return err
	}
	for _, w := range workers {
		g.EnsureRuntime(ctx, w.ID, w.TmuxSession, w.WorkspacePath)
	}
	return nil
}

// EnsureRuntime returns the worker's runtime, creating and starting it on
// first use. Idempotent.
func (g *Registry) EnsureRuntime(ctx context.Context, workerID, session, workspace string) *WorkerRuntime {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rt, ok := g.runtimes[workerID]; ok {
		return rt
	}
	rt := NewWorkerRuntime(RuntimeOptions{
		WorkerID:      workerID,
		WorkspacePath: workspace,
		Pane:          g.deps.NewPane(session),
		Store:         g.deps.Store,
		Hub:           g.deps.Hub,
		Events:        g.deps.Events,
		Logger:        g.deps.Logger.With("module", "worker_runtime", "worker_id", workerID),
		SentinelStart: g.deps.SentinelStart,
		SentinelEnd:   g.deps.SentinelEnd,
		Interval:      g.deps.Interval,
	})
	g.runtimes[workerID] = rt
	rt.Start(ctx)
	return rt
}

// Get returns the runtime for workerID or nil.
func (g *Registry) Get(workerID string) *WorkerRuntime {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runtimes[workerID]
}
