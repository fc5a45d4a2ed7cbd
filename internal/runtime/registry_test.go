package runtime

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"conductor/internal/db"
	"conductor/internal/logging"
	"conductor/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "conductor.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	reg := NewRegistry(RegistryDeps{
		Store:         s,
		Hub:           NewCompletionHub(),
		Logger:        logging.Discard(),
		SentinelStart: "<<<S>>>",
		SentinelEnd:   "<<<E>>>",
		NewPane:       func(string) Pane { return &fakePane{} },
	})
	return reg, s
}

func TestEnsureRuntimeIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	first := reg.EnsureRuntime(ctx, "w1", "worker_w1", "/tmp/w1")
	second := reg.EnsureRuntime(ctx, "w1", "worker_w1", "/tmp/w1")
	if first != second {
		t.Fatalf("expected one runtime instance per worker")
	}
	if reg.Get("w1") != first {
		t.Fatalf("get returned a different instance")
	}
	if reg.Get("missing") != nil {
		t.Fatalf("expected nil for unknown worker")
	}
}

func TestEnsureRuntimeConcurrent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	const n = 16
	results := make([]*WorkerRuntime, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = reg.EnsureRuntime(ctx, "w1", "worker_w1", "/tmp/w1")
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("concurrent callers observed different runtimes")
		}
	}
}

func TestBootstrapCreatesRuntimesForAllWorkers(t *testing.T) {
	reg, s := newTestRegistry(t)

	for _, id := range []string{"w1", "w2"} {
		w := &db.Worker{ID: id, TmuxSession: "worker_" + id, WorkspacePath: "/tmp/" + id}
		if err := s.CreateWorker(w); err != nil {
			t.Fatalf("create worker: %v", err)
		}
	}

	if err := reg.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if reg.Get("w1") == nil || reg.Get("w2") == nil {
		t.Fatalf("expected runtimes for every stored worker")
	}
}
