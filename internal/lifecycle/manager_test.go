package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCancelStopsServicesThenRunsClosers(t *testing.T) {
	mgr := NewManager()
	var mu sync.Mutex
	steps := []string{}
	record := func(v string) {
		mu.Lock()
		steps = append(steps, v)
		mu.Unlock()
	}

	mgr.AddRun("http", func(ctx context.Context) error {
		<-ctx.Done()
		record("http-stopped")
		return nil
	})
	mgr.AddRun("watcher", func(ctx context.Context) error {
		<-ctx.Done()
		record("watcher-stopped")
		return nil
	})
	mgr.AddShutdown("close-store", func(context.Context) error {
		record("store-closed")
		return nil
	})

	parent, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.StartAndWait(parent) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("StartAndWait: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(steps) != 3 || steps[2] != "store-closed" {
		t.Fatalf("closers must run after services stop: %#v", steps)
	}
}

func TestServiceErrorCancelsSiblingsAndNamesJob(t *testing.T) {
	mgr := NewManager()
	boom := errors.New("listen failed")
	var siblingStopped bool

	mgr.AddRun("http", func(context.Context) error {
		return boom
	})
	mgr.AddRun("watcher", func(ctx context.Context) error {
		<-ctx.Done()
		siblingStopped = true
		return nil
	})

	err := mgr.StartAndWait(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected service error, got %v", err)
	}
	if !strings.Contains(err.Error(), "http") {
		t.Fatalf("error should carry the job name: %v", err)
	}
	if !siblingStopped {
		t.Fatalf("sibling service was not cancelled")
	}
}

func TestShutdownErrorsAreJoined(t *testing.T) {
	mgr := NewManager()
	closeErr := errors.New("db busy")
	mgr.AddShutdown("close-store", func(context.Context) error { return closeErr })
	mgr.AddShutdown("close-status", func(context.Context) error { return nil })

	err := mgr.StartAndWait(context.Background())
	if !errors.Is(err, closeErr) {
		t.Fatalf("expected shutdown error, got %v", err)
	}
}

func TestNilJobsIgnored(t *testing.T) {
	mgr := NewManager()
	mgr.AddRun("noop", nil)
	mgr.AddShutdown("noop", nil)
	if err := mgr.StartAndWait(context.Background()); err != nil {
		t.Fatalf("StartAndWait: %v", err)
	}
}
