package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
)

type job struct {
	name string
	fn   func(context.Context) error
}

// Manager sequences the conductor's long-running services. Run jobs start
// together and share one context; the first failure or a delivered signal
// cancels the rest, then shutdown jobs run in registration order.
type Manager struct {
	mu       sync.Mutex
	services []job
	closers  []job
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddRun(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.services = append(m.services, job{name: name, fn: fn})
	m.mu.Unlock()
}

func (m *Manager) AddShutdown(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.closers = append(m.closers, job{name: name, fn: fn})
	m.mu.Unlock()
}

// StartAndWait blocks until every run job returns. Signals, if given, cancel
// the shared run context. Shutdown jobs always execute, even after a run
// failure, and their errors are joined into the result.
func (m *Manager) StartAndWait(parent context.Context, sig ...os.Signal) error {
	ctx := parent
	if len(sig) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(parent, sig...)
		defer stop()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	services := append([]job(nil), m.services...)
	closers := append([]job(nil), m.closers...)
	m.mu.Unlock()

	errCh := make(chan error, len(services))
	var wg sync.WaitGroup
	for _, svc := range services {
		svc := svc
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.fn(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", svc.name, err)
				cancel()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		cancel()
	case err := <-errCh:
		runErr = err
		cancel()
	case <-done:
	}
	<-done

	var closeErr error
	for _, c := range closers {
		if err := c.fn(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			closeErr = errors.Join(closeErr, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(runErr, closeErr)
}
