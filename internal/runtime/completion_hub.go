package runtime

import (
	"context"
	"sync"
)

// Outcome is the terminal result of a task as seen by waiters.
type Outcome struct {
	Status       string
	ErrorMessage string
}

// CompletionHub delivers terminal task outcomes to at most one waiter per
// task. Outcomes are sticky: publish-then-await and await-then-publish both
// deliver exactly once, so coordinators never poll the task row.
type CompletionHub struct {
	mu      sync.Mutex
	done    map[string]Outcome
	waiters map[string]chan Outcome
}

func NewCompletionHub() *CompletionHub {
	return &CompletionHub{
		done:    map[string]Outcome{},
		waiters: map[string]chan Outcome{},
	}
}

// Publish records the outcome for taskID and wakes its waiter if one is
// blocked. Publishing twice keeps the first outcome.
func (h *CompletionHub) Publish(taskID string, outcome Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.done[taskID]; ok {
		return
	}
	if ch, ok := h.waiters[taskID]; ok {
		delete(h.waiters, taskID)
		ch <- outcome
		return
	}
	h.done[taskID] = outcome
}

// Await blocks until the task's outcome is published or ctx is cancelled.
// A recorded outcome is consumed on delivery.
func (h *CompletionHub) Await(ctx context.Context, taskID string) (Outcome, error) {
	h.mu.Lock()
	if outcome, ok := h.done[taskID]; ok {
		delete(h.done, taskID)
		h.mu.Unlock()
		return outcome, nil
	}
	ch := make(chan Outcome, 1)
	h.waiters[taskID] = ch
	h.mu.Unlock()

	select {
	case outcome := <-ch:
		return outcome, nil
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.waiters, taskID)
		h.mu.Unlock()
		return Outcome{}, ctx.Err()
	}
}
