package runtime

import (
	"context"
	"testing"
	"time"
)

func TestHubPublishThenAwait(t *testing.T) {
	h := NewCompletionHub()
	h.Publish("t1", Outcome{Status: "completed"})

	got, err := h.Await(context.Background(), "t1")
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if got.Status != "completed" {
		t.Fatalf("outcome = %+v", got)
	}
}

func TestHubAwaitThenPublish(t *testing.T) {
	h := NewCompletionHub()
	done := make(chan Outcome, 1)
	go func() {
		got, err := h.Await(context.Background(), "t2")
		if err != nil {
			t.Errorf("await: %v", err)
		}
		done <- got
	}()

	time.Sleep(10 * time.Millisecond)
	h.Publish("t2", Outcome{Status: "failed", ErrorMessage: "boom"})

	select {
	case got := <-done:
		if got.Status != "failed" || got.ErrorMessage != "boom" {
			t.Fatalf("outcome = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("await never woke")
	}
}

func TestHubFirstOutcomeSticks(t *testing.T) {
	h := NewCompletionHub()
	h.Publish("t3", Outcome{Status: "completed"})
	h.Publish("t3", Outcome{Status: "failed"})

	got, err := h.Await(context.Background(), "t3")
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if got.Status != "completed" {
		t.Fatalf("outcome = %+v, want first publish", got)
	}
}

func TestHubAwaitHonorsCancellation(t *testing.T) {
	h := NewCompletionHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Await(ctx, "t4"); err == nil {
		t.Fatalf("expected context error")
	}
}
