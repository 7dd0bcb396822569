package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEnqueueAndProcess(t *testing.T) {
	broker := NewMemoryBroker()
	client := NewClient(broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var processed []string
	done := make(chan struct{})

	w := NewWorker(broker, ChargeQueue, func(_ context.Context, txID string) error {
		mu.Lock()
		processed = append(processed, txID)
		mu.Unlock()
		close(done)
		return nil
	}, 3, 50*time.Millisecond)

	go w.Start(ctx)
	defer w.Stop()

	if err := client.Enqueue(ctx, ChargeQueue, "tx-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 1 || processed[0] != "tx-1" {
		t.Errorf("processed = %v, want [tx-1]", processed)
	}
}

func TestWorkerRetriesUpToMaxAttempts(t *testing.T) {
	broker := NewMemoryBroker()
	client := NewClient(broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	attempts := 0
	gone := make(chan struct{})

	w := NewWorker(broker, ChargeQueue, func(_ context.Context, _ string) error {
		mu.Lock()
		attempts++
		if attempts == 3 {
			defer close(gone)
		}
		mu.Unlock()
		return errors.New("gateway down")
	}, 3, 50*time.Millisecond)

	go w.Start(ctx)
	defer w.Stop()

	client.Enqueue(ctx, ChargeQueue, "tx-1")

	select {
	case <-gone:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not reach max attempts")
	}

	// Give any stray requeue a moment, then verify the job is gone.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	got := attempts
	mu.Unlock()
	if got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	depth, _ := client.Depth(ctx, ChargeQueue)
	if depth != 0 {
		t.Errorf("queue depth = %d, want 0 after permanent failure", depth)
	}
}

func TestWorkerDropsMalformedJob(t *testing.T) {
	broker := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := false
	w := NewWorker(broker, ApprovalEmailQueue, func(_ context.Context, _ string) error {
		called = true
		return nil
	}, 3, 50*time.Millisecond)

	go w.Start(ctx)
	defer w.Stop()

	broker.Push(ctx, ApprovalEmailQueue, []byte("{not json"))
	time.Sleep(200 * time.Millisecond)

	if called {
		t.Error("processor should not run for malformed payload")
	}
}
