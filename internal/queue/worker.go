package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// Processor handles one job's transaction.
type Processor func(ctx context.Context, transactionID string) error

// Worker drains one queue, dispatching each job to a Processor. Failed jobs
// are requeued with their attempt count bumped until maxAttempts, then
// dropped with an error log; the durable transaction row keeps the state
// needed to re-drive the work by hand.
type Worker struct {
	broker      Broker
	queue       string
	process     Processor
	maxAttempts int
	popTimeout  time.Duration
	done        chan struct{}
}

// NewWorker creates a worker for the named queue.
func NewWorker(broker Broker, queue string, process Processor, maxAttempts int, popTimeout time.Duration) *Worker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Worker{
		broker:      broker,
		queue:       queue,
		process:     process,
		maxAttempts: maxAttempts,
		popTimeout:  popTimeout,
		done:        make(chan struct{}),
	}
}

// Start blocks, consuming jobs until Stop is called or the context is
// cancelled.
func (w *Worker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		default:
		}

		payload, err := w.broker.Pop(ctx, w.queue, w.popTimeout)
		if errors.Is(err, ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("queue pop failed", "queue", w.queue, "error", err)
			time.Sleep(time.Second)
			continue
		}

		w.handle(ctx, payload)
	}
}

// Stop signals the worker loop to exit after the current job.
func (w *Worker) Stop() {
	close(w.done)
}

func (w *Worker) handle(ctx context.Context, payload []byte) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		slog.Error("dropping malformed job", "queue", w.queue, "error", err)
		return
	}

	err := w.process(ctx, job.TransactionID)
	if err == nil {
		return
	}

	job.Attempts++
	if job.Attempts >= w.maxAttempts {
		slog.Error("job failed permanently",
			"queue", w.queue,
			"transaction_id", job.TransactionID,
			"attempts", job.Attempts,
			"error", err,
		)
		return
	}

	slog.Warn("job failed, requeueing",
		"queue", w.queue,
		"transaction_id", job.TransactionID,
		"attempts", job.Attempts,
		"error", err,
	)
	requeued, merr := json.Marshal(job)
	if merr != nil {
		slog.Error("requeue marshal failed", "queue", w.queue, "error", merr)
		return
	}
	if perr := w.broker.Push(ctx, w.queue, requeued); perr != nil {
		slog.Error("requeue push failed", "queue", w.queue, "error", perr)
	}
}
