// Package queue is a small Redis-list job queue used to hand off charge
// submission and approval-email delivery to background workers. Delivery is
// at-least-once with a bounded number of redeliveries; jobs are idempotent
// against the durable transaction state, so a redelivered job that finds its
// work already done is a no-op.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Queue names.
const (
	ChargeQueue        = "agentpay:queue:stripe-charge"
	ApprovalEmailQueue = "agentpay:queue:approval-email"
)

// Job is the payload carried through a queue.
type Job struct {
	TransactionID string `json:"transaction_id"`
	Attempts      int    `json:"attempts"`
}

// ErrEmpty is returned by Pop when no job arrived within the timeout.
var ErrEmpty = errors.New("queue empty")

// Broker is the transport under the queue: a Redis list in production, an
// in-process channel in tests.
type Broker interface {
	Push(ctx context.Context, queue string, payload []byte) error
	// Pop blocks up to timeout for the next payload and returns ErrEmpty
	// on timeout.
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
	// Len reports the current queue depth.
	Len(ctx context.Context, queue string) (int64, error)
}

// Client enqueues jobs.
type Client struct {
	broker Broker
}

// NewClient creates a queue client on the given broker.
func NewClient(broker Broker) *Client {
	return &Client{broker: broker}
}

// Enqueue adds a fresh job for the transaction to the named queue.
func (c *Client) Enqueue(ctx context.Context, queue, transactionID string) error {
	payload, err := json.Marshal(Job{TransactionID: transactionID})
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if err := c.broker.Push(ctx, queue, payload); err != nil {
		return fmt.Errorf("enqueueing to %s: %w", queue, err)
	}
	return nil
}

// Depth reports the number of waiting jobs in the named queue.
func (c *Client) Depth(ctx context.Context, queue string) (int64, error) {
	return c.broker.Len(ctx, queue)
}
