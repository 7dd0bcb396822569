package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker backs queues with Redis lists (LPUSH/BRPOP).
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker wraps an existing client. The caller owns its lifecycle.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Push(ctx context.Context, queue string, payload []byte) error {
	if err := b.client.LPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("pushing to %s: %w", queue, err)
	}
	return nil
}

func (b *RedisBroker) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	res, err := b.client.BRPop(ctx, timeout, queue).Result()
	if err == redis.Nil {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("popping from %s: %w", queue, err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("popping from %s: unexpected reply %v", queue, res)
	}
	return []byte(res[1]), nil
}

func (b *RedisBroker) Len(ctx context.Context, queue string) (int64, error) {
	n, err := b.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("measuring %s: %w", queue, err)
	}
	return n, nil
}

// MemoryBroker is an in-process Broker for tests and single-node development.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]chan []byte
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string]chan []byte)}
}

func (b *MemoryBroker) channel(queue string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.queues[queue]
	if !ok {
		ch = make(chan []byte, 1024)
		b.queues[queue] = ch
	}
	return ch
}

func (b *MemoryBroker) Push(_ context.Context, queue string, payload []byte) error {
	b.channel(queue) <- payload
	return nil
}

func (b *MemoryBroker) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	select {
	case payload := <-b.channel(queue):
		return payload, nil
	case <-time.After(timeout):
		return nil, ErrEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *MemoryBroker) Len(_ context.Context, queue string) (int64, error) {
	return int64(len(b.channel(queue))), nil
}
