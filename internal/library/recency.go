package library

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"setback/internal/domain"
)

// RecencyStore keeps a bounded, most-recent-first window of template ids per
// worker and category. Implementations must key strictly by worker id.
type RecencyStore interface {
	Recent(ctx context.Context, workerID string, category domain.Category) ([]string, error)
	Push(ctx context.Context, workerID string, category domain.Category, templateID string) error
	Clear(ctx context.Context, workerID string) error
}

// MemoryRecency is the in-process store. Each worker has its own lock so
// concurrent workers never contend on one another's windows.
type MemoryRecency struct {
	size    int
	mu      sync.Mutex
	workers map[string]*workerWindows
}

type workerWindows struct {
	mu      sync.Mutex
	windows map[domain.Category][]string
}

// NewMemoryRecency returns a store with the given window size (<=0 means default).
func NewMemoryRecency(size int) *MemoryRecency {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &MemoryRecency{size: size, workers: make(map[string]*workerWindows)}
}

func (m *MemoryRecency) worker(workerID string, create bool) *workerWindows {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[workerID]
	if !ok && create {
		w = &workerWindows{windows: make(map[domain.Category][]string)}
		m.workers[workerID] = w
	}
	return w
}

func (m *MemoryRecency) Recent(_ context.Context, workerID string, category domain.Category) ([]string, error) {
	w := m.worker(workerID, false)
	if w == nil {
		return nil, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.windows[category]...), nil
}

func (m *MemoryRecency) Push(_ context.Context, workerID string, category domain.Category, templateID string) error {
	w := m.worker(workerID, true)
	w.mu.Lock()
	defer w.mu.Unlock()
	win := append([]string{templateID}, w.windows[category]...)
	if len(win) > m.size {
		win = win[:m.size]
	}
	w.windows[category] = win
	return nil
}

func (m *MemoryRecency) Clear(_ context.Context, workerID string) error {
	m.mu.Lock()
	delete(m.workers, workerID)
	m.mu.Unlock()
	return nil
}

// RedisRecency stores windows as capped Redis lists so several engine
// processes can share one worker's history. Keys are "{prefix}:{worker}:{category}".
type RedisRecency struct {
	client redis.Cmdable
	prefix string
	size   int
	ttl    time.Duration
}

// RedisRecencyConfig configures RedisRecency.
type RedisRecencyConfig struct {
	Prefix string        // default "recency"
	Size   int           // default DefaultWindowSize
	TTL    time.Duration // 0 keeps windows until cleared
}

// NewRedisRecency wraps a go-redis client.
func NewRedisRecency(client redis.Cmdable, cfg RedisRecencyConfig) *RedisRecency {
	if cfg.Prefix == "" {
		cfg.Prefix = "recency"
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultWindowSize
	}
	return &RedisRecency{client: client, prefix: cfg.Prefix, size: cfg.Size, ttl: cfg.TTL}
}

func (r *RedisRecency) key(workerID string, category domain.Category) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, workerID, category)
}

func (r *RedisRecency) Recent(ctx context.Context, workerID string, category domain.Category) ([]string, error) {
	ids, err := r.client.LRange(ctx, r.key(workerID, category), 0, int64(r.size-1)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return ids, err
}

func (r *RedisRecency) Push(ctx context.Context, workerID string, category domain.Category, templateID string) error {
	key := r.key(workerID, category)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, templateID)
		p.LTrim(ctx, key, 0, int64(r.size-1))
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("push recency %s: %w", key, err)
	}
	return nil
}

// Clear deletes one key per command; the keys of a worker may live in
// different cluster slots.
func (r *RedisRecency) Clear(ctx context.Context, workerID string) error {
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, c := range domain.Categories {
			p.Del(ctx, r.key(workerID, c))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear recency %s: %w", workerID, err)
	}
	return nil
}
