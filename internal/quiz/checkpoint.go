package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-progress/internal/platform/cache"
)

// Checkpoint is what survives a reload of an in-progress session: its ID
// (which seeds the question order) and its absolute deadline.
type Checkpoint struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Deadline  time.Time `json:"deadline,omitzero"`
}

// CheckpointStore persists checkpoints keyed by SessionKey.
type CheckpointStore interface {
	Save(ctx context.Context, key string, cp Checkpoint, ttl time.Duration) error
	Load(ctx context.Context, key string) (Checkpoint, bool, error)
	Delete(ctx context.Context, key string) error
}

// MemoryCheckpoints keeps checkpoints in process memory.
type MemoryCheckpoints struct {
	mu      sync.Mutex
	entries map[string]memoryCheckpoint
	now     func() time.Time
}

type memoryCheckpoint struct {
	cp        Checkpoint
	expiresAt time.Time
}

func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{
		entries: make(map[string]memoryCheckpoint),
		now:     time.Now,
	}
}

func (m *MemoryCheckpoints) Save(_ context.Context, key string, cp Checkpoint, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryCheckpoint{cp: cp, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryCheckpoints) Load(_ context.Context, key string) (Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Checkpoint{}, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return Checkpoint{}, false, nil
	}
	return e.cp, true, nil
}

func (m *MemoryCheckpoints) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// RedisCheckpoints stores checkpoints in Redis/Dragonfly so deadlines
// survive restarts and are shared between replicas.
type RedisCheckpoints struct {
	client *redis.Client
}

func NewRedisCheckpoints(client *redis.Client) *RedisCheckpoints {
	return &RedisCheckpoints{client: client}
}

func (r *RedisCheckpoints) Save(ctx context.Context, key string, cp Checkpoint, ttl time.Duration) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := r.client.Set(ctx, checkpointKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (r *RedisCheckpoints) Load(ctx context.Context, key string) (Checkpoint, bool, error) {
	data, err := r.client.Get(ctx, checkpointKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("load checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, true, nil
}

func (r *RedisCheckpoints) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, checkpointKey(key)).Err(); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

func checkpointKey(key string) string {
	return cache.Key("quiz", "checkpoint", key)
}
