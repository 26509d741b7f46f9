package marketdata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"optionlab/internal/errors"
	"optionlab/internal/models"
)

// Status is the state of a collection run.
type Status string

const (
	StatusCollecting Status = "collecting"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// StatusRecord is the progress marker a collector publishes to a result slot.
type StatusRecord struct {
	Status               Status            `json:"status"`
	Progress             int               `json:"progress"`
	CurrentExpiration    string            `json:"currentExpiration,omitempty"`
	TotalExpirations     int               `json:"totalExpirations"`
	CollectedExpirations int               `json:"collectedExpirations"`
	TotalOptions         int               `json:"totalOptions"`
	Error                string            `json:"error,omitempty"`
	Timestamp            int64             `json:"timestamp"`
	Contracts            []models.Contract `json:"contracts,omitempty"`
}

// Finished reports whether the record is terminal.
func (r StatusRecord) Finished() bool {
	return r.Status == StatusCompleted || r.Status == StatusError
}

// ResultSlot is shared storage between a collector and the requests polling it.
// Load returns errors.ErrNotFound when nothing has been published under key.
type ResultSlot interface {
	Load(ctx context.Context, key string) (StatusRecord, error)
	Store(ctx context.Context, key string, rec StatusRecord) error
}

// MemorySlot is an in-process ResultSlot.
type MemorySlot struct {
	mu      sync.RWMutex
	records map[string]StatusRecord
}

// NewMemorySlot creates an empty in-process slot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{records: make(map[string]StatusRecord)}
}

// Load returns the record stored under key.
func (s *MemorySlot) Load(ctx context.Context, key string) (StatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return StatusRecord{}, errors.Wrapf(errors.ErrNotFound, "no collection status for %s", key)
	}
	return rec, nil
}

// Store replaces the record under key.
func (s *MemorySlot) Store(ctx context.Context, key string, rec StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = rec
	return nil
}

// RedisClient is the subset of *redis.Client used by RedisSlot.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisSlot keeps status records as JSON strings in redis, so a collector in another
// process can publish results.
type RedisSlot struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisSlot creates a slot over client. Keys are prefixed with prefix and expire
// after ttl (0 keeps them).
func NewRedisSlot(client RedisClient, prefix string, ttl time.Duration) *RedisSlot {
	return &RedisSlot{client: client, prefix: prefix, ttl: ttl}
}

// Load retrieves and decodes the record under key.
func (s *RedisSlot) Load(ctx context.Context, key string) (StatusRecord, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return StatusRecord{}, errors.Wrapf(errors.ErrNotFound, "no collection status for %s", key)
	}
	if err != nil {
		return StatusRecord{}, errors.Wrapf(err, "failed to get collection status from redis: key=%s", key)
	}

	var rec StatusRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return StatusRecord{}, errors.Wrapf(err, "failed to unmarshal collection status: key=%s", key)
	}
	return rec, nil
}

// Store encodes and saves rec under key.
func (s *RedisSlot) Store(ctx context.Context, key string, rec StatusRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal collection status: key=%s", key)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to save collection status to redis: key=%s", key)
	}
	return nil
}

// SlotKey is the conventional slot key of a ticker's collection.
func SlotKey(ticker string) string {
	return "collection:" + ticker
}
