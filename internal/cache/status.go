package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyOrderStatus = "order_status:%s"
	TTLStatus      = 5 * time.Minute
)

var ErrMiss = errors.New("cache miss")

// Entry keeps the owner next to the status so reads can be authorised
// without touching the database.
type Entry struct {
	UserID uint   `json:"user_id"`
	Status string `json:"status"`
}

// StatusCache maps order numbers to their current status. Readers fill it
// with Add; writers drop the key with Delete after commit.
type StatusCache interface {
	Get(ctx context.Context, orderNumber string) (Entry, error)
	Set(ctx context.Context, orderNumber string, e Entry) error
	// Add stores e only when the key is absent.
	Add(ctx context.Context, orderNumber string, e Entry) error
	Delete(ctx context.Context, orderNumber string) error
}

func NewRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

type RedisStatus struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStatus(rdb redis.Cmdable) *RedisStatus {
	return &RedisStatus{rdb: rdb, ttl: TTLStatus}
}

func (c *RedisStatus) Get(ctx context.Context, orderNumber string) (Entry, error) {
	s, err := c.rdb.Get(ctx, fmt.Sprintf(keyOrderStatus, orderNumber)).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, err
	}

	var e Entry
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrMiss, err)
	}
	return e, nil
}

func (c *RedisStatus) Set(ctx context.Context, orderNumber string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(keyOrderStatus, orderNumber), b, c.ttl).Err()
}

func (c *RedisStatus) Add(ctx context.Context, orderNumber string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.SetNX(ctx, fmt.Sprintf(keyOrderStatus, orderNumber), b, c.ttl).Err()
}

func (c *RedisStatus) Delete(ctx context.Context, orderNumber string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(keyOrderStatus, orderNumber)).Err()
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (Entry, error) { return Entry{}, ErrMiss }
func (Nop) Set(context.Context, string, Entry) error   { return nil }
func (Nop) Add(context.Context, string, Entry) error   { return nil }
func (Nop) Delete(context.Context, string) error       { return nil }

// Memory is a process-local StatusCache without expiry.
type Memory struct {
	mu sync.Mutex
	m  map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]Entry)}
}

func (c *Memory) Get(_ context.Context, orderNumber string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[orderNumber]
	if !ok {
		return Entry{}, ErrMiss
	}
	return e, nil
}

func (c *Memory) Set(_ context.Context, orderNumber string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[orderNumber] = e
	return nil
}

func (c *Memory) Add(_ context.Context, orderNumber string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[orderNumber]; !ok {
		c.m[orderNumber] = e
	}
	return nil
}

func (c *Memory) Delete(_ context.Context, orderNumber string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, orderNumber)
	return nil
}
