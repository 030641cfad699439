// Package redis disponibiliza o contador remoto sobre o protocolo nativo do Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
	"github.com/JeanGrijp/quota-limiter/internal/core/ports"
)

type Storage struct {
	client redis.UniversalClient
}

var _ ports.Counter = (*Storage)(nil)

type Config struct {
	URL     string
	Timeout time.Duration
}

// New cria o cliente a partir de uma URL redis:// ou rediss://.
// Não faz ping: store fora do ar na subida não impede o processo de servir.
func New(cfg Config) (*Storage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	opts.MaxRetries = 0

	return NewWithClient(redis.NewClient(opts)), nil
}

func NewWithClient(client redis.UniversalClient) *Storage {
	return &Storage{client: client}
}

func (s *Storage) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

// Increment roda INCR e EXPIRE NX numa transação, então a chave nunca fica sem TTL.
func (s *Storage) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	counter := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: redis incr %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return counter.Val(), nil
}

func (s *Storage) Decrement(ctx context.Context, key string) error {
	if err := s.client.Decr(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: redis decr %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) (int64, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: redis get %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: redis get %s: non-integer value %q", domain.ErrStoreUnavailable, key, raw)
	}
	return n, nil
}
