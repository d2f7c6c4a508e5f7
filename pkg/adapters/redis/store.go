package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/enginegate/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces demo keys.
const DefaultPrefix = "enginegate:demo:"

// noExpiry is the index score used when recordings never expire (2100-01-01).
const noExpiry = 4102444800

// Store implements ports.DemoStore using Redis.
// Recordings are stored as raw strings; a sorted set indexes them by expiry.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for recordings.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for recordings.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New connects to address and creates a store.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(demoID string) string {
	return s.prefix + demoID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the recording and indexes it.
func (s *Store) Save(ctx context.Context, demoID string, demo []byte) error {
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = noExpiry
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(demoID), demo, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: demoID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save demo to redis: %w", err)
	}
	return nil
}

// Load retrieves a recording.
func (s *Store) Load(ctx context.Context, demoID string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(demoID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrDemoNotFound
		}
		return nil, fmt.Errorf("failed to get demo from redis: %w", err)
	}
	return data, nil
}

// Delete removes a recording and its index entry.
func (s *Store) Delete(ctx context.Context, demoID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(demoID))
	pipe.ZRem(ctx, s.indexKey(), demoID)

	_, err := pipe.Exec(ctx)
	return err
}

// List prunes expired index entries and returns the remaining IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired demos: %w", err)
	}

	demos, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list demos: %w", err)
	}
	return demos, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
