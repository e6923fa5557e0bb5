// Package slots persists per-conversation dialogue state in Redis. Slots are
// the only cross-turn memory the service has; everything else is recomputed
// per turn.
package slots

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "fern:conversation:"

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

// Store reads and writes conversation slots with a rolling TTL. Every write
// refreshes the conversation's expiry, so state lives as long as the
// conversation stays active.
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger ectologger.Logger
}

// NewStore connects to Redis and verifies the connection.
func NewStore(cfg Config, logger ectologger.Logger) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Infof("Connected to Redis at %s", addr)

	return &Store{rdb: rdb, ttl: cfg.TTL, logger: logger}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func slotKey(conversationID string, slot string) string {
	return keyPrefix + conversationID + ":slot:" + slot
}

// Set writes one slot value and refreshes its TTL.
func (s *Store) Set(ctx context.Context, conversationID string, slot string, value string) error {
	return s.rdb.Set(ctx, slotKey(conversationID, slot), value, s.ttl).Err()
}

// Get reads one slot value. A missing slot returns "" with no error.
func (s *Store) Get(ctx context.Context, conversationID string, slot string) (string, error) {
	value, err := s.rdb.Get(ctx, slotKey(conversationID, slot)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return value, err
}

// RememberCustomerID stores the resolved customer identity for the
// conversation so later turns skip token verification.
func (s *Store) RememberCustomerID(ctx context.Context, conversationID string, customerID int64) error {
	return s.Set(ctx, conversationID, "customer_id", strconv.FormatInt(customerID, 10))
}

// CustomerID reads the remembered customer identity. Returns nil with no
// error when the conversation has none.
func (s *Store) CustomerID(ctx context.Context, conversationID string) (*int64, error) {
	value, err := s.Get(ctx, conversationID, "customer_id")
	if err != nil || value == "" {
		return nil, err
	}

	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		// A corrupt slot is discarded, not propagated.
		s.logger.WithContext(ctx).WithError(err).Warnf("discarding malformed customer_id slot for conversation %s", conversationID)
		return nil, nil
	}
	return &id, nil
}

// Forget removes all slots for a conversation.
func (s *Store) Forget(ctx context.Context, conversationID string) error {
	iter := s.rdb.Scan(ctx, 0, keyPrefix+conversationID+":slot:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}
