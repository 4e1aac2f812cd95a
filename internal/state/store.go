package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"modes1090/internal/tracker"
)

// DefaultTTL keeps a mirrored aircraft slightly longer than the tracker does.
const DefaultTTL = 2 * time.Minute

// RedisClientInterface defines the Redis operations used by the store
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Record is the stored form of an aircraft.
type Record struct {
	tracker.Aircraft
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Store mirrors the live aircraft table into Redis so other processes can
// read it. Keys expire on their own if this process stops.
type Store struct {
	client RedisClientInterface
	ttl    time.Duration
	logger *logrus.Logger
}

// New connects to the Redis server at addr.
func New(addr string, ttl time.Duration, logger *logrus.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithField("addr", addr).Info("Mirroring aircraft state to Redis")
	return NewWithClient(client, ttl, logger), nil
}

// NewWithClient creates a store over an existing client. A zero ttl means
// DefaultTTL.
func NewWithClient(client RedisClientInterface, ttl time.Duration, logger *logrus.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl, logger: logger}
}

// Key returns the Redis key for an aircraft.
func Key(hex string) string {
	return fmt.Sprintf("aircraft:%s", hex)
}

// Save writes one aircraft.
func (s *Store) Save(ctx context.Context, ac tracker.Aircraft) error {
	data, err := json.Marshal(Record{Aircraft: ac, FirstSeen: ac.FirstSeen, LastSeen: ac.LastSeen})
	if err != nil {
		return fmt.Errorf("failed to marshal aircraft: %w", err)
	}
	if err := s.client.Set(ctx, Key(ac.Hex), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store aircraft %s: %w", ac.Hex, err)
	}
	return nil
}

// Sync saves every aircraft in list and returns the first error, continuing
// past failures.
func (s *Store) Sync(ctx context.Context, list []tracker.Aircraft) error {
	var first error
	failed := 0
	for _, ac := range list {
		if err := s.Save(ctx, ac); err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	if failed > 0 {
		s.logger.WithFields(logrus.Fields{
			"failed": failed,
			"total":  len(list),
		}).Warn("Aircraft state sync incomplete")
	}
	return first
}

// Get reads one aircraft; it returns nil, nil when the key does not exist.
func (s *Store) Get(ctx context.Context, hex string) (*Record, error) {
	data, err := s.client.Get(ctx, Key(hex)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aircraft %s: %w", hex, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal aircraft %s: %w", hex, err)
	}
	rec.Aircraft.FirstSeen = rec.FirstSeen
	rec.Aircraft.LastSeen = rec.LastSeen
	return &rec, nil
}

// Delete removes one aircraft.
func (s *Store) Delete(ctx context.Context, hex string) error {
	return s.client.Del(ctx, Key(hex)).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
