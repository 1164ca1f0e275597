package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rianhasansiam/digicam/internal/models"
)

const presenceTTL = 24 * time.Hour

// RedisStore mirrors live presence for out-of-process readers (the admin
// dashboard polls it) and backs the HTTP rate limiter. The relay's own
// registry stays in-memory; this is an observability mirror, not the
// source of truth for routing.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that shares the pool.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// PresenceEntry is the stored presence snapshot for one identity.
type PresenceEntry struct {
	Role     string    `json:"role"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// presenceKey returns the key for an identity's presence snapshot.
func presenceKey(identityID string) string {
	return fmt.Sprintf("presence:%s", identityID)
}

// SetPresence records an identity's presence snapshot.
func (s *RedisStore) SetPresence(ctx context.Context, identityID string, role models.Role, online bool, lastSeen time.Time) error {
	entry := PresenceEntry{
		Role:     string(role),
		Online:   online,
		LastSeen: lastSeen,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, presenceKey(identityID), data, presenceTTL).Err()
}

// GetPresence retrieves an identity's presence snapshot.
// Returns nil if the identity has never been seen (or the entry expired).
func (s *RedisStore) GetPresence(ctx context.Context, identityID string) (*PresenceEntry, error) {
	data, err := s.client.Get(ctx, presenceKey(identityID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var entry PresenceEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
