package kg

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists graph snapshots between sessions.
type Store interface {
	// Save writes a full snapshot of the graph under the session key.
	Save(ctx context.Context, session string, g *Graph) error

	// Load reads a snapshot back into a fresh graph. A session with no
	// saved snapshot yields an empty graph, not an error.
	Load(ctx context.Context, session string) (*Graph, error)

	// Delete removes a saved snapshot.
	Delete(ctx context.Context, session string) error

	// Close releases the underlying connection.
	Close() error
}

// RedisOptions configures the Redis connection for a RedisStore.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// RedisStore implements Store using go-redis/v9. Each entity and relation
// is a JSON value under its own key, with per-session index sets so a load
// never scans the keyspace.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed graph store with the given options.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func entityKey(session, id string) string {
	return fmt.Sprintf("kg:%s:entity:%s", session, id)
}

func relationKey(session, key string) string {
	return fmt.Sprintf("kg:%s:relation:%s", session, key)
}

func entityIndex(session string) string {
	return fmt.Sprintf("kg:%s:entities", session)
}

func relationIndex(session string) string {
	return fmt.Sprintf("kg:%s:relations", session)
}

func metaKey(session string) string {
	return fmt.Sprintf("kg:%s:meta", session)
}

// Save writes a full snapshot of the graph. The old snapshot is replaced
// in a single pipeline so a concurrent Load sees either version, not a mix.
func (s *RedisStore) Save(ctx context.Context, session string, g *Graph) error {
	snapshot := g.Export()

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, entityIndex(session), relationIndex(session))

	for id, e := range snapshot.Entities {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entity %s: %w", id, err)
		}
		pipe.Set(ctx, entityKey(session, id), data, 0)
		pipe.SAdd(ctx, entityIndex(session), id)
	}

	for key, r := range snapshot.Relations {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal relation %s: %w", key, err)
		}
		pipe.Set(ctx, relationKey(session, key), data, 0)
		pipe.SAdd(ctx, relationIndex(session), key)
	}

	pipe.HSet(ctx, metaKey(session), "root", g.Root())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save graph for session %s: %w", session, err)
	}
	return nil
}

// Load reads a snapshot back into a fresh graph.
func (s *RedisStore) Load(ctx context.Context, session string) (*Graph, error) {
	g := New()

	root, err := s.client.HGet(ctx, metaKey(session), "root").Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to load graph meta for session %s: %w", session, err)
	}
	if root != "" {
		g.SetRoot(root)
	}

	ids, err := s.client.SMembers(ctx, entityIndex(session)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list entities for session %s: %w", session, err)
	}

	for _, id := range ids {
		data, err := s.client.Get(ctx, entityKey(session, id)).Result()
		if err != nil {
			if err == redis.Nil {
				// Index entry without a value, skip
				continue
			}
			return nil, fmt.Errorf("failed to load entity %s: %w", id, err)
		}
		var e Entity
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity %s: %w", id, err)
		}
		if _, err := g.UpsertEntity(e.ID, e.Type, e.Attributes); err != nil {
			return nil, err
		}
	}

	keys, err := s.client.SMembers(ctx, relationIndex(session)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list relations for session %s: %w", session, err)
	}

	for _, key := range keys {
		data, err := s.client.Get(ctx, relationKey(session, key)).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("failed to load relation %s: %w", key, err)
		}
		var r Relation
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal relation %s: %w", key, err)
		}
		if _, err := g.UpsertRelation(r.Source, r.Target, r.Type, r.Attributes); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Delete removes every key belonging to the session's snapshot.
func (s *RedisStore) Delete(ctx context.Context, session string) error {
	ids, err := s.client.SMembers(ctx, entityIndex(session)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to list entities for session %s: %w", session, err)
	}
	keys, err := s.client.SMembers(ctx, relationIndex(session)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to list relations for session %s: %w", session, err)
	}

	del := []string{entityIndex(session), relationIndex(session), metaKey(session)}
	for _, id := range ids {
		del = append(del, entityKey(session, id))
	}
	for _, key := range keys {
		del = append(del, relationKey(session, key))
	}

	if err := s.client.Del(ctx, del...).Err(); err != nil {
		return fmt.Errorf("failed to delete graph for session %s: %w", session, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
