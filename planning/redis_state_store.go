package planning

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/conversant-dev/conversant/core"
	"github.com/conversant-dev/conversant/telemetry"
)

const (
	defaultSessionKeyPrefix = "conversant:session:"
	defaultSessionTTL       = 24 * time.Hour
)

// RedisStateStoreOption configures the Redis state store.
type RedisStateStoreOption func(*redisStateStoreConfig)

type redisStateStoreConfig struct {
	redisURL   string
	redisDB    int
	keyPrefix  string
	ttl        time.Duration
	serializer *BlobSerializer
	logger     core.Logger
}

// WithRedisURL sets the Redis connection URL.
func WithRedisURL(url string) RedisStateStoreOption {
	return func(c *redisStateStoreConfig) { c.redisURL = url }
}

// WithRedisDB sets the Redis database number.
func WithRedisDB(db int) RedisStateStoreOption {
	return func(c *redisStateStoreConfig) { c.redisDB = db }
}

// WithSessionKeyPrefix sets a custom key prefix for session records.
func WithSessionKeyPrefix(prefix string) RedisStateStoreOption {
	return func(c *redisStateStoreConfig) { c.keyPrefix = prefix }
}

// WithSessionTTL sets the expiry for stored sessions. Zero disables expiry.
func WithSessionTTL(ttl time.Duration) RedisStateStoreOption {
	return func(c *redisStateStoreConfig) { c.ttl = ttl }
}

// WithStateSerializer sets the blob serializer used for the stored bytes.
// Supply the same serializer the blobs of this deployment use so migrations
// apply uniformly.
func WithStateSerializer(serializer *BlobSerializer) RedisStateStoreOption {
	return func(c *redisStateStoreConfig) {
		if serializer != nil {
			c.serializer = serializer
		}
	}
}

// WithStateStoreLogger sets the logger for store operations.
func WithStateStoreLogger(logger core.Logger) RedisStateStoreOption {
	return func(c *redisStateStoreConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// RedisStateStore is a Redis-backed StateStore. States are stored as
// integrity-checked blobs, so a corrupted record fails loudly on Load instead
// of resurrecting a half-written session.
//
// Environment variable precedence (explicit options override):
//   - CONVERSANT_REDIS_URL or REDIS_URL: connection URL (default: localhost:6379)
//   - CONVERSANT_REDIS_DB: database number (default: 0)
//   - CONVERSANT_SESSION_TTL: session expiry (default: 24h)
//   - CONVERSANT_SESSION_KEY_PREFIX: key prefix (default: conversant:session:)
type RedisStateStore struct {
	client     *redis.Client
	serializer *BlobSerializer
	keyPrefix  string
	ttl        time.Duration
	logger     core.Logger
}

// NewRedisStateStore creates a Redis-backed store and verifies the
// connection.
func NewRedisStateStore(opts ...RedisStateStoreOption) (*RedisStateStore, error) {
	cfg := &redisStateStoreConfig{
		redisURL:   redisURLFromEnv(),
		redisDB:    envInt("CONVERSANT_REDIS_DB", 0),
		keyPrefix:  envString("CONVERSANT_SESSION_KEY_PREFIX", defaultSessionKeyPrefix),
		ttl:        envDuration("CONVERSANT_SESSION_TTL", defaultSessionTTL),
		serializer: NewBlobSerializer(),
		logger:     &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	redisOpt, err := redis.ParseURL(cfg.redisURL)
	if err != nil {
		// Accept a bare host:port address too.
		redisOpt = &redis.Options{Addr: cfg.redisURL}
	}
	redisOpt.DB = cfg.redisDB

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed at %s (DB %d): %w\n"+
			"Hint: check CONVERSANT_REDIS_URL or REDIS_URL, or use WithRedisURL()",
			cfg.redisURL, cfg.redisDB, err)
	}

	cfg.logger.Info("Redis state store initialized", map[string]interface{}{
		"redis_addr": redisOpt.Addr,
		"redis_db":   cfg.redisDB,
		"key_prefix": cfg.keyPrefix,
		"ttl":        cfg.ttl.String(),
	})

	return &RedisStateStore{
		client:     client,
		serializer: cfg.serializer,
		keyPrefix:  cfg.keyPrefix,
		ttl:        cfg.ttl,
		logger:     cfg.logger,
	}, nil
}

// Load fetches and deserializes the session's state. An unknown session
// yields (nil, nil); a corrupted or unmigratable blob propagates its error.
func (s *RedisStateStore) Load(ctx context.Context, sessionID string) (*ConversationState, error) {
	start := time.Now()
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		telemetry.Counter("conversant.state_store.ops", "op", "load", "status", "error")
		return nil, fmt.Errorf("redis load session %s: %w", sessionID, err)
	}

	state, err := s.serializer.Deserialize(data)
	if err != nil {
		telemetry.Counter("conversant.state_store.ops", "op", "load", "status", "corrupt")
		s.logger.Error("Stored session failed deserialization", map[string]interface{}{
			"operation":  "state_load",
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return nil, err
	}

	telemetry.Counter("conversant.state_store.ops", "op", "load", "status", "ok")
	telemetry.Duration("conversant.state_store.load_ms", start)
	return state, nil
}

// Save serializes and stores the session's state, refreshing its TTL.
func (s *RedisStateStore) Save(ctx context.Context, sessionID string, state *ConversationState) error {
	start := time.Now()
	blob, err := s.serializer.Serialize(state)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.key(sessionID), blob, s.ttl).Err(); err != nil {
		telemetry.Counter("conversant.state_store.ops", "op", "save", "status", "error")
		return fmt.Errorf("redis save session %s: %w", sessionID, err)
	}

	telemetry.Counter("conversant.state_store.ops", "op", "save", "status", "ok")
	telemetry.Duration("conversant.state_store.save_ms", start)
	s.logger.Debug("Session saved", map[string]interface{}{
		"operation":  "state_save",
		"session_id": sessionID,
		"blob_bytes": len(blob),
	})
	return nil
}

// Delete removes a session's stored state.
func (s *RedisStateStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}

func (s *RedisStateStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

func redisURLFromEnv() string {
	if v := os.Getenv("CONVERSANT_REDIS_URL"); v != "" {
		return v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		return v
	}
	return "redis://localhost:6379"
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
