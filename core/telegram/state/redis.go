package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/cardbot/core/logger"
)

const defaultUpdateRetries = 5

// RedisConfig describes the Redis session backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
	// TTLSeconds expires idle sessions; 0 keeps them forever.
	TTLSeconds int `yaml:"ttl_seconds" envconfig:"SESSION_TTL_SECONDS"`
}

// TTL converts TTLSeconds to a duration.
func (c RedisConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// NewRedisClient opens a client and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     50,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	logger.Info(ctx, "session", "redis.connect",
		slog.String("status", "ok"),
		slog.String("host", cfg.Addr),
		slog.Int("db", cfg.DB),
	)
	return client, nil
}

type redisStore struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	retries int
}

// NewRedisStore stores sessions as JSON under "<prefix>:session:<userID>".
// A key that expired through TTL reads as a missing session.
func NewRedisStore(client *redis.Client, cfg RedisConfig) Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "cardbot"
	}
	return &redisStore{
		client:  client,
		prefix:  prefix,
		ttl:     cfg.TTL(),
		retries: defaultUpdateRetries,
	}
}

func (s *redisStore) key(userID int64) string {
	return s.prefix + ":session:" + strconv.FormatInt(userID, 10)
}

func (s *redisStore) Get(ctx context.Context, userID int64) (Session, bool, error) {
	return s.load(ctx, s.client, s.key(userID))
}

func (s *redisStore) load(ctx context.Context, c redis.Cmdable, key string) (Session, bool, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return emptySession(), false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	sess := emptySession()
	if err := json.Unmarshal(data, &sess); err != nil {
		// A corrupt blob is treated like an expired one.
		logger.Warn(ctx, "session", "session.decode",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return emptySession(), false, nil
	}
	if sess.Data == nil {
		sess.Data = make(map[string]string)
	}
	return sess, true, nil
}

func (s *redisStore) Set(ctx context.Context, userID int64, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrUnavailable, err)
	}
	return nil
}

// Update runs an optimistic WATCH/MULTI transaction and retries when the key
// changed concurrently.
func (s *redisStore) Update(ctx context.Context, userID int64, fn func(*Session) error) error {
	key := s.key(userID)
	var fnErr error
	txf := func(tx *redis.Tx) error {
		sess, _, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(&sess); err != nil {
			fnErr = err
			return err
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= s.retries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case fnErr != nil:
			return fnErr
		case errors.Is(err, redis.TxFailedErr):
			logger.Debug(ctx, "session", "session.update.retry",
				slog.Int("attempts", attempt),
			)
			continue
		case errors.Is(err, ErrUnavailable):
			return err
		default:
			return fmt.Errorf("%w: update: %v", ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%w: update: too many concurrent writers for %s", ErrUnavailable, key)
}

func (s *redisStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: delete: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
