package async

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "certverify:attempt:"

// RedisStore keeps outcomes in redis with a TTL so several daemons can
// answer status queries for the same attempt.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to redis with short timeouts.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Put(ctx context.Context, o Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+o.AttemptID.String(), data, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (Outcome, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Outcome{}, common.ErrNotFound
	}
	if err != nil {
		return Outcome{}, err
	}
	return decodeOutcome(data)
}

// Healthy verifies redis connectivity.
func (s *RedisStore) Healthy(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}
