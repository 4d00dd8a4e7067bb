package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock is held by another owner")

type RedisCache struct {
	client *redis.Client
	config *RedisConfig
}

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
}

// Lock is a held lease. Token identifies the holder so only it can release.
type Lock struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// unlockScript deletes the key only while it still carries the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisCache(config *RedisConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := rdb.Ping(ctx).Result()
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return NewRedisCacheFromClient(rdb, config), nil
}

func NewRedisCacheFromClient(client *redis.Client, config *RedisConfig) *RedisCache {
	if config == nil {
		config = &RedisConfig{}
	}
	return &RedisCache{
		client: client,
		config: config,
	}
}

func (r *RedisCache) key(name string) string {
	return r.config.KeyPrefix + name
}

// Lock takes a lease on name for ttl. It returns ErrLockHeld if the lease
// belongs to someone else.
func (r *RedisCache) Lock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{
		Key:       r.key("lock:" + name),
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(ttl),
	}

	ok, err := r.client.SetNX(ctx, lock.Key, lock.Token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return lock, nil
}

// Unlock releases the lease if it is still held by lock's token.
func (r *RedisCache) Unlock(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	if err := unlockScript.Run(ctx, r.client, []string{lock.Key}, lock.Token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", lock.Key, err)
	}
	return nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
