package cache

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(logger *zap.Logger) (*redis.Client, error) {
	host := getEnv("REDIS_HOST", "localhost")
	port := getEnv("REDIS_PORT", "6379")
	password := getEnv("REDIS_PASSWORD", "")

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

func unlockKey(productRef, payerRef string) string {
	return fmt.Sprintf("unlock:%s:%s", payerRef, productRef)
}

// GetUnlocked reads the cached unlock flag. A miss returns redis.Nil; the
// caller falls through to the durable store.
func GetUnlocked(ctx context.Context, rdb *redis.Client, productRef, payerRef string) (bool, error) {
	val, err := rdb.Get(ctx, unlockKey(productRef, payerRef)).Result()
	if err != nil {
		return false, err
	}
	return val == "1", nil
}

func SetUnlocked(ctx context.Context, rdb *redis.Client, productRef, payerRef string, ttl time.Duration) error {
	return rdb.Set(ctx, unlockKey(productRef, payerRef), "1", ttl).Err()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
