package helpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// GetRedisURL returns the Redis URL from environment or default.
func GetRedisURL() string {
	return getEnvOrDefault("TEST_REDIS_URL", "redis://127.0.0.1:6379/0")
}

// IsRedisAvailable checks if Redis is available.
func IsRedisAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := CreateRedisClient()
	if err != nil {
		return false
	}
	defer client.Close()

	return client.Ping(ctx).Err() == nil
}

// SkipIfRedisUnavailable skips the test if Redis is not available.
func SkipIfRedisUnavailable(t *testing.T) {
	t.Helper()
	if !IsRedisAvailable() {
		t.Skip("Redis not available at", GetRedisURL(), "- skipping test")
	}
}

// CreateRedisClient creates a Redis client for testing.
func CreateRedisClient() (*redis.Client, error) {
	opts, err := redis.ParseURL(GetRedisURL())
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// CleanupRedis removes all keys with the given prefix.
func CleanupRedis(client *redis.Client, prefix string) error {
	ctx := context.Background()
	iter := client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// GenerateTestKeyPrefix generates a unique key prefix for test isolation.
func GenerateTestKeyPrefix(testName string) string {
	return fmt.Sprintf("test:%s:%d:", testName, time.Now().UnixNano())
}
