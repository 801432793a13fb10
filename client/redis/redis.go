package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gateway/config"

	"github.com/redis/go-redis/v9"
)

// InitRedis initializes a Redis client with the provided logger and Redis configuration.
// It attempts to connect to the Redis server and logs the connection status.
//
// Parameters:
// - logger: A pointer to the slog.Logger instance for logging messages.
// - redisConfig: The Redis configuration containing host, port, password and database.
//
// Returns:
// - *redis.Client: A pointer to the initialized Redis client, or nil if the connection fails.
// - error: The connection error, if any.
func InitRedis(logger *slog.Logger, redisConfig config.RedisConfig) (*redis.Client, error) {
	host := redisConfig.Host
	if host == "" {
		host = "localhost"
	}
	port := redisConfig.Port
	if port == "" {
		port = "6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", client.Options().Addr, err)
	}

	logger.Info("Successfully connected to Redis", slog.String("addr", client.Options().Addr))
	return client, nil
}
