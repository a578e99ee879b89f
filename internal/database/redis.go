package database

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ConnectRedis opens the client used by the cross-instance relay and checks it answers.
func ConnectRedis(ctx context.Context, addr string, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to reach redis at %s: %w", addr, err)
	}
	return client, nil
}
