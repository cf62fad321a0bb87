package redis_session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mohammad-safakhou/briefer/session"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisSessionStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	defer client.Close()

	store := NewRedisSessionStore(client)
	sess, err := store.Create(ctx, "acme", time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Validate(ctx, sess.ID, "acme", time.Minute); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := store.Validate(ctx, sess.ID, "other", time.Minute); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected tenant mismatch to be not found, got %v", err)
	}
	ttl, err := client.TTL(ctx, keyPrefix+sess.ID).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("expected ttl on key, got %v (%v)", ttl, err)
	}
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Validate(ctx, sess.ID, "acme", time.Minute); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
