package redis

import (
	"context"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/taskchase/backend/repository"
)

type callbackDeduper struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewCallbackDeduper creates a Redis-backed dedupe store for inbound
// callbacks. Keys expire after ttl since a webhook sender retries within a
// bounded window.
func NewCallbackDeduper(client *redislib.Client, ttl time.Duration) repository.CallbackDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &callbackDeduper{
		client: client,
		prefix: "callback:",
		ttl:    ttl,
	}
}

func (d *callbackDeduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(key), 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (d *callbackDeduper) key(k string) string {
	return fmt.Sprintf("%s%s", d.prefix, k)
}
