// Package notify delivers import lifecycle events to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/JonMunkholm/catalogimport/internal/core"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "catalog.import.events"

// VersionKey is the cache version counter of a scope. Readers embed it in
// their cache keys; bumping it invalidates every cached listing at once.
func VersionKey(scope string) string {
	return "catalog:" + scope + ":version"
}

// RedisClient is the subset of *redis.Client the notifier uses.
type RedisClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes every event as JSON and bumps the scope's cache version
// when an import is confirmed.
type Redis struct {
	client  RedisClient
	channel string
}

var _ core.Notifier = (*Redis)(nil)

// NewRedis returns a notifier publishing on channel (DefaultChannel if empty).
func NewRedis(client RedisClient, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel}
}

// NewRedisClient connects using a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (r *Redis) Notify(ctx context.Context, e core.Event) error {
	var errs []error
	if e.Action == core.EventConfirmed {
		if err := r.client.Incr(ctx, VersionKey(e.Scope)).Err(); err != nil {
			errs = append(errs, fmt.Errorf("bump catalog version: %w", err))
		}
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("encode event: %w", err))...)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		errs = append(errs, fmt.Errorf("publish event: %w", err))
	}
	return errors.Join(errs...)
}
