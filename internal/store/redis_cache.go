// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/leadchat/internal/models"
)

const (
	redisKeyPrefix  = "leadchat:widget-config:"
	defaultRedisTTL = 30 * time.Second
)

// fillScript stores a config unless the version key already holds an equal
// or newer UpdatedAt.
//
//	KEYS[1] config key, KEYS[2] version key
//	ARGV[1] encoded config, ARGV[2] UpdatedAt unix nanos, ARGV[3] ttl ms
var fillScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[2])
if cur and tonumber(cur) >= tonumber(ARGV[2]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

func redisKeys(projectID string) (configKey, versionKey string) {
	configKey = redisKeyPrefix + projectID
	return configKey, configKey + ":version"
}

// RedisConfigCache shares widget configs between API instances.
type RedisConfigCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisConfigCache parses a redis:// URL. No connection is made until first use.
func NewRedisConfigCache(url string, ttl time.Duration) (*RedisConfigCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisConfigCacheFromClient(redis.NewClient(opts), ttl), nil
}

// NewRedisConfigCacheFromClient wraps an existing client.
func NewRedisConfigCacheFromClient(client *redis.Client, ttl time.Duration) *RedisConfigCache {
	if ttl < time.Millisecond {
		ttl = defaultRedisTTL
	}
	return &RedisConfigCache{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (r *RedisConfigCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// Get implements ConfigCache.
func (r *RedisConfigCache) Get(ctx context.Context, projectID string) (*models.WidgetConfig, bool, error) {
	configKey, _ := redisKeys(projectID)
	raw, err := r.client.Get(ctx, configKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var wc models.WidgetConfig
	if err := json.Unmarshal(raw, &wc); err != nil {
		// A corrupt entry is a miss; the next Set overwrites it.
		return nil, false, nil
	}
	return &wc, true, nil
}

// Set implements ConfigCache.
func (r *RedisConfigCache) Set(ctx context.Context, wc *models.WidgetConfig) error {
	raw, err := json.Marshal(wc)
	if err != nil {
		return fmt.Errorf("encode widget config: %w", err)
	}
	configKey, versionKey := redisKeys(wc.ProjectID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, configKey, raw, r.ttl)
		pipe.Set(ctx, versionKey, wc.UpdatedAt.UnixNano(), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Fill implements ConfigCache.
func (r *RedisConfigCache) Fill(ctx context.Context, wc *models.WidgetConfig) (bool, error) {
	raw, err := json.Marshal(wc)
	if err != nil {
		return false, fmt.Errorf("encode widget config: %w", err)
	}
	configKey, versionKey := redisKeys(wc.ProjectID)
	stored, err := fillScript.Run(ctx, r.client, []string{configKey, versionKey},
		raw, wc.UpdatedAt.UnixNano(), r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis fill: %w", err)
	}
	return stored == 1, nil
}

// Invalidate implements ConfigCache.
func (r *RedisConfigCache) Invalidate(ctx context.Context, projectID string) error {
	configKey, versionKey := redisKeys(projectID)
	if err := r.client.Del(ctx, configKey, versionKey).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close implements ConfigCache.
func (r *RedisConfigCache) Close() error { return r.client.Close() }
