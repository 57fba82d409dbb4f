// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

//go:build integration

package testinfra

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DefaultRedisImage is the Redis image used for cache tests.
const DefaultRedisImage = "redis:7-alpine"

const redisPort = "6379/tcp"

// RedisContainer is a running Redis server.
type RedisContainer struct {
	testcontainers.Container

	// URL is a REDIS_URL for store.NewRedisConfigCache.
	URL string
}

// NewRedisContainer starts Redis and waits until it accepts connections.
func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	c, err := startGeneric(ctx, testcontainers.ContainerRequest{
		Image:        DefaultRedisImage,
		ExposedPorts: []string{redisPort},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections"),
			wait.ForListeningPort(redisPort),
		).WithDeadline(time.Minute),
	})
	if err != nil {
		return nil, err
	}
	addr, err := endpoint(ctx, c, redisPort)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	return &RedisContainer{Container: c, URL: "redis://" + addr + "/0"}, nil
}
