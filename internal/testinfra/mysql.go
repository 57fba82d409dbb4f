// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultMySQLImage matches the production MySQL major version.
	DefaultMySQLImage = "mysql:8.4"

	mysqlPort     = "3306/tcp"
	mysqlDatabase = "leadchat"
	mysqlUser     = "leadchat"
	mysqlPassword = "leadchat-test"
)

// MySQLContainer is a running MySQL server with an empty leadchat schema.
type MySQLContainer struct {
	testcontainers.Container

	// URL is a DATABASE_URL for config.DatabaseConfig.
	URL string
}

// MySQLOption configures NewMySQLContainer.
type MySQLOption func(*mysqlConfig)

type mysqlConfig struct {
	image        string
	startTimeout time.Duration
}

// WithMySQLImage overrides the image.
func WithMySQLImage(image string) MySQLOption {
	return func(c *mysqlConfig) { c.image = image }
}

// WithMySQLStartTimeout overrides how long to wait for the server.
func WithMySQLStartTimeout(d time.Duration) MySQLOption {
	return func(c *mysqlConfig) { c.startTimeout = d }
}

// NewMySQLContainer starts MySQL and waits until it accepts connections.
func NewMySQLContainer(ctx context.Context, opts ...MySQLOption) (*MySQLContainer, error) {
	cfg := &mysqlConfig{image: DefaultMySQLImage, startTimeout: 2 * time.Minute}
	for _, opt := range opts {
		opt(cfg)
	}

	c, err := startGeneric(ctx, testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{mysqlPort},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": mysqlPassword,
			"MYSQL_DATABASE":      mysqlDatabase,
			"MYSQL_USER":          mysqlUser,
			"MYSQL_PASSWORD":      mysqlPassword,
		},
		// The entrypoint runs a temporary server first; the second
		// "ready for connections" line is the real one.
		WaitingFor: wait.ForAll(
			wait.ForLog("ready for connections").WithOccurrence(2),
			wait.ForListeningPort(mysqlPort),
		).WithDeadline(cfg.startTimeout),
	})
	if err != nil {
		return nil, err
	}

	addr, err := endpoint(ctx, c, mysqlPort)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	return &MySQLContainer{
		Container: c,
		URL:       fmt.Sprintf("mysql://%s:%s@%s/%s", mysqlUser, mysqlPassword, addr, mysqlDatabase),
	}, nil
}
