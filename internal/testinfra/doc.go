// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

// Package testinfra starts MySQL and Redis in Docker for integration tests
// of the storage layer, using testcontainers-go.
//
//	func TestMySQLStore(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    db, err := testinfra.NewMySQLContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, db)
//
//	    s, err := store.OpenMySQL(ctx, config.DatabaseConfig{URL: db.URL})
//	    // ...
//	}
//
// Every file is behind the integration build tag:
//
//	go test -tags integration ./internal/store/...
//
// Tests skip when the Docker daemon is unreachable. The first run pulls
// the images.
package testinfra
