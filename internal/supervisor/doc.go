// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

/*
Package supervisor runs the LeadChat server's long-lived services under a
suture v4 tree.

# Layers

	leadchat
	├── data-layer
	│   └── SessionCleanupService
	├── messaging-layer
	│   └── websocket.Hub
	└── api-layer
	    └── HTTPServerService

Each layer is its own supervisor, so a hub crash restarts the hub while the
HTTP server keeps answering. Restarts back off after FailureThreshold
failures; the failure count decays over FailureDecay seconds.

# Logging

Supervisor events (service panics, terminations, backoff) are emitted
through sutureslog. cmd/server passes logging.NewSlogLogger so they land in
the same zerolog stream as the rest of the process.

# Usage

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(services.NewSessionCleanupService(sessions, time.Hour))
	tree.AddMessagingService(hub)
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))
	err := tree.Serve(ctx)

Service implementations live in the services subpackage.
*/
package supervisor
