// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

/*
Package widget is the embeddable chat widget runtime. It runs against an
abstract page (a parsed HTML document, its URL, an event bus and a widget
registry) so the whole lifecycle can run headless: in tests, in the leadchat
CLI, or behind a server-side preview.

# Components

  - Fetcher loads a project's theme with a one second cache, a five second
    timeout and a circuit breaker. Any failure yields an empty ThemeConfig.
  - DetectProperty reads the marketed property (name, price, location) off
    the page.
  - Dispatcher posts analytics events fire-and-forget, without credentials.
  - Controller mounts at most one Instance per page and keeps it in sync
    with the dashboard through polling and ConfigUpdatedEvent.
  - Conversation walks the visitor from greeting to a submitted lead.

# Lifecycle

	Uninitialized -> Mounting -> Mounted <-> Updating
	Mounting -> Failed (no-op instance)
	Mounted -> Destroyed

Concurrent Mount calls on one page wait for the first to finish and all
return the same instance. Theme and project changes re-render into the
existing root; the host element and conversation state are never rebuilt.

# Example

	page, _ := widget.NewPage("https://sky-towers.example/", doc)
	ctrl := widget.NewController(widget.Options{})
	cfg, _ := widget.ScriptConfig(page)
	inst := ctrl.Mount(ctx, page, cfg)
	inst.StartConfigPolling()
	defer inst.Destroy()
*/
package widget
