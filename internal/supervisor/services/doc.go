// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

/*
Package services adapts LeadChat components to suture.Service.

  - HTTPServerService turns ListenAndServe/Shutdown into a context-aware
    Serve with a bounded drain.
  - SessionCleanupService purges expired dashboard sessions on a ticker.

The websocket hub implements suture.Service itself and is added to the
messaging layer directly.
*/
package services
