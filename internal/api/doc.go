// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

/*
Package api provides the HTTP surface of the LeadChat backend: the
widget-facing endpoints used by embedded chat bubbles and the dashboard
endpoints used to configure them and read captured leads.

# Routes

Widget-facing, unauthenticated:

	GET  /api/widget-config/{projectId}   stored theme, or defaults with 200
	POST /api/leads                       lead intake, 201 or 400
	POST /api/events                      analytics intake, always 202
	GET  /ws/widget-config?projectId=     live widget_config_updated stream

Dashboard, API key (X-API-Key or Authorization: Bearer) or session token:

	POST /api/widget-config/{projectId}   save theme (API key only)
	GET  /api/leads                       filtered, paginated leads
	GET  /api/chat-sessions               chat transcripts
	POST /api/upload/profile-picture      agent avatar (API key only)
	GET  /api/users, POST /api/users      user management (API key only)
	POST /api/users/auth                  login, returns a session token
	GET  /api/users/verify                current user for a session token
	POST /api/users/logout                revoke the session

Operational: GET /api/health and GET /metrics.

# Responses

Dashboard endpoints use the APIResponse envelope
({success, data, error{code,message,request_id}, meta}). The widget-config
and events endpoints answer with bare JSON so the widget never needs to
branch on an envelope or an error.

# Middleware

Every request passes request id, real IP, access log, recoverer, CORS
(go-chi/cors), gzip compression and Prometheus metrics. Route groups add
go-chi/httprate limits and security headers; see ChiMiddleware.
*/
package api
