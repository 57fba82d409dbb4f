// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/leadchat/internal/middleware"
	ws "github.com/tomtom215/leadchat/internal/websocket"
)

// slowRequest is the access log threshold for warning-level entries.
const slowRequest = 2 * time.Second

// Router assembles the HTTP surface.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	hub           *ws.Hub // nil disables /ws/widget-config
	upgrader      *gorillaws.Upgrader
}

// NewRouter creates a router. hub may be nil.
func NewRouter(handler *Handler, mw *ChiMiddleware, hub *ws.Hub) *Router {
	var origins []string
	if handler.config != nil {
		origins = handler.config.Security.AllowedOrigins
	}
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		chiMiddleware: mw,
		hub:           hub,
		upgrader:      ws.NewUpgrader(origins),
	}
}

// SetupChi configures all routes.
func (router *Router) SetupChi() http.Handler {
	h := router.handler
	authn := h.auth
	r := chi.NewRouter()

	// Global middleware, outermost first.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog(slowRequest))
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // must be global for OPTIONS preflight
	r.Use(middleware.Compression)
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).NotFound("Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	r.Handle("/metrics", metricsHandler())

	r.Route("/api/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(middleware.SecurityHeaders)
		r.Get("/", h.Health)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(middleware.SecurityHeaders)

		// Widget-facing endpoints: public reads and intake.
		r.Get("/widget-config/{projectId}", h.WidgetConfigGet)
		r.With(router.chiMiddleware.RateLimitIngest()).Post("/leads", h.LeadCreate)
		r.With(router.chiMiddleware.RateLimitIngest()).Post("/events", h.EventIngest)

		// Dashboard endpoints: API key or session.
		r.Group(func(r chi.Router) {
			r.Use(authn.RequireDashboard)
			r.Get("/leads", h.LeadList)
			r.Get("/chat-sessions", h.ChatSessionList)
		})

		// Key-protected writes.
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitWrite())
			r.Use(authn.RequireAPIKey)
			r.Post("/widget-config/{projectId}", h.WidgetConfigSave)
			r.Post("/upload/profile-picture", h.UploadProfilePicture)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitAuth())
			r.With(authn.RequireAPIKey).Get("/", h.UserList)
			r.With(authn.RequireAPIKey).Post("/", h.UserCreate)
			r.With(router.chiMiddleware.RateLimitLogin()).Post("/auth", h.UserAuth)
			r.With(authn.RequireSession).Get("/verify", h.UserVerify)
			r.Post("/logout", h.UserLogout)
		})
	})

	if router.hub != nil {
		r.Get("/ws/widget-config", router.serveWidgetConfigWS)
	}

	r.Handle(UploadURLPrefix+"*", http.StripPrefix(UploadURLPrefix, uploadFileServer(h.uploadDir())))

	return r
}

func (router *Router) serveWidgetConfigWS(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	ws.ServeWS(router.hub, router.upgrader, w, r, projectID)
}

// uploadFileServer serves stored uploads without directory listings.
func uploadFileServer(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") || strings.HasPrefix(r.URL.Path, ".") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		fs.ServeHTTP(w, r)
	})
}

// metricsHandler is promhttp.Handler without its own gzip; the global
// Compression middleware already encodes the response.
func metricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{DisableCompression: true}))
}
