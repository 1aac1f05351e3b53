package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sakif/volunteer-hub/internal/auth"
	"github.com/sakif/volunteer-hub/internal/handler"
	"github.com/sakif/volunteer-hub/internal/metrics"
	"github.com/sakif/volunteer-hub/internal/middleware"
	"github.com/sakif/volunteer-hub/internal/repository"
	"github.com/sakif/volunteer-hub/internal/service"
)

// Deps is everything the router needs. New builds one from configuration;
// tests build one by hand around the in-memory store.
type Deps struct {
	Stores    repository.Stores
	Pinger    handler.Pinger // nil for the in-memory store
	Backend   string
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	GitHub    *auth.GitHubProvider // nil disables GitHub sign-in
	Metrics   *metrics.Metrics
	AuthLimit middleware.Limiter
	APILimit  middleware.Limiter

	AllowedOrigins []string
	MaxBodyBytes   int64
	SecureCookies  bool

	Logger *zap.Logger
}

// NewRouter wires services, handlers and middleware into a chi router.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz                          → store health
//	GET  /metrics                          → Prometheus
//	POST /api/auth/register                → create account      (auth rate limit)
//	POST /api/auth/login                   → sign in             (auth rate limit)
//	GET  /api/auth/github/login            → GitHub redirect     (when configured)
//	GET  /api/auth/github/callback         → GitHub sign-in      (when configured)
//	GET  /api/auth/profile                 → own profile         (token required)
//	PUT  /api/auth/profile                 → edit own profile    (token required)
//	GET  /api/events, /api/events/{id}     → public reads
//	POST /api/events, PUT /api/events/{id}, POST /api/events/{id}/join       (token required)
//	GET  /api/teams, /api/teams/{id}       → reads, token optional
//	POST /api/teams, PUT /api/teams/{id}, POST /api/teams/{id}/join          (token required)
//	GET  /api/help-requests, /api/help-requests/{id}
//	POST /api/help-requests, PUT /api/help-requests/{id}, POST /api/help-requests/{id}/volunteer
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: every later log line can carry it
//  2. RealIP: rate limiting keys on the client address it sets
//  3. Recoverer: a panic becomes a 500 instead of a dropped connection
//  4. Logger, then metrics, then CORS, then the body limit
func NewRouter(d Deps) http.Handler {
	logger := d.Logger

	// === Services ===
	authSvc := service.NewAuthService(d.Stores.Users, d.Stores.Events, d.Tokens, d.Passwords, d.Metrics, logger)
	eventSvc := service.NewEventService(d.Stores.Events, d.Stores.Users, d.Metrics, logger)
	teamSvc := service.NewTeamService(d.Stores.Teams, d.Stores.Users, d.Metrics, logger)
	helpSvc := service.NewHelpRequestService(d.Stores.HelpRequests, d.Stores.Users, d.Metrics, logger)

	// === Handlers ===
	authH := handler.NewAuthHandler(authSvc, d.GitHub, d.MaxBodyBytes, d.SecureCookies, logger)
	eventH := handler.NewEventHandler(eventSvc, d.MaxBodyBytes, logger)
	teamH := handler.NewTeamHandler(teamSvc, d.MaxBodyBytes, logger)
	helpH := handler.NewHelpRequestHandler(helpSvc, d.MaxBodyBytes, logger)
	healthH := handler.NewHealthHandler(d.Pinger, d.Backend, logger)

	r := chi.NewRouter()

	// === Global Middleware ===
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(d.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.MaxBodyBytes(d.MaxBodyBytes))

	// === Operational Routes ===
	r.Get("/healthz", healthH.HandleHealth)
	r.Handle("/metrics", d.Metrics.Handler())

	requireAuth := auth.RequireAuth(d.Tokens)
	optionalAuth := auth.OptionalAuth(d.Tokens)

	// === API Routes ===
	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.RateLimit(d.APILimit, middleware.ScopeAPI, d.Metrics, logger))

		api.Route("/auth", func(a chi.Router) {
			a.Group(func(g chi.Router) {
				g.Use(middleware.RateLimit(d.AuthLimit, middleware.ScopeAuth, d.Metrics, logger))
				g.Post("/register", authH.HandleRegister)
				g.Post("/login", authH.HandleLogin)
				if d.GitHub != nil {
					g.Get("/github/login", authH.HandleGitHubLogin)
					g.Get("/github/callback", authH.HandleGitHubCallback)
				}
			})
			a.With(requireAuth).Get("/profile", authH.HandleGetProfile)
			a.With(requireAuth).Put("/profile", authH.HandleUpdateProfile)
		})

		api.Route("/events", func(e chi.Router) {
			e.Get("/", eventH.HandleList)
			e.Get("/{id}", eventH.HandleGet)
			e.Group(func(g chi.Router) {
				g.Use(requireAuth)
				g.Post("/", eventH.HandleCreate)
				g.Put("/{id}", eventH.HandleUpdate)
				g.Post("/{id}/join", eventH.HandleJoin)
			})
		})

		api.Route("/teams", func(tr chi.Router) {
			tr.With(optionalAuth).Get("/", teamH.HandleList)
			tr.With(optionalAuth).Get("/{id}", teamH.HandleGet)
			tr.Group(func(g chi.Router) {
				g.Use(requireAuth)
				g.Post("/", teamH.HandleCreate)
				g.Put("/{id}", teamH.HandleUpdate)
				g.Post("/{id}/join", teamH.HandleJoin)
			})
		})

		api.Route("/help-requests", func(h chi.Router) {
			h.Get("/", helpH.HandleList)
			h.Get("/{id}", helpH.HandleGet)
			h.Group(func(g chi.Router) {
				g.Use(requireAuth)
				g.Post("/", helpH.HandleCreate)
				g.Put("/{id}", helpH.HandleUpdate)
				g.Post("/{id}/volunteer", helpH.HandleVolunteer)
			})
		})
	})

	return r
}
