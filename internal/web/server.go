package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/edvart/matchday/internal/auth"
	"github.com/edvart/matchday/internal/broadcast"
	"github.com/edvart/matchday/internal/live"
	"github.com/edvart/matchday/internal/push"
	"github.com/edvart/matchday/internal/standings"
	"github.com/edvart/matchday/internal/store"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	router    *chi.Mux
	store     store.Store
	live      *live.Service
	standings *standings.Engine
	hub       *broadcast.Hub
	push      *push.Service
	reporters *auth.ReporterConfig
	log       logrus.FieldLogger
	cfg       Config
}

// Config holds server configuration.
type Config struct {
	CORSAllowOrigins  []string
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	KeepAlive         time.Duration
}

// Deps are the services the handlers call into. Push may be nil.
type Deps struct {
	Store     store.Store
	Live      *live.Service
	Standings *standings.Engine
	Hub       *broadcast.Hub
	Push      *push.Service
	Reporters *auth.ReporterConfig
	Logger    logrus.FieldLogger
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, cfg Config) *Server {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 25 * time.Second
	}
	reporters := deps.Reporters
	if reporters == nil {
		reporters = auth.NewReporterConfig(nil)
	}
	s := &Server{
		router:    chi.NewRouter(),
		store:     deps.Store,
		live:      deps.Live,
		standings: deps.Standings,
		hub:       deps.Hub,
		push:      deps.Push,
		reporters: reporters,
		log:       deps.Logger,
		cfg:       cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&logFormatter{log: s.log}))
	r.Use(middleware.Recoverer)

	origins := s.cfg.CORSAllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := corslib.New(corslib.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-Reporter-Token"},
		ExposedHeaders: []string{"X-Request-Id"},
	})
	r.Use(c.Handler)

	limit := func(next http.Handler) http.Handler { return next }
	if s.cfg.RateLimitEnabled {
		limit = RateLimitMiddleware(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		// Reads
		r.Get("/leagues/{leagueID}", s.handleGetLeague)
		r.Get("/leagues/{leagueID}/teams", s.handleListTeams)
		r.Get("/leagues/{leagueID}/seasons/{seasonID}/standings", s.handleStandings)
		r.Get("/fixtures/{fixtureID}", s.handleGetFixture)
		r.Get("/matches/{matchID}", s.handleGetMatch)
		r.Get("/matches/{matchID}/lineup", s.handleGetLineup)
		r.Get("/matches/{matchID}/events", s.handleListEvents)
		r.Get("/matches/{matchID}/counters", s.handleGetCounters)
		r.Get("/players/{playerID}/seasons/{seasonID}/stats", s.handlePlayerStats)

		// Streams
		r.Get("/matches/{matchID}/stream", s.handleMatchStream)
		r.Get("/leagues/{leagueID}/stream", s.handleLeagueStream)
		r.Get("/ws", s.handleWebSocket)

		// Push subscriptions (fans)
		r.Get("/push/vapid-public-key", s.handleGetVAPIDPublicKey)
		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Post("/matches/{matchID}/push", s.handleSubscribePush)
			r.Delete("/matches/{matchID}/push", s.handleUnsubscribePush)
		})

		// Reporter mutations
		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Use(auth.ReporterMiddleware(s.reporters))

			r.Post("/leagues", s.handleCreateLeague)
			r.Post("/leagues/{leagueID}/seasons", s.handleCreateSeason)
			r.Post("/leagues/{leagueID}/teams", s.handleCreateTeam)
			r.Post("/teams/{teamID}/players", s.handleCreatePlayer)
			r.Post("/seasons/{seasonID}/fixtures", s.handleCreateFixture)
			r.Delete("/fixtures/{fixtureID}", s.handleDeleteFixture)

			r.Post("/fixtures/{fixtureID}/match", s.handleCreateMatch)
			r.Delete("/matches/{matchID}", s.handleDeleteMatch)
			r.Put("/matches/{matchID}/lineup", s.handleReplaceLineup)

			r.Post("/matches/{matchID}/events", s.handleRecordEvent)
			r.Patch("/matches/{matchID}/events/{eventID}", s.handleUpdateEvent)
			r.Delete("/matches/{matchID}/events/{eventID}", s.handleDeleteEvent)

			r.Post("/matches/{matchID}/clock", s.handleClockAction)
			r.Post("/matches/{matchID}/counters", s.handleCounterDelta)
		})
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
