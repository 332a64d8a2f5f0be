package server

import (
	"context"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/windfall/storyspeak/internal/config"
	httphandler "github.com/windfall/storyspeak/internal/handler/http"
	wshandler "github.com/windfall/storyspeak/internal/handler/ws"
	"github.com/windfall/storyspeak/internal/middleware"
)

// Handlers groups the HTTP handlers mounted by the server.
type Handlers struct {
	Health    *httphandler.HealthHandler
	API       *httphandler.APIHandler
	Sessions  *httphandler.SessionHandler
	Documents *httphandler.DocumentHandler
	Events    *wshandler.Handler
}

// HTTPServer represents the HTTP server.
type HTTPServer struct {
	server *http.Server
	log    zerolog.Logger
}

// NewHTTPServer creates a new HTTP server.
func NewHTTPServer(
	cfg *config.Config,
	log zerolog.Logger,
	handlers Handlers,
	sessions middleware.SessionLookup,
	hub *WebSocketHub,
) *HTTPServer {
	server := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      NewRouter(cfg, log, handlers, sessions, hub),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &HTTPServer{
		server: server,
		log:    log,
	}
}

// NewRouter builds the chi router with every route mounted.
func NewRouter(
	cfg *config.Config,
	log zerolog.Logger,
	h Handlers,
	sessions middleware.SessionLookup,
	hub *WebSocketHub,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Get("/live", h.Health.Live)

	r.Route("/api/v1", func(r chi.Router) {
		// Stateless AI endpoints
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Compress(5))
			r.Post("/lessons", h.API.GenerateLesson)
			r.Post("/speech", h.API.GenerateSpeech)
			r.Post("/transcribe", h.API.Transcribe)
			r.Post("/pronunciation", h.API.EvaluatePronunciation)
		})

		// Lesson PDFs
		r.Post("/pdfs", h.Documents.Upload)
		r.Get("/pdfs", h.Documents.List)
		r.Get("/pdfs/{name}", h.Documents.Get)

		// Sessions
		r.Post("/sessions", h.Sessions.Create)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(middleware.Session(sessions))

			r.Get("/", h.Sessions.Get)
			r.Delete("/", h.Sessions.Delete)
			r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
				hub.HandleWebSocket(w, r, middleware.GetSessionID(r.Context()), h.Events)
			})

			r.Post("/story", h.Sessions.SetStory)
			r.Post("/lesson", h.Sessions.Generate)
			r.Post("/back", h.Sessions.Back)
			r.Delete("/notice", h.Sessions.DismissNotice)

			r.Post("/practice", h.Sessions.StartPractice)
			r.Post("/practice/select", h.Sessions.SelectSentence)
			r.Post("/practice/next", h.Sessions.NextSentence)

			r.Post("/sentence-game", h.Sessions.StartSentenceGame)
			r.Post("/sentence-game/check", h.Sessions.CheckSentenceGame)
			r.Post("/sentence-game/next", h.Sessions.NextGameSentence)

			r.Post("/word-game", h.Sessions.StartWordGame)
			r.Post("/word-game/answer", h.Sessions.AnswerWord)

			// Roleplay async endpoints (2-step pattern)
			r.Post("/roleplay", h.Sessions.StartRoleplay)
			r.Post("/roleplay/mic", h.Sessions.SetMic)
			r.Post("/roleplay/messages", h.Sessions.SendMessage)
			r.Get("/roleplay/reply", h.Sessions.WaitReply)

			r.Post("/capture/start", h.Sessions.StartCapture)
			r.Post("/capture/stop", h.Sessions.StopCapture)
			r.Post("/capture/fail", h.Sessions.FailCapture)
		})
	})

	return r
}

// Start starts the HTTP server.
func (s *HTTPServer) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until the server shuts down.
func (s *HTTPServer) Serve(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Msg("Starting HTTP server")
	if err := s.server.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
