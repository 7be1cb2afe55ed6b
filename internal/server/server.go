package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/field-notes/apiserver/config"
	"github.com/field-notes/apiserver/internal/db"
	"github.com/field-notes/apiserver/internal/handlers"
	"github.com/field-notes/apiserver/internal/logger"
	"github.com/field-notes/apiserver/internal/mq"
	"github.com/field-notes/apiserver/internal/relay"
	"github.com/field-notes/apiserver/internal/services"
	"github.com/field-notes/apiserver/internal/session"
	"github.com/field-notes/apiserver/internal/storage"
	"github.com/field-notes/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const requestTimeout = 60 * time.Second

// Deps are the components the router serves.
type Deps struct {
	Logger *logger.Logger
	Notes  handlers.NoteManager
	// Auth is nil in shared-secret mode.
	Auth  handlers.Authenticator
	Codec *session.Codec
	Gates *handlers.Gates
	Relay handlers.Dispatcher
	// Ready probes note storage for /readyz.
	Ready func(context.Context) error
}

// NewRouter builds the HTTP routes.
func NewRouter(d Deps) *chi.Mux {
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}

	authHandler := handlers.NewAuthHandler(d.Auth, d.Codec, d.Gates)
	noteHandler := handlers.NewNoteHandler(d.Notes)
	relayHandler := handlers.NewRelayHandler(d.Relay)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		handlers.WithTraceID(log),
		handlers.WithLogging,
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
		handlers.SecurityHeaders,
	)
	router.Get("/healthz", handlers.Healthz)
	router.Get("/readyz", handlers.Readyz(d.Ready))
	router.Route("/api", func(r chi.Router) {
		r.Post("/login", authHandler.SharedLogin)
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler)
		})
		r.Group(func(r chi.Router) {
			r.Use(d.Gates.RequireNoteAccess)
			r.Route("/notes", func(r chi.Router) {
				handlers.NoteRouter(r, noteHandler)
			})
			r.Get("/note-takers", noteHandler.ListNoteTakers)
			r.Post("/send-to-chat", relayHandler.SendToChat)
		})
	})
	return router
}

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *logger.Logger
	closers    []func() error
}

// New wires storage, credential store, relay and routes from cfg.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*Server, error) {
	s := &Server{log: log}

	notes, st, err := s.openNotes(ctx, cfg)
	if err != nil {
		return nil, err
	}

	codec, err := session.NewCodec(cfg.Auth.SessionSecret, cfg.Production())
	if err != nil {
		s.close()
		return nil, err
	}

	gates := handlers.NewGates(codec, handlers.GateConfig{
		SharedSecret:   cfg.Auth.SharedSecret,
		APIKey:         cfg.Auth.APIKey,
		APIKeyFailOpen: cfg.Auth.APIKeyOpen,
		SecureCookies:  cfg.Production(),
	})
	if cfg.Auth.APIKey == "" {
		if cfg.Auth.APIKeyOpen && cfg.Production() {
			log.Warn().Msg("FIELD_NOTES_API_KEY is unset and fail-open is enabled: every request is authorized")
		} else if !cfg.Auth.APIKeyOpen {
			log.Info().Msg("FIELD_NOTES_API_KEY is unset: requests with an x-api-key header are rejected")
		}
	}

	var auth handlers.Authenticator
	if cfg.SharedSecretMode() {
		log.Info().Msg("shared-secret mode: credential store disabled")
	} else {
		conn, err := s.openCredentials(ctx, cfg)
		if err != nil {
			s.close()
			return nil, err
		}
		auth = services.NewAuthService(store.NewUserRepository(conn), cfg.Auth.HashWorkers)
	}

	rel, err := s.openRelay(ctx, cfg, notes)
	if err != nil {
		s.close()
		return nil, err
	}

	s.router = NewRouter(Deps{
		Logger: log,
		Notes:  notes,
		Auth:   auth,
		Codec:  codec,
		Gates:  gates,
		Relay:  rel,
		Ready:  st.Ping,
	})
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Router exposes the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases storage, database and
// queue connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) openNotes(ctx context.Context, cfg config.Config) (*services.NoteService, *storage.Storage, error) {
	st, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open note storage: %w", err)
	}
	s.closers = append(s.closers, st.Close)
	s.log.Info().Str("backend", st.Name()).Msg("note storage ready")
	return services.NewNoteService(store.NewNoteRepository(st), cfg.Notes.NoteTakers), st, nil
}

func (s *Server) openCredentials(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	conn, err := db.Open(ctx, cfg.Auth.DatabaseURL)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, conn.Close)
	return conn, nil
}

func (s *Server) openRelay(ctx context.Context, cfg config.Config, notes relay.Notes) (*relay.Relay, error) {
	var poster relay.Poster
	if cfg.Relay.WebhookURL != "" {
		poster = relay.NewWebhookClient(cfg.Relay.WebhookURL, cfg.Relay.Timeout)
	} else {
		s.log.Warn().Msg("GOOGLE_CHAT_WEBHOOK_URL is unset: send-to-chat is disabled")
	}

	queue, err := mq.Open(ctx, cfg.Relay)
	if err != nil {
		return nil, fmt.Errorf("open relay queue: %w", err)
	}
	if queue != nil {
		s.closers = append(s.closers, queue.Close)
	}
	rel := relay.New(notes, poster, queue, cfg.Relay.Channel)
	if loc, err := time.LoadLocation(cfg.Relay.TimeZone); err == nil {
		rel.SetLocation(loc)
	}
	return rel, nil
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Error().Err(err).Msg("release resource")
		}
	}
	s.closers = nil
}
