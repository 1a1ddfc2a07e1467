package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/doctrans/doctrans/internal/auth"
	"github.com/doctrans/doctrans/internal/config"
	"github.com/doctrans/doctrans/internal/dispatcher"
	"github.com/doctrans/doctrans/internal/executor"
	handlers "github.com/doctrans/doctrans/internal/handlers/v1"
	"github.com/doctrans/doctrans/internal/intake"
	"github.com/doctrans/doctrans/internal/service"
	"github.com/doctrans/doctrans/internal/storage"
	"github.com/doctrans/doctrans/internal/store"
	"github.com/doctrans/doctrans/pkg/metrics"
	"github.com/doctrans/doctrans/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	store    store.Store
	storage  storage.Storage
	executor executor.Executor
	listener net.Listener
}

// New returns a new instance of the doctrans API server.
func New(
	cfg *config.Config,
	store store.Store,
	storage storage.Storage,
	executor executor.Executor,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		storage:  storage,
		executor: executor,
		listener: listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	authenticator, err := auth.NewAuthenticator(s.cfg.Service.Auth)
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	d := dispatcher.New(s.store, s.storage, s.executor, s.cfg.Service.ExecutionTimeout)
	defer d.Wait()

	jobService := service.NewJobService(
		s.store,
		s.storage,
		intake.New(s.storage, s.cfg.Service.MaxUploadBytes),
		d,
		s.cfg.Service.Auth.RelaxedOwnership,
	)

	handler := handlers.NewHandler(jobService, s.cfg.Service.MaxUploadBytes)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	router.Group(func(r chi.Router) {
		r.Use(authenticator.Authenticator)
		r.Route("/api/v1", handler.Routes)
	})

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
