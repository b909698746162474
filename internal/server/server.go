// internal/server/server.go

// Package server wires the engine services into one HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"bookrec/internal/catalog"
	"bookrec/internal/circulation"
	"bookrec/internal/history"
	"bookrec/internal/httpx"
	"bookrec/internal/logging"
	"bookrec/internal/membership"
	"bookrec/internal/recommend"
	"bookrec/internal/store"
)

// Options tunes the services built by NewServices.
type Options struct {
	LoginsPerMinute int
	LoginBurst      int
	RecommendLimit  int
	Clock           func() time.Time
}

// Services is the engine: every component shares one store handle.
type Services struct {
	Store       *store.Store
	Catalog     catalog.Service
	Membership  membership.Service
	Circulation circulation.Service
	History     *history.Log
	Recommend   *recommend.Engine
}

// NewServices builds the engine over st. The catalog cache starts empty
// until Catalog.Reload runs.
func NewServices(st *store.Store, opts Options) *Services {
	limit := rate.Inf
	if opts.LoginsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.LoginsPerMinute))
	}

	var (
		catalogOpts     []catalog.Option
		circulationOpts []circulation.Option
	)
	if opts.Clock != nil {
		catalogOpts = append(catalogOpts, catalog.WithClock(opts.Clock))
		circulationOpts = append(circulationOpts, circulation.WithClock(opts.Clock))
	}

	hist := history.NewLog(st)
	users := membership.NewService(st, membership.WithRateLimit(limit, opts.LoginBurst))
	books := catalog.NewService(st, catalogOpts...)

	return &Services{
		Store:       st,
		Catalog:     books,
		Membership:  users,
		Circulation: circulation.NewService(st, users, hist, circulationOpts...),
		History:     hist,
		Recommend:   recommend.NewEngine(books.Cache(), hist, recommend.WithLimit(opts.RecommendLimit)),
	}
}

func isAdmin(r *http.Request) bool {
	a, ok := membership.ActorFrom(r.Context())
	return ok && a.IsAdmin()
}

// NewRouter mounts every handler under /api/v1 plus /healthz.
func NewRouter(svc *Services) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestID)
	r.Use(requestLogger)
	r.Use(membership.ActorMiddleware)

	r.Get("/healthz", healthHandler(svc))

	r.Route("/api/v1", func(r chi.Router) {
		membership.NewHandler(svc.Membership).Routes(r)
		catalog.NewHandler(svc.Catalog, isAdmin).Routes(r)
		circulation.NewHandler(svc.Circulation).Routes(r)
		recommend.NewHandler(svc.Recommend, svc.History).Routes(r)
	})
	return r
}

func healthHandler(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := svc.Store.Ping(ctx); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("health check failed")
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"books":  svc.Catalog.Cache().Len(),
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logging.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Config holds the listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Run serves handler until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", cfg.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logging.Info().Msg("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
