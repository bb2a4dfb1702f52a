package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/intelsk/reid/api"
	"github.com/intelsk/reid/config"
	"github.com/intelsk/reid/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Start(cfg *config.AppConfig, logger *slog.Logger) error {
	backend := services.NewBackendClient(cfg.Backend.URL, cfg.Backend.MediaURL, cfg.BackendTimeout())
	logger.Info("backend configured", "url", cfg.Backend.URL, "media_url", cfg.Backend.MediaURL)

	session := services.NewSession(cfg, backend, logger)
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := backend.WaitForReady(ctx, cfg.ReadyTimeout()); err != nil {
			logger.Warn("backend not reachable yet", "error", err)
			return
		}
		logger.Info("backend ready")
	}()

	addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg, session, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// NewRouter wires the session API.
func NewRouter(cfg *config.AppConfig, session *services.Session, logger *slog.Logger) http.Handler {
	videoHandler := api.NewVideoHandler(session)
	targetsHandler := api.NewTargetsHandler(session)
	promptHandler := api.NewPromptHandler(session)
	searchHandler := api.NewSearchHandler(cfg, session)
	settingsHandler := api.NewSettingsHandler(session.Settings)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			api.HealthCheck(w, r, session.Backend)
		})

		// Videos
		r.Get("/videos", videoHandler.List)
		r.Post("/videos", videoHandler.Upload)
		r.Get("/videos/{id}", videoHandler.Get)
		r.Delete("/videos/{id}", videoHandler.Delete)

		// Targets
		r.Get("/targets", targetsHandler.List)
		r.Post("/targets", targetsHandler.Create)
		r.Post("/targets/image", targetsHandler.UploadImage)
		r.Post("/targets/crop", targetsHandler.Crop)
		r.Get("/targets/{id}", targetsHandler.Get)
		r.Patch("/targets/{id}", targetsHandler.Update)
		r.Delete("/targets/{id}", targetsHandler.Delete)

		// Prompt builder
		r.Get("/prompt/options", promptHandler.Options)
		r.Post("/prompt", promptHandler.Synthesize)
		r.Post("/prompt/targets", promptHandler.CreateTarget)

		// Search and results
		r.Post("/search", searchHandler.Search)
		r.Get("/results", searchHandler.Results)
		r.Get("/results/{video_id}/{target_id}", searchHandler.Lookup)
		r.Post("/results/export", searchHandler.Export)

		// Settings
		r.Get("/settings", settingsHandler.Get)
		r.Put("/settings", settingsHandler.Update)

		// Frames live on the backend media root
		r.Get("/frames/*", searchHandler.Frame)
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			if ww.Status() >= 500 {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
