package api

import (
	"log/slog"
	"net/http"
	"smartai/internal/api/handler"
	"smartai/internal/api/middleware"
	"smartai/internal/app/service"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func NewRouter(gradingService *service.GradingService, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		gradingHandler := handler.NewGradingHandler(gradingService, logger)
		v1.Route("/jobs", gradingHandler.RegisterRoutes)
	})

	return otelhttp.NewHandler(r, "grading-api")
}
