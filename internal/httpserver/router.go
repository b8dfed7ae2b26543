package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"stargazer-gateway/internal/handlers"
	"stargazer-gateway/internal/metrics"
	"stargazer-gateway/internal/middleware"
)

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, repos *handlers.RepoHandler, starred *handlers.StarredHandler) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())               // panic recovery
	r.Use(middleware.Timeout(60 * time.Second)) // request timeout; analysis fans out to many upstream calls
	r.Use(middleware.MaxBodySize(64 * 1024))    // 64 KB max body, batch lists are small

	// routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/repos/{owner}/{repo}", repos.GetRepo)
		r.Post("/repos/batch", repos.BatchRepos)

		r.Get("/users/{user}", starred.GetUser)
		r.Get("/users/{user}/starred", starred.ListStarred)
		r.Get("/users/{user}/analysis", starred.Analysis)
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
