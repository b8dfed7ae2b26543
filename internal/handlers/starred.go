package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stargazer-gateway/internal/analysis"
	"stargazer-gateway/internal/github"
	"stargazer-gateway/pkg/logging/logging"
)

// StarredLister is the slice of the fetcher the starred endpoints need.
type StarredLister interface {
	StarredPage(ctx context.Context, user, cursor string, limit int) (*github.StarredPage, error)
}

// UserLookup resolves user profiles; backed directly by the GitHub
// client, single-key cached paths don't apply.
type UserLookup interface {
	FetchUser(ctx context.Context, login string) (*github.User, error)
}

// BundleBuilder produces analysis bundles.
type BundleBuilder interface {
	Build(ctx context.Context, user string, maxRepos, concurrency int) (*analysis.Bundle, error)
}

// StarredHandler serves the starred-list, user and analysis endpoints.
type StarredHandler struct {
	Lister   StarredLister
	Users    UserLookup
	Analyzer BundleBuilder
}

func NewStarredHandler(lister StarredLister, users UserLookup, analyzer BundleBuilder) *StarredHandler {
	return &StarredHandler{Lister: lister, Users: users, Analyzer: analyzer}
}

// ListStarred handles GET /v1/users/{user}/starred?cursor=&limit=.
func (h *StarredHandler) ListStarred(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	user := chi.URLParam(r, "user")
	cursor := r.URL.Query().Get("cursor")
	limit := intQuery(r, "limit", github.DefaultPageSize)

	page, err := h.Lister.StarredPage(ctx, user, cursor, limit)
	if err != nil {
		logger.Warn("starred list failed",
			zap.String("user", user),
			zap.String("kind", errorKind(err)),
			zap.Error(err),
		)
		writeUpstreamError(w, err)
		return
	}

	logger.Info("starred list",
		zap.String("user", user),
		zap.Int("count", len(page.Repositories)),
		zap.Bool("has_next_page", page.HasNextPage),
		zap.Duration("latency", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, page)
}

// GetUser handles GET /v1/users/{user}.
func (h *StarredHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	login := chi.URLParam(r, "user")

	u, err := h.Users.FetchUser(ctx, login)
	if err != nil {
		logger.Warn("user lookup failed",
			zap.String("user", login),
			zap.String("kind", errorKind(err)),
			zap.Error(err),
		)
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// Analysis handles GET /v1/users/{user}/analysis?max_repositories=&concurrency=.
func (h *StarredHandler) Analysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	user := chi.URLParam(r, "user")
	maxRepos := intQuery(r, "max_repositories", analysis.DefaultMaxRepositories)
	concurrency := intQuery(r, "concurrency", 0)

	bundle, err := h.Analyzer.Build(ctx, user, maxRepos, concurrency)
	if err != nil {
		logger.Warn("analysis failed",
			zap.String("user", user),
			zap.String("kind", errorKind(err)),
			zap.Error(err),
		)
		writeUpstreamError(w, err)
		return
	}

	logger.Info("analysis bundle",
		zap.String("user", user),
		zap.Int("analyzed", bundle.AnalyzedRepositories),
		zap.Int("failed", bundle.Summary.Failed),
		zap.Duration("latency", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, bundle)
}

func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
