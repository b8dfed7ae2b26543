package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stargazer-gateway/internal/fetcher"
	"stargazer-gateway/internal/github"
	"stargazer-gateway/pkg/logging/logging"
)

// RepoResolver is the slice of the fetcher the repo endpoints need.
type RepoResolver interface {
	Repo(ctx context.Context, fullName string) (*github.RepoDetails, error)
	FetchBatch(ctx context.Context, names []string, concurrency int) fetcher.BatchResult
}

// RepoHandler serves single and batch repository-detail lookups.
type RepoHandler struct {
	Resolver RepoResolver
}

func NewRepoHandler(resolver RepoResolver) *RepoHandler {
	return &RepoHandler{Resolver: resolver}
}

// GetRepo handles GET /v1/repos/{owner}/{repo}.
func (h *RepoHandler) GetRepo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	fullName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")

	details, err := h.Resolver.Repo(ctx, fullName)
	if err != nil {
		logger.Warn("repo lookup failed",
			zap.String("repo", fullName),
			zap.String("kind", errorKind(err)),
			zap.Error(err),
		)
		writeUpstreamError(w, err)
		return
	}

	logger.Info("repo lookup",
		zap.String("repo", fullName),
		zap.Duration("latency", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, details)
}

type batchRequest struct {
	Repositories []string `json:"repositories"`
	Concurrency  int      `json:"concurrency,omitempty"`
}

type batchItem struct {
	Name    string              `json:"name"`
	Details *github.RepoDetails `json:"details,omitempty"`
	Error   string              `json:"error,omitempty"`
	Kind    string              `json:"kind,omitempty"`
}

type batchResponse struct {
	Results   []batchItem `json:"results"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// BatchRepos handles POST /v1/repos/batch. Every requested name gets a
// result entry; per-repository failures are reported inline, not as an
// overall error.
func (h *RepoHandler) BatchRepos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid batch request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON", Kind: "validation"})
		return
	}

	if len(req.Repositories) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "repositories list is empty", Kind: "validation"})
		return
	}
	if len(req.Repositories) > fetcher.MaxBatchSize {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "too many repositories in one batch",
			Kind:  "validation",
		})
		return
	}

	batch := h.Resolver.FetchBatch(ctx, req.Repositories, req.Concurrency)

	resp := batchResponse{Results: make([]batchItem, 0, len(batch))}
	for _, res := range batch {
		item := batchItem{Name: res.Name}
		if res.Err != nil {
			item.Error = res.Err.Error()
			item.Kind = errorKind(res.Err)
			resp.Failed++
		} else {
			item.Details = res.Details
			resp.Succeeded++
		}
		resp.Results = append(resp.Results, item)
	}

	logger.Info("batch repo details",
		zap.Int("requested", len(req.Repositories)),
		zap.Int("succeeded", resp.Succeeded),
		zap.Int("failed", resp.Failed),
		zap.Duration("latency", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, resp)
}
