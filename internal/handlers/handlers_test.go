package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"stargazer-gateway/internal/analysis"
	"stargazer-gateway/internal/fetcher"
	"stargazer-gateway/internal/github"
)

// stubResolver satisfies RepoResolver, StarredLister, UserLookup and
// BundleBuilder with canned responses.
type stubResolver struct {
	repoFn  func(name string) (*github.RepoDetails, error)
	pageFn  func(user, cursor string, limit int) (*github.StarredPage, error)
	userFn  func(login string) (*github.User, error)
	buildFn func(user string, maxRepos, concurrency int) (*analysis.Bundle, error)
}

func (s *stubResolver) Repo(_ context.Context, name string) (*github.RepoDetails, error) {
	return s.repoFn(name)
}

func (s *stubResolver) FetchBatch(_ context.Context, names []string, _ int) fetcher.BatchResult {
	out := make(fetcher.BatchResult, len(names))
	for i, n := range names {
		out[i].Name = n
		out[i].Details, out[i].Err = s.repoFn(n)
	}
	return out
}

func (s *stubResolver) StarredPage(_ context.Context, user, cursor string, limit int) (*github.StarredPage, error) {
	return s.pageFn(user, cursor, limit)
}

func (s *stubResolver) FetchUser(_ context.Context, login string) (*github.User, error) {
	return s.userFn(login)
}

func (s *stubResolver) Build(_ context.Context, user string, maxRepos, concurrency int) (*analysis.Bundle, error) {
	return s.buildFn(user, maxRepos, concurrency)
}

func newTestRouter(stub *stubResolver) http.Handler {
	r := chi.NewRouter()
	repos := NewRepoHandler(stub)
	starred := NewStarredHandler(stub, stub, stub)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/repos/{owner}/{repo}", repos.GetRepo)
		r.Post("/repos/batch", repos.BatchRepos)
		r.Get("/users/{user}", starred.GetUser)
		r.Get("/users/{user}/starred", starred.ListStarred)
		r.Get("/users/{user}/analysis", starred.Analysis)
	})
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestGetRepo_OK(t *testing.T) {
	stub := &stubResolver{
		repoFn: func(name string) (*github.RepoDetails, error) {
			return &github.RepoDetails{FullName: name, Stars: 99}, nil
		},
	}

	w := doRequest(t, newTestRouter(stub), http.MethodGet, "/v1/repos/golang/go", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}

	var d github.RepoDetails
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.FullName != "golang/go" || d.Stars != 99 {
		t.Fatalf("got %+v", d)
	}
}

func TestGetRepo_NotFound(t *testing.T) {
	stub := &stubResolver{
		repoFn: func(name string) (*github.RepoDetails, error) {
			return nil, fmt.Errorf("%w: repository %s", github.ErrNotFound, name)
		},
	}

	w := doRequest(t, newTestRouter(stub), http.MethodGet, "/v1/repos/nobody/nothing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}

	var resp errorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Kind != "not_found" {
		t.Fatalf("kind=%q", resp.Kind)
	}
}

func TestGetRepo_RateLimitedCarriesRetryAfter(t *testing.T) {
	stub := &stubResolver{
		repoFn: func(string) (*github.RepoDetails, error) {
			return nil, &github.RateLimitError{RetryAfter: 30 * time.Second}
		},
	}

	w := doRequest(t, newTestRouter(stub), http.MethodGet, "/v1/repos/a/b", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("Retry-After=%q", got)
	}
}

func TestBatchRepos_PartialFailure(t *testing.T) {
	stub := &stubResolver{
		repoFn: func(name string) (*github.RepoDetails, error) {
			if name == "a/bad" {
				return nil, github.ErrNotFound
			}
			return &github.RepoDetails{FullName: name}, nil
		},
	}

	body := `{"repositories":["a/good","a/bad","a/also"],"concurrency":2}`
	w := doRequest(t, newTestRouter(stub), http.MethodPost, "/v1/repos/batch", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}

	var resp batchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Succeeded != 2 || resp.Failed != 1 {
		t.Fatalf("counts: %+v", resp)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results: %+v", resp.Results)
	}
	if resp.Results[1].Name != "a/bad" || resp.Results[1].Kind != "not_found" {
		t.Fatalf("failed item: %+v", resp.Results[1])
	}
	if resp.Results[0].Details == nil || resp.Results[0].Error != "" {
		t.Fatalf("succeeded item: %+v", resp.Results[0])
	}
}

func TestBatchRepos_Validation(t *testing.T) {
	stub := &stubResolver{
		repoFn: func(name string) (*github.RepoDetails, error) {
			return &github.RepoDetails{FullName: name}, nil
		},
	}
	router := newTestRouter(stub)

	// Broken JSON.
	w := doRequest(t, router, http.MethodPost, "/v1/repos/batch", `{"repositories":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("broken JSON: status=%d", w.Code)
	}

	// Empty list.
	w = doRequest(t, router, http.MethodPost, "/v1/repos/batch", `{"repositories":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty list: status=%d", w.Code)
	}

	// Oversized list.
	names := make([]string, fetcher.MaxBatchSize+1)
	for i := range names {
		names[i] = fmt.Sprintf("\"o/r%d\"", i)
	}
	body := `{"repositories":[` + strings.Join(names, ",") + `]}`
	w = doRequest(t, router, http.MethodPost, "/v1/repos/batch", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversized list: status=%d", w.Code)
	}
}

func TestListStarred_PassesQueryParams(t *testing.T) {
	var gotUser, gotCursor string
	var gotLimit int
	stub := &stubResolver{
		pageFn: func(user, cursor string, limit int) (*github.StarredPage, error) {
			gotUser, gotCursor, gotLimit = user, cursor, limit
			return &github.StarredPage{TotalCount: 1}, nil
		},
	}

	w := doRequest(t, newTestRouter(stub), http.MethodGet, "/v1/users/alice/starred?cursor=abc&limit=50", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if gotUser != "alice" || gotCursor != "abc" || gotLimit != 50 {
		t.Fatalf("args: %q %q %d", gotUser, gotCursor, gotLimit)
	}
}

func TestListStarred_DefaultLimit(t *testing.T) {
	var gotLimit int
	stub := &stubResolver{
		pageFn: func(_, _ string, limit int) (*github.StarredPage, error) {
			gotLimit = limit
			return &github.StarredPage{}, nil
		},
	}

	doRequest(t, newTestRouter(stub), http.MethodGet, "/v1/users/alice/starred", "")
	if gotLimit != github.DefaultPageSize {
		t.Fatalf("limit=%d, want %d", gotLimit, github.DefaultPageSize)
	}
}

func TestGetUser_OK(t *testing.T) {
	stub := &stubResolver{
		userFn: func(login string) (*github.User, error) {
			return &github.User{Login: login, Name: "Alice"}, nil
		},
	}

	w := doRequest(t, newTestRouter(stub), http.MethodGet, "/v1/users/alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}

	var u github.User
	json.Unmarshal(w.Body.Bytes(), &u)
	if u.Login != "alice" {
		t.Fatalf("got %+v", u)
	}
}

func TestAnalysis_OK(t *testing.T) {
	var gotMax, gotConc int
	stub := &stubResolver{
		buildFn: func(user string, maxRepos, concurrency int) (*analysis.Bundle, error) {
			gotMax, gotConc = maxRepos, concurrency
			return &analysis.Bundle{User: user, AnalyzedRepositories: 3}, nil
		},
	}

	w := doRequest(t, newTestRouter(stub), http.MethodGet, "/v1/users/alice/analysis?max_repositories=20&concurrency=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if gotMax != 20 || gotConc != 5 {
		t.Fatalf("args: %d %d", gotMax, gotConc)
	}

	var b analysis.Bundle
	json.Unmarshal(w.Body.Bytes(), &b)
	if b.User != "alice" || b.AnalyzedRepositories != 3 {
		t.Fatalf("got %+v", b)
	}
}

func TestAnalysis_UpstreamTimeout(t *testing.T) {
	stub := &stubResolver{
		buildFn: func(string, int, int) (*analysis.Bundle, error) {
			return nil, context.DeadlineExceeded
		},
	}

	w := doRequest(t, newTestRouter(stub), http.MethodGet, "/v1/users/alice/analysis", "")
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{github.ErrNotFound, "not_found"},
		{github.ErrUnauthorized, "unauthorized"},
		{&github.RateLimitError{RetryAfter: time.Second}, "rate_limited"},
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "canceled"},
		{fmt.Errorf("boom"), "upstream_error"},
	}
	for _, tc := range cases {
		if got := errorKind(tc.err); got != tc.want {
			t.Errorf("errorKind(%v)=%q, want %q", tc.err, got, tc.want)
		}
	}
}
