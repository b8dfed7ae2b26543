package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"stargazer-gateway/internal/metrics"
)

// Starred pages are capped at GitHub's GraphQL page limit.
const (
	MaxPageSize     = 100
	DefaultPageSize = 30
)

const repoDetailsQuery = `
query RepoDetails($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    nameWithOwner
    name
    description
    stargazerCount
    url
    diskUsage
    pushedAt
    primaryLanguage { name }
    languages(first: 10) { nodes { name } }
    repositoryTopics(first: 5) { nodes { topic { name } } }
    readme: object(expression: "HEAD:README.md") { ... on Blob { text } }
  }
}`

const starredReposQuery = `
query StarredRepositories($login: String!, $cursor: String, $limit: Int!) {
  user(login: $login) {
    starredRepositories(first: $limit, after: $cursor, orderBy: {field: STARRED_AT, direction: DESC}) {
      totalCount
      pageInfo { endCursor hasNextPage }
      edges {
        starredAt
        node {
          nameWithOwner
          name
          description
          stargazerCount
          url
          diskUsage
          pushedAt
          primaryLanguage { name }
          repositoryTopics(first: 5) { nodes { topic { name } } }
        }
      }
    }
  }
}`

const userInfoQuery = `
query UserInfo($login: String!) {
  user(login: $login) {
    login
    name
    avatarUrl
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// --- wire shapes ---

type nameNode struct {
	Name string `json:"name"`
}

type repoNode struct {
	NameWithOwner   string     `json:"nameWithOwner"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	StargazerCount  int        `json:"stargazerCount"`
	URL             string     `json:"url"`
	DiskUsage       int        `json:"diskUsage"`
	PushedAt        *time.Time `json:"pushedAt"`
	PrimaryLanguage *nameNode  `json:"primaryLanguage"`
	Languages       *struct {
		Nodes []nameNode `json:"nodes"`
	} `json:"languages"`
	RepositoryTopics *struct {
		Nodes []struct {
			Topic nameNode `json:"topic"`
		} `json:"nodes"`
	} `json:"repositoryTopics"`
	Readme *struct {
		Text string `json:"text"`
	} `json:"readme"`
}

func (n *repoNode) toDetails() *RepoDetails {
	d := &RepoDetails{
		FullName:    n.NameWithOwner,
		Name:        n.Name,
		Description: n.Description,
		Stars:       n.StargazerCount,
		URL:         n.URL,
		DiskUsage:   n.DiskUsage,
		PushedAt:    n.PushedAt,
	}
	if owner, _, ok := strings.Cut(n.NameWithOwner, "/"); ok {
		d.Owner = owner
	}
	if n.PrimaryLanguage != nil {
		d.PrimaryLanguage = n.PrimaryLanguage.Name
	}
	if n.Languages != nil {
		for _, l := range n.Languages.Nodes {
			d.Languages = append(d.Languages, l.Name)
		}
	}
	if n.RepositoryTopics != nil {
		for _, t := range n.RepositoryTopics.Nodes {
			d.Topics = append(d.Topics, t.Topic.Name)
		}
	}
	if n.Readme != nil {
		d.Readme = n.Readme.Text
	}
	return d
}

// FetchRepository loads one repository's details, including its README.
func (c *client) FetchRepository(ctx context.Context, fullName string) (*RepoDetails, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("github: repository name %q is not in owner/name form", fullName)
	}

	data, err := c.query(ctx, repoDetailsQuery, map[string]any{
		"owner": owner,
		"name":  name,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Repository *repoNode `json:"repository"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("github: decode repository response: %w", err)
	}
	if payload.Repository == nil {
		return nil, fmt.Errorf("%w: repository %s", ErrNotFound, fullName)
	}

	return payload.Repository.toDetails(), nil
}

// ListStarred fetches one page of user's starred repositories. An empty
// cursor requests the first page; limit is clamped to [1, 100].
func (c *client) ListStarred(ctx context.Context, user, cursor string, limit int) (*StarredPage, error) {
	if user == "" {
		return nil, fmt.Errorf("github: user login is empty")
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	vars := map[string]any{
		"login": user,
		"limit": limit,
	}
	if cursor != "" {
		vars["cursor"] = cursor
	}

	data, err := c.query(ctx, starredReposQuery, vars)
	if err != nil {
		return nil, err
	}

	var payload struct {
		User *struct {
			StarredRepositories struct {
				TotalCount int `json:"totalCount"`
				PageInfo   struct {
					EndCursor   string `json:"endCursor"`
					HasNextPage bool   `json:"hasNextPage"`
				} `json:"pageInfo"`
				Edges []struct {
					StarredAt *time.Time `json:"starredAt"`
					Node      repoNode   `json:"node"`
				} `json:"edges"`
			} `json:"starredRepositories"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("github: decode starred response: %w", err)
	}
	if payload.User == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, user)
	}

	starred := payload.User.StarredRepositories
	page := &StarredPage{
		Repositories: make([]RepoDetails, 0, len(starred.Edges)),
		TotalCount:   starred.TotalCount,
		HasNextPage:  starred.PageInfo.HasNextPage,
		EndCursor:    starred.PageInfo.EndCursor,
	}
	for _, edge := range starred.Edges {
		d := edge.Node.toDetails()
		d.StarredAt = edge.StarredAt
		page.Repositories = append(page.Repositories, *d)
	}

	return page, nil
}

// FetchUser loads a user's profile.
func (c *client) FetchUser(ctx context.Context, login string) (*User, error) {
	if login == "" {
		return nil, fmt.Errorf("github: user login is empty")
	}

	data, err := c.query(ctx, userInfoQuery, map[string]any{"login": login})
	if err != nil {
		return nil, err
	}

	var payload struct {
		User *struct {
			Login     string `json:"login"`
			Name      string `json:"name"`
			AvatarURL string `json:"avatarUrl"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("github: decode user response: %w", err)
	}
	if payload.User == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, login)
	}

	return &User{
		Login:     payload.User.Login,
		Name:      payload.User.Name,
		AvatarURL: payload.User.AvatarURL,
	}, nil
}

// query runs one GraphQL request with pacing, retries and outcome
// accounting, returning the raw data document.
func (c *client) query(parentCtx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	metrics.UpstreamInFlight.Inc()
	defer metrics.UpstreamInFlight.Dec()

	data, err := c.doQuery(parentCtx, query, variables)
	metrics.UpstreamRequestsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	return data, err
}

func (c *client) doQuery(parentCtx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("github: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	// Pace outbound calls below GitHub's secondary limits.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	doOnce := func(ctx context.Context) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("github: build HTTP request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/vnd.github.v4+json")
		httpReq.Header.Set("User-Agent", "stargazer-gateway/1.0")
		return c.httpClient.Do(httpReq)
	}

	resp, err := c.doWithRetry(ctx, doOnce)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: parseRetryAfter(resp, time.Minute)}
	case resp.StatusCode == http.StatusForbidden:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if strings.Contains(strings.ToLower(string(raw)), "rate limit") {
			return nil, &RateLimitError{RetryAfter: parseRetryAfter(resp, time.Minute)}
		}
		return nil, fmt.Errorf("github: forbidden: %s", strings.TrimSpace(string(raw)))
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("github: upstream %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return nil, fmt.Errorf("github: decode response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		msgs := make([]string, 0, len(gqlResp.Errors))
		for _, e := range gqlResp.Errors {
			if e.Type == "NOT_FOUND" {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, e.Message)
			}
			msgs = append(msgs, e.Message)
		}
		c.logger.Error("graphql errors", zap.Strings("errors", msgs))
		return nil, fmt.Errorf("github: graphql errors: %s", strings.Join(msgs, "; "))
	}

	return gqlResp.Data, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		if _, ok := RetryAfterHint(err); ok {
			return "rate_limited"
		}
		return "error"
	}
}
