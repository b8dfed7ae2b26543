package github

import (
	"context"
	"time"
)

// RepoDetails is the repository view cached and served by the gateway.
type RepoDetails struct {
	FullName        string     `json:"full_name"`
	Name            string     `json:"name"`
	Owner           string     `json:"owner"`
	Description     string     `json:"description,omitempty"`
	Stars           int        `json:"stars"`
	URL             string     `json:"url"`
	PrimaryLanguage string     `json:"primary_language,omitempty"`
	Languages       []string   `json:"languages,omitempty"`
	Topics          []string   `json:"topics,omitempty"`
	DiskUsage       int        `json:"disk_usage,omitempty"`
	PushedAt        *time.Time `json:"pushed_at,omitempty"`
	StarredAt       *time.Time `json:"starred_at,omitempty"`
	Readme          string     `json:"readme,omitempty"`
}

// StarredPage is one page of a user's starred repositories, ordered by
// starred-at descending.
type StarredPage struct {
	Repositories []RepoDetails `json:"repositories"`
	TotalCount   int           `json:"total_count"`
	HasNextPage  bool          `json:"has_next_page"`
	EndCursor    string        `json:"end_cursor,omitempty"`
}

// User is the minimal profile returned for account lookups.
type User struct {
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Client is the upstream collaborator boundary. The production
// implementation talks to GitHub's GraphQL API; tests substitute fakes.
type Client interface {
	FetchRepository(ctx context.Context, fullName string) (*RepoDetails, error)
	ListStarred(ctx context.Context, user, cursor string, limit int) (*StarredPage, error)
	FetchUser(ctx context.Context, login string) (*User, error)
}
