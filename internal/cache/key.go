package cache

import (
	"errors"
	"fmt"
	"strings"
)

// Cache keys are derived from the logical request so that identical
// requests always map to the same entry:
//
//	repo:<owner>/<name>
//	starred:<user>:<cursor>:<limit>
//
// Cursors are opaque GraphQL strings; the user and limit bound the key
// on both sides, so distinct requests cannot collide.

// RepoKey builds the cache key for a single repository's details.
func RepoKey(fullName string) string {
	return "repo:" + fullName
}

// StarredKey builds the cache key for one page of a user's starred
// repositories. An empty cursor addresses the first page.
func StarredKey(user, cursor string, limit int) string {
	return fmt.Sprintf("starred:%s:%s:%d", user, cursor, limit)
}

// ValidateRepoName checks the owner/name shape before it is used as a
// key or sent upstream.
func ValidateRepoName(fullName string) error {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return errors.New("repository name is empty")
	}
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("repository name %q is not in owner/name form", fullName)
	}
	return nil
}
