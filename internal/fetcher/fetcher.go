// Package fetcher resolves repository lookups through the layered cache
// and, on misses, against GitHub — deduplicated per key, bounded in
// concurrency, and paused globally while the upstream is rate limiting.
package fetcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"stargazer-gateway/internal/cache"
	"stargazer-gateway/internal/github"
	"stargazer-gateway/internal/singleflight"
)

const (
	// Batch concurrency is clamped to [MinConcurrency, MaxConcurrency].
	MinConcurrency     = 1
	MaxConcurrency     = 20
	DefaultConcurrency = 10

	// MaxBatchSize bounds one FetchBatch call.
	MaxBatchSize = 100

	// DefaultCacheTTL is the lifetime of fetched values in the shared tier.
	DefaultCacheTTL = 30 * time.Minute
)

// Result is the per-key outcome of a batch: either Details or Err is
// set, never both.
type Result struct {
	Name    string
	Details *github.RepoDetails
	Err     error
}

// BatchResult holds one Result per requested name, in request order,
// regardless of individual failures.
type BatchResult []Result

// Fetcher coordinates cache lookups, singleflight deduplication and
// bounded upstream fetches for repository details and starred pages.
type Fetcher struct {
	client github.Client
	repos  *cache.Layered[*github.RepoDetails]
	pages  *cache.Layered[*github.StarredPage]
	ttl    time.Duration
	logger *zap.Logger

	repoFlight singleflight.Group[string, *github.RepoDetails]
	pageFlight singleflight.Group[string, *github.StarredPage]

	// sem is the single gate on outbound fetch volume; every upstream
	// call goes through it.
	sem  *semaphore.Weighted
	gate *backoffGate
}

// New wires a Fetcher over the given collaborators. ttl <= 0 falls back
// to DefaultCacheTTL.
func New(
	client github.Client,
	repos *cache.Layered[*github.RepoDetails],
	pages *cache.Layered[*github.StarredPage],
	ttl time.Duration,
	logger *zap.Logger,
) *Fetcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		client: client,
		repos:  repos,
		pages:  pages,
		ttl:    ttl,
		logger: logger.Named("fetcher"),
		sem:    semaphore.NewWeighted(MaxConcurrency),
		gate:   &backoffGate{},
	}
}

// Repo resolves one repository: cache first, then a deduplicated
// upstream fetch.
func (f *Fetcher) Repo(ctx context.Context, fullName string) (*github.RepoDetails, error) {
	if err := cache.ValidateRepoName(fullName); err != nil {
		return nil, err
	}
	if d, ok := f.repos.Get(ctx, cache.RepoKey(fullName)); ok {
		return d, nil
	}
	return f.resolve(ctx, fullName, nil)
}

// FetchBatch resolves names against the cache and fetches the misses
// with at most concurrency upstream calls in flight for this batch.
// The result has exactly one entry per input name, in input order;
// duplicates collapse to one fetch but keep their output positions.
// Per-key failures never abort sibling keys.
func (f *Fetcher) FetchBatch(ctx context.Context, names []string, concurrency int) BatchResult {
	out := make(BatchResult, len(names))
	for i, n := range names {
		out[i].Name = n
	}
	if len(names) == 0 {
		return out
	}

	type slot struct {
		d   *github.RepoDetails
		err error
	}

	// Pass 1: dedupe and serve cache hits without taking a slot.
	results := make(map[string]*slot, len(names))
	var missing []string
	for _, n := range names {
		if _, seen := results[n]; seen {
			continue
		}
		s := &slot{}
		results[n] = s

		if err := cache.ValidateRepoName(n); err != nil {
			s.err = err
			continue
		}
		if d, ok := f.repos.Get(ctx, cache.RepoKey(n)); ok {
			s.d = d
			continue
		}
		missing = append(missing, n)
	}

	// Pass 2: fetch the misses. Each goroutine writes only its own
	// slot; the map itself is read-only from here on.
	if len(missing) > 0 {
		batchSem := semaphore.NewWeighted(int64(clampConcurrency(concurrency)))
		var wg sync.WaitGroup
		for _, n := range missing {
			wg.Add(1)
			go func(n string) {
				defer wg.Done()
				s := results[n]
				s.d, s.err = f.resolve(ctx, n, batchSem)
			}(n)
		}
		wg.Wait()
	}

	for i, n := range names {
		s := results[n]
		out[i].Details, out[i].Err = s.d, s.err
	}
	return out
}

// StarredPage resolves one page of a user's starred repositories,
// cached and deduplicated like repository details.
func (f *Fetcher) StarredPage(ctx context.Context, user, cursor string, limit int) (*github.StarredPage, error) {
	key := cache.StarredKey(user, cursor, limit)
	if p, ok := f.pages.Get(ctx, key); ok {
		return p, nil
	}

	return f.pageFlight.Do(ctx, key, func() (*github.StarredPage, error) {
		if p, ok := f.pages.Get(ctx, key); ok {
			return p, nil
		}
		if err := f.admit(ctx, nil); err != nil {
			return nil, err
		}
		defer f.sem.Release(1)

		p, err := f.client.ListStarred(ctx, user, cursor, limit)
		if err != nil {
			f.noteRateLimit(err)
			return nil, err
		}
		f.pages.Set(ctx, key, p, f.ttl)
		return p, nil
	})
}

// resolve routes one cache miss through singleflight. Only the leader
// takes concurrency slots; waiters on an in-flight fetch hold nothing.
func (f *Fetcher) resolve(ctx context.Context, fullName string, batchSem *semaphore.Weighted) (*github.RepoDetails, error) {
	key := cache.RepoKey(fullName)

	return f.repoFlight.Do(ctx, key, func() (*github.RepoDetails, error) {
		// A fetch from another batch may have landed between our cache
		// check and becoming leader.
		if d, ok := f.repos.Get(ctx, key); ok {
			return d, nil
		}

		if err := f.admit(ctx, batchSem); err != nil {
			return nil, err
		}
		defer f.sem.Release(1)
		if batchSem != nil {
			defer batchSem.Release(1)
		}

		d, err := f.client.FetchRepository(ctx, fullName)
		if err != nil {
			f.noteRateLimit(err)
			return nil, err
		}

		f.repos.Set(ctx, key, d, f.ttl)
		return d, nil
	})
}

// admit blocks until upstream work may proceed: any active rate-limit
// pause has lapsed, a slot in batchSem (when non-nil) and a slot in the
// global gate are held. On success the caller owns one global slot and,
// if batchSem was given, one batch slot.
func (f *Fetcher) admit(ctx context.Context, batchSem *semaphore.Weighted) error {
	if err := f.gate.Wait(ctx); err != nil {
		return err
	}
	if batchSem != nil {
		if err := batchSem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	if err := f.sem.Acquire(ctx, 1); err != nil {
		if batchSem != nil {
			batchSem.Release(1)
		}
		return err
	}
	return nil
}

func (f *Fetcher) noteRateLimit(err error) {
	if hint, ok := github.RetryAfterHint(err); ok {
		f.gate.Pause(hint)
		f.logger.Warn("upstream rate limited, pausing admissions",
			zap.Duration("retry_after", hint),
		)
	}
}

func clampConcurrency(c int) int {
	switch {
	case c <= 0:
		return DefaultConcurrency
	case c < MinConcurrency:
		return MinConcurrency
	case c > MaxConcurrency:
		return MaxConcurrency
	default:
		return c
	}
}
