// Package analysis builds aggregate reports over a user's starred
// repositories on top of the batch fetcher. Per-repository fetch
// failures reduce coverage; they never abort the bundle.
package analysis

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"stargazer-gateway/internal/fetcher"
	"stargazer-gateway/internal/github"
)

const (
	MinRepositories        = 1
	MaxRepositories        = 200
	DefaultMaxRepositories = 100

	topLanguages = 10
	topTopics    = 15
)

type LanguageCount struct {
	Language   string  `json:"language"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type TopicCount struct {
	Topic      string  `json:"topic"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type StarStats struct {
	Total   int     `json:"total"`
	Average float64 `json:"average"`
	Median  float64 `json:"median"`
	Max     int     `json:"max"`
	Min     int     `json:"min"`
}

type ReadmeStats struct {
	WithReadme    int `json:"with_readme"`
	WithoutReadme int `json:"without_readme"`
}

// ProcessingSummary reports batch coverage: how many repositories were
// requested, how many resolved, and why the rest failed.
type ProcessingSummary struct {
	Requested int               `json:"requested"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Readme    ReadmeStats       `json:"readme"`
	Failures  map[string]string `json:"failures,omitempty"`
}

// Bundle is the full analysis of a user's starred repositories.
type Bundle struct {
	User                 string                `json:"user"`
	TotalStarred         int                   `json:"total_starred"`
	AnalyzedRepositories int                   `json:"analyzed_repositories"`
	Repositories         []*github.RepoDetails `json:"repositories"`
	LanguageDistribution []LanguageCount       `json:"language_distribution"`
	TopicDistribution    []TopicCount          `json:"topic_distribution"`
	StarStats            StarStats             `json:"star_statistics"`
	GeneratedAt          time.Time             `json:"generated_at"`
	Summary              ProcessingSummary     `json:"processing_summary"`
}

// Analyzer builds bundles through a Fetcher.
type Analyzer struct {
	fetcher *fetcher.Fetcher
	logger  *zap.Logger
}

func NewAnalyzer(f *fetcher.Fetcher, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{fetcher: f, logger: logger.Named("analysis")}
}

// Build lists up to maxRepos of user's starred repositories, fetches
// their details with the given batch concurrency, and aggregates the
// result. Listing failures are fatal (there is nothing to analyze);
// detail failures are recorded in the summary.
func (a *Analyzer) Build(ctx context.Context, user string, maxRepos, concurrency int) (*Bundle, error) {
	maxRepos = clampRepos(maxRepos)

	starredAt := make(map[string]*time.Time)
	var names []string
	var cursor string
	totalStarred := 0

	for len(names) < maxRepos {
		limit := maxRepos - len(names)
		if limit > github.MaxPageSize {
			limit = github.MaxPageSize
		}

		page, err := a.fetcher.StarredPage(ctx, user, cursor, limit)
		if err != nil {
			return nil, err
		}
		totalStarred = page.TotalCount

		for i := range page.Repositories {
			r := &page.Repositories[i]
			names = append(names, r.FullName)
			starredAt[r.FullName] = r.StarredAt
		}

		if !page.HasNextPage || len(page.Repositories) == 0 {
			break
		}
		cursor = page.EndCursor
	}

	bundle := &Bundle{
		User:         user,
		TotalStarred: totalStarred,
		GeneratedAt:  time.Now().UTC(),
		Summary:      ProcessingSummary{Requested: len(names)},
	}
	if len(names) == 0 {
		return bundle, nil
	}

	batch := a.fetcher.FetchBatch(ctx, names, concurrency)

	for _, res := range batch {
		if res.Err != nil {
			bundle.Summary.Failed++
			if bundle.Summary.Failures == nil {
				bundle.Summary.Failures = make(map[string]string)
			}
			bundle.Summary.Failures[res.Name] = res.Err.Error()
			continue
		}
		d := res.Details
		if d.StarredAt == nil {
			d.StarredAt = starredAt[res.Name]
		}
		bundle.Repositories = append(bundle.Repositories, d)
		bundle.Summary.Succeeded++
		if d.Readme != "" {
			bundle.Summary.Readme.WithReadme++
		} else {
			bundle.Summary.Readme.WithoutReadme++
		}
	}
	bundle.AnalyzedRepositories = len(bundle.Repositories)

	a.aggregate(bundle)

	a.logger.Info("analysis bundle built",
		zap.String("user", user),
		zap.Int("requested", bundle.Summary.Requested),
		zap.Int("succeeded", bundle.Summary.Succeeded),
		zap.Int("failed", bundle.Summary.Failed),
	)

	return bundle, nil
}

func (a *Analyzer) aggregate(b *Bundle) {
	if len(b.Repositories) == 0 {
		return
	}

	languages := make(map[string]int)
	topics := make(map[string]int)
	stars := make([]int, 0, len(b.Repositories))

	for _, r := range b.Repositories {
		if r.PrimaryLanguage != "" {
			languages[r.PrimaryLanguage]++
		}
		for _, l := range r.Languages {
			if l != r.PrimaryLanguage {
				languages[l]++
			}
		}
		for _, t := range r.Topics {
			topics[t]++
		}
		stars = append(stars, r.Stars)
	}

	base := float64(len(b.Repositories))
	for _, kv := range topCounts(languages, topLanguages) {
		b.LanguageDistribution = append(b.LanguageDistribution, LanguageCount{
			Language:   kv.key,
			Count:      kv.count,
			Percentage: round2(float64(kv.count) / base * 100),
		})
	}
	for _, kv := range topCounts(topics, topTopics) {
		b.TopicDistribution = append(b.TopicDistribution, TopicCount{
			Topic:      kv.key,
			Count:      kv.count,
			Percentage: round2(float64(kv.count) / base * 100),
		})
	}

	b.StarStats = starStats(stars)
}

type keyCount struct {
	key   string
	count int
}

// topCounts returns the n highest counts, ties broken alphabetically
// for stable output.
func topCounts(counts map[string]int, n int) []keyCount {
	out := make([]keyCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, keyCount{k, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func starStats(stars []int) StarStats {
	if len(stars) == 0 {
		return StarStats{}
	}

	sorted := make([]int, len(stars))
	copy(sorted, stars)
	sort.Ints(sorted)

	total := 0
	for _, s := range sorted {
		total += s
	}

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = float64(sorted[mid-1]+sorted[mid]) / 2
	} else {
		median = float64(sorted[mid])
	}

	return StarStats{
		Total:   total,
		Average: round2(float64(total) / float64(len(sorted))),
		Median:  median,
		Max:     sorted[len(sorted)-1],
		Min:     sorted[0],
	}
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func clampRepos(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxRepositories
	case n < MinRepositories:
		return MinRepositories
	case n > MaxRepositories:
		return MaxRepositories
	default:
		return n
	}
}
