package collector

import (
	"context"

	"github.com/kurihiro0119/github-repo-miner/internal/domain"
)

// Collector defines the interface for collecting GitHub data
type Collector interface {
	// SearchRepositories runs one search window, paginating up to the
	// search API's result ceiling, most-starred first
	SearchRepositories(ctx context.Context, query domain.SearchQuery) ([]*domain.Candidate, error)

	// GetPullRequestComparisons returns comparison data for the open pull
	// requests whose base commit could be resolved
	GetPullRequestComparisons(ctx context.Context, fullName string) ([]domain.PullRequest, error)

	// GetAverageIssueCloseDays returns the mean close time of recently closed
	// issues in days; ok is false when no closed issue could be measured
	GetAverageIssueCloseDays(ctx context.Context, fullName string) (days float64, ok bool, err error)

	// GetLanguages returns the byte count per language
	GetLanguages(ctx context.Context, fullName string) (map[string]int, error)
}
