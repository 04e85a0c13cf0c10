package miner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kurihiro0119/github-repo-miner/internal/collector"
	"github.com/kurihiro0119/github-repo-miner/internal/domain"
)

// Rejection reasons
const (
	ReasonNoPullRequests   = "no valid pull requests"
	ReasonNoClosedIssues   = "not enough closed issues"
	ReasonSlowIssueClosing = "average issue close time too high"
	ReasonEvaluationFailed = "evaluation failed"
)

// Evaluator decides whether a candidate is accepted
type Evaluator struct {
	collector    collector.Collector
	maxCloseDays float64
	logger       *slog.Logger
}

// NewEvaluator creates an evaluator accepting repositories whose average
// issue close time is strictly below maxCloseDays
func NewEvaluator(c collector.Collector, maxCloseDays float64, logger *slog.Logger) *Evaluator {
	return &Evaluator{collector: c, maxCloseDays: maxCloseDays, logger: logger}
}

// Evaluate returns the accepted repository or the reason it was rejected.
// Errors are returned unchanged so the caller can tell cancellation apart.
func (e *Evaluator) Evaluate(ctx context.Context, cand *domain.Candidate) (*domain.Repository, *domain.Rejection, error) {
	name := cand.FullName

	prs, err := e.collector.GetPullRequestComparisons(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("pull requests of %s: %w", name, err)
	}
	if len(prs) == 0 {
		return nil, reject(name, ReasonNoPullRequests), nil
	}

	avg, ok, err := e.collector.GetAverageIssueCloseDays(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("issues of %s: %w", name, err)
	}
	if !ok {
		return nil, reject(name, ReasonNoClosedIssues), nil
	}
	if avg >= e.maxCloseDays {
		return nil, reject(name, fmt.Sprintf("%s (%.2f >= %g days)", ReasonSlowIssueClosing, avg, e.maxCloseDays)), nil
	}

	languages, err := e.collector.GetLanguages(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		// Languages are descriptive only; the repository still qualifies.
		e.logger.Warn("failed to get languages", "repo", name, "error", err)
		languages = nil
	}

	return &domain.Repository{
		Name:              name,
		URL:               cand.HTMLURL,
		Stars:             cand.Stars,
		Watchers:          cand.Watchers,
		Forks:             cand.Forks,
		CreatedAt:         cand.CreatedAt,
		UpdatedAt:         cand.UpdatedAt,
		AvgIssueCloseDays: avg,
		PullRequests:      prs,
		DefaultBranch:     cand.DefaultBranch,
		Languages:         languages,
		DominantLanguage:  DominantLanguage(languages),
	}, nil, nil
}

// DominantLanguage returns the language with the most bytes. Ties go to
// the alphabetically first name.
func DominantLanguage(languages map[string]int) string {
	best := ""
	bestBytes := -1
	for lang, bytes := range languages {
		if bytes > bestBytes || (bytes == bestBytes && lang < best) {
			best, bestBytes = lang, bytes
		}
	}
	return best
}

func reject(name, reason string) *domain.Rejection {
	return &domain.Rejection{Name: name, Reason: reason}
}
