package miner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/kurihiro0119/github-repo-miner/internal/collector"
	"github.com/kurihiro0119/github-repo-miner/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCollector serves a fixed universe of repositories, most-starred first
type fakeCollector struct {
	mu        sync.Mutex
	universe  []*domain.Candidate
	resultCap int
	// truncateAt > 0 cuts windows short the way the search API does
	truncateAt int

	rejected  map[string]bool
	closeDays map[string]float64
	failures  map[string]error

	searches    []domain.SearchQuery
	evaluations map[string]int
}

func newFakeCollector(stars ...int) *fakeCollector {
	f := &fakeCollector{
		resultCap:   1000,
		rejected:    map[string]bool{},
		closeDays:   map[string]float64{},
		failures:    map[string]error{},
		evaluations: map[string]int{},
	}
	for i, s := range stars {
		name := fmt.Sprintf("org/repo-%02d", i+1)
		f.universe = append(f.universe, &domain.Candidate{
			FullName:      name,
			HTMLURL:       "https://github.com/" + name,
			Stars:         s,
			Watchers:      s,
			Forks:         s / 10,
			DefaultBranch: "main",
		})
	}
	return f
}

func (f *fakeCollector) names() []string {
	var names []string
	for _, c := range f.universe {
		names = append(names, c.FullName)
	}
	return names
}

func (f *fakeCollector) SearchRepositories(_ context.Context, q domain.SearchQuery) ([]*domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, q)

	var out []*domain.Candidate
	for _, c := range f.universe {
		if c.Stars < q.MinStars || (q.MaxStars != nil && c.Stars > *q.MaxStars) {
			continue
		}
		cp := *c
		out = append(out, &cp)
		if len(out) == f.resultCap {
			break
		}
	}
	if f.truncateAt > 0 && len(out) > f.truncateAt {
		return out[:f.truncateAt], fmt.Errorf("%w at page 2", collector.ErrSearchTruncated)
	}
	return out, nil
}

func (f *fakeCollector) GetPullRequestComparisons(_ context.Context, name string) ([]domain.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluations[name]++

	if err := f.failures[name]; err != nil {
		return nil, err
	}
	if f.rejected[name] {
		return nil, nil
	}
	return []domain.PullRequest{{
		Number:        1,
		Title:         "Improve " + name,
		BaseCommitSHA: "base",
		HeadCommitSHA: "head",
		Commits:       []domain.Commit{{SHA: "head"}},
	}}, nil
}

func (f *fakeCollector) GetAverageIssueCloseDays(_ context.Context, name string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if days, ok := f.closeDays[name]; ok {
		return days, days >= 0, nil
	}
	return 1, true, nil
}

func (f *fakeCollector) GetLanguages(_ context.Context, _ string) (map[string]int, error) {
	return map[string]int{"Java": 900, "Shell": 100}, nil
}
