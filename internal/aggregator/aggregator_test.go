package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-repo-miner/internal/domain"
)

func repo(name string, stars, watchers, forks int) domain.Repository {
	return domain.Repository{Name: name, Stars: stars, Watchers: watchers, Forks: forks}
}

func TestQuantile(t *testing.T) {
	values := []float64{40, 10, 30, 20}
	sorted := sortedCopy(values)

	assert.Equal(t, 10.0, quantile(sorted, 0))
	assert.Equal(t, 17.5, quantile(sorted, 0.25))
	assert.Equal(t, 25.0, quantile(sorted, 0.5))
	assert.Equal(t, 32.5, quantile(sorted, 0.75))
	assert.Equal(t, 40.0, quantile(sorted, 1))
	assert.Equal(t, 0.0, quantile(nil, 0.5))
	assert.Equal(t, []float64{40, 10, 30, 20}, values, "input must not be reordered")
}

func TestCategorize(t *testing.T) {
	// Quartiles for 1..5 are Q1=2, Q3=4 for every metric.
	repos := []domain.Repository{
		repo("a/1", 1, 1, 1),
		repo("a/2", 2, 2, 2),
		repo("a/3", 3, 3, 3),
		repo("a/4", 4, 4, 4),
		repo("a/5", 5, 5, 5),
	}

	got := NewAggregator().Categorize(repos)
	require.Len(t, got, len(repos))

	want := []domain.QualityCategory{
		domain.QualityLesser,
		domain.QualityLesser,
		domain.QualityMedium,
		domain.QualityHigh,
		domain.QualityHigh,
	}
	for i, c := range got {
		assert.Equal(t, repos[i].Name, c.Name)
		assert.Equal(t, want[i], c.QualityCategory, c.Name)
	}
}

func TestCategory(t *testing.T) {
	q := PopularityQuartiles{
		Stars:    domain.Quartiles{Q1: 10, Q3: 100},
		Watchers: domain.Quartiles{Q1: 10, Q3: 100},
		Forks:    domain.Quartiles{Q1: 2, Q3: 20},
	}

	tests := []struct {
		name string
		repo domain.Repository
		want domain.QualityCategory
	}{
		{"all at or above q3", repo("x", 100, 150, 20), domain.QualityHigh},
		{"all at or below q1", repo("x", 10, 5, 2), domain.QualityLesser},
		{"all inside", repo("x", 50, 50, 5), domain.QualityMedium},
		{"upper boundary counts as medium", repo("x", 100, 50, 5), domain.QualityMedium},
		{"lower boundary is not medium", repo("x", 10, 50, 5), domain.QualityExcluded},
		{"mixed", repo("x", 500, 1, 5), domain.QualityExcluded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, category(tt.repo, q))
		})
	}
}

func TestStats(t *testing.T) {
	repos := []domain.Repository{
		repo("a/1", 10, 10, 1),
		repo("a/2", 20, 20, 2),
		repo("a/3", 30, 30, 3),
	}
	repos[0].AvgIssueCloseDays = 0.5
	repos[1].AvgIssueCloseDays = 1.5
	repos[2].AvgIssueCloseDays = 2.5

	stats := NewAggregator().Stats(repos)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, domain.FiveNumberSummary{Min: 10, Q1: 15, Median: 20, Q3: 25, Max: 30}, stats.Stars)
	assert.Equal(t, 1.5, stats.AvgIssueCloseDays.Median)
	assert.Equal(t, 1, stats.Categories[domain.QualityHigh])
	assert.Equal(t, 1, stats.Categories[domain.QualityLesser])
	assert.Equal(t, 1, stats.Categories[domain.QualityMedium])
}

func TestStats_Empty(t *testing.T) {
	stats := NewAggregator().Stats(nil)
	assert.Equal(t, 0, stats.Total)
	assert.Empty(t, stats.Categories)
}
