package aggregator

import (
	"math"
	"sort"

	"github.com/kurihiro0119/github-repo-miner/internal/domain"
)

// Aggregator computes distribution statistics and quality categories
type Aggregator interface {
	// Quartiles returns Q1 and Q3 of stars, watchers and forks
	Quartiles(repos []domain.Repository) PopularityQuartiles

	// Categorize assigns a quality category to every repository,
	// Excluded ones included, preserving order
	Categorize(repos []domain.Repository) []domain.CategorizedRepository

	// Stats summarizes the dataset
	Stats(repos []domain.Repository) *domain.DatasetStats
}

// PopularityQuartiles holds the quartiles used for categorization
type PopularityQuartiles struct {
	Stars    domain.Quartiles `json:"stars"`
	Watchers domain.Quartiles `json:"watchers"`
	Forks    domain.Quartiles `json:"forks"`
}

// aggregator implements the Aggregator interface
type aggregator struct{}

// NewAggregator creates a new aggregator
func NewAggregator() Aggregator {
	return &aggregator{}
}

func (a *aggregator) Quartiles(repos []domain.Repository) PopularityQuartiles {
	stars, watchers, forks := popularity(repos)
	return PopularityQuartiles{
		Stars:    quartiles(stars),
		Watchers: quartiles(watchers),
		Forks:    quartiles(forks),
	}
}

func (a *aggregator) Categorize(repos []domain.Repository) []domain.CategorizedRepository {
	q := a.Quartiles(repos)

	result := make([]domain.CategorizedRepository, 0, len(repos))
	for _, r := range repos {
		result = append(result, domain.CategorizedRepository{
			Repository:      r,
			QualityCategory: category(r, q),
		})
	}
	return result
}

func (a *aggregator) Stats(repos []domain.Repository) *domain.DatasetStats {
	stars, watchers, forks := popularity(repos)
	closeDays := make([]float64, 0, len(repos))
	for _, r := range repos {
		closeDays = append(closeDays, r.AvgIssueCloseDays)
	}

	stats := &domain.DatasetStats{
		Total:             len(repos),
		Stars:             summarize(stars),
		Watchers:          summarize(watchers),
		Forks:             summarize(forks),
		AvgIssueCloseDays: summarize(closeDays),
		Categories:        make(map[domain.QualityCategory]int),
	}
	for _, c := range a.Categorize(repos) {
		stats.Categories[c.QualityCategory]++
	}
	return stats
}

// category applies the quartile rule: high when every metric reaches Q3,
// lesser when every metric is at most Q1, medium when every metric lies in
// (Q1, Q3]
func category(r domain.Repository, q PopularityQuartiles) domain.QualityCategory {
	stars, watchers, forks := float64(r.Stars), float64(r.Watchers), float64(r.Forks)

	switch {
	case stars >= q.Stars.Q3 && watchers >= q.Watchers.Q3 && forks >= q.Forks.Q3:
		return domain.QualityHigh
	case stars <= q.Stars.Q1 && watchers <= q.Watchers.Q1 && forks <= q.Forks.Q1:
		return domain.QualityLesser
	case within(stars, q.Stars) && within(watchers, q.Watchers) && within(forks, q.Forks):
		return domain.QualityMedium
	default:
		return domain.QualityExcluded
	}
}

func within(v float64, q domain.Quartiles) bool {
	return v > q.Q1 && v <= q.Q3
}

func popularity(repos []domain.Repository) (stars, watchers, forks []float64) {
	stars = make([]float64, 0, len(repos))
	watchers = make([]float64, 0, len(repos))
	forks = make([]float64, 0, len(repos))
	for _, r := range repos {
		stars = append(stars, float64(r.Stars))
		watchers = append(watchers, float64(r.Watchers))
		forks = append(forks, float64(r.Forks))
	}
	return stars, watchers, forks
}

func quartiles(values []float64) domain.Quartiles {
	sorted := sortedCopy(values)
	return domain.Quartiles{
		Q1: quantile(sorted, 0.25),
		Q3: quantile(sorted, 0.75),
	}
}

func summarize(values []float64) domain.FiveNumberSummary {
	sorted := sortedCopy(values)
	return domain.FiveNumberSummary{
		Min:    quantile(sorted, 0),
		Q1:     quantile(sorted, 0.25),
		Median: quantile(sorted, 0.5),
		Q3:     quantile(sorted, 0.75),
		Max:    quantile(sorted, 1),
	}
}

// quantile returns the q-quantile of sorted values using linear
// interpolation between closest ranks, or 0 for an empty slice
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func sortedCopy(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted
}
