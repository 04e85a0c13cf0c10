package domain

// QualityCategory is the popularity class assigned during post-processing
type QualityCategory string

const (
	QualityHigh     QualityCategory = "high"
	QualityMedium   QualityCategory = "medium"
	QualityLesser   QualityCategory = "lesser"
	QualityExcluded QualityCategory = "Excluded"
)

// CategorizedRepository is a repository with its quality category
type CategorizedRepository struct {
	Repository
	QualityCategory QualityCategory `json:"quality_category"`
}

// Quartiles holds the first and third quartile of a metric
type Quartiles struct {
	Q1 float64 `json:"q1"`
	Q3 float64 `json:"q3"`
}

// FiveNumberSummary describes the distribution of a metric
type FiveNumberSummary struct {
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// DatasetStats summarizes a consolidated dataset
type DatasetStats struct {
	Total             int                     `json:"total"`
	Stars             FiveNumberSummary       `json:"stars"`
	Watchers          FiveNumberSummary       `json:"watchers"`
	Forks             FiveNumberSummary       `json:"forks"`
	AvgIssueCloseDays FiveNumberSummary       `json:"avg_issue_close_days"`
	Categories        map[QualityCategory]int `json:"categories"`
}
