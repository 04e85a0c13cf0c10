package exporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"strconv"

	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	"github.com/kurihiro0119/github-repo-miner/internal/fsutil"
)

var repositoryColumns = []string{
	"name",
	"url",
	"stars",
	"watchers",
	"forks",
	"created_at",
	"updated_at",
	"avg_issue_close_days",
	"default_branch",
	"dominant_language",
	"total_prs",
	"total_commits",
	"pr_titles",
}

// MarshalJSON encodes v with two-space indentation and a trailing newline
func MarshalJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WriteJSON writes v to path atomically
func WriteJSON(path string, v any) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// EncodeRepositoriesCSV renders the flat CSV view of repositories
func EncodeRepositoriesCSV(repos []domain.Repository) ([]byte, error) {
	rows := make([][]string, 0, len(repos))
	for i := range repos {
		rows = append(rows, repositoryRow(&repos[i]))
	}
	return encodeCSV(repositoryColumns, rows)
}

// EncodeCategorizedCSV renders the CSV view with a quality_category column
func EncodeCategorizedCSV(repos []domain.CategorizedRepository) ([]byte, error) {
	header := append(append([]string{}, repositoryColumns...), "quality_category")
	rows := make([][]string, 0, len(repos))
	for i := range repos {
		row := repositoryRow(&repos[i].Repository)
		rows = append(rows, append(row, string(repos[i].QualityCategory)))
	}
	return encodeCSV(header, rows)
}

// WriteRepositoriesCSV writes the flat CSV view to path atomically
func WriteRepositoriesCSV(path string, repos []domain.Repository) error {
	data, err := EncodeRepositoriesCSV(repos)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// WriteCategorizedCSV writes the categorized CSV view to path atomically
func WriteCategorizedCSV(path string, repos []domain.CategorizedRepository) error {
	data, err := EncodeCategorizedCSV(repos)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

func repositoryRow(r *domain.Repository) []string {
	return []string{
		r.Name,
		r.URL,
		strconv.Itoa(r.Stars),
		strconv.Itoa(r.Watchers),
		strconv.Itoa(r.Forks),
		r.CreatedAt,
		r.UpdatedAt,
		strconv.FormatFloat(math.Round(r.AvgIssueCloseDays*100)/100, 'f', -1, 64),
		r.DefaultBranch,
		r.DominantLanguage,
		strconv.Itoa(len(r.PullRequests)),
		strconv.Itoa(r.TotalCommits()),
		r.PullRequestTitles(),
	}
}

func encodeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
