package exporter

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-repo-miner/internal/domain"
)

func sampleRepository() domain.Repository {
	return domain.Repository{
		Name:              "acme/widget",
		URL:               "https://github.com/acme/widget",
		Stars:             120,
		Watchers:          120,
		Forks:             30,
		CreatedAt:         "2019-03-01T00:00:00Z",
		UpdatedAt:         "2024-03-01T00:00:00Z",
		AvgIssueCloseDays: 1.23456,
		DefaultBranch:     "main",
		DominantLanguage:  "Java",
		Languages:         map[string]int{"Java": 100},
		PullRequests: []domain.PullRequest{
			{Number: 1, Title: "Fix, the bug", Commits: []domain.Commit{{SHA: "a"}, {SHA: "b"}}},
			{Number: 2, Title: "Add docs", Commits: []domain.Commit{{SHA: "c"}}},
		},
	}
}

func TestEncodeRepositoriesCSV(t *testing.T) {
	data, err := EncodeRepositoriesCSV([]domain.Repository{sampleRepository()})
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, repositoryColumns, records[0])
	row := records[1]
	assert.Equal(t, "acme/widget", row[0])
	assert.Equal(t, "1.23", row[7])
	assert.Equal(t, "2", row[10])
	assert.Equal(t, "3", row[11])
	assert.Equal(t, "Fix, the bug; Add docs", row[12])
}

func TestEncodeCategorizedCSV(t *testing.T) {
	data, err := EncodeCategorizedCSV([]domain.CategorizedRepository{
		{Repository: sampleRepository(), QualityCategory: domain.QualityHigh},
	})
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "quality_category", records[0][len(records[0])-1])
	assert.Equal(t, "high", records[1][len(records[1])-1])
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "repos.json")
	require.NoError(t, WriteJSON(path, []domain.Repository{sampleRepository()}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n"))
	assert.Contains(t, string(data), "\n  {")

	var repos []domain.Repository
	require.NoError(t, json.Unmarshal(data, &repos))
	require.Len(t, repos, 1)
	assert.Equal(t, "acme/widget", repos[0].Name)
}
