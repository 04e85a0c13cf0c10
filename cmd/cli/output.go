package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/kurihiro0119/github-repo-miner/internal/consolidator"
	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	"github.com/kurihiro0119/github-repo-miner/internal/miner"
)

func printBanner(title string) {
	line := strings.Repeat("=", 60)
	fmt.Println(line)
	fmt.Printf("  %s at %s\n", title, time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(line)
}

func printMineSummary(s *miner.Summary) {
	fmt.Printf("\nMining Summary (run %s)\n\n", s.RunID)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"State", string(s.State)})
	table.Append([]string{"Accepted", fmt.Sprintf("%d", s.Accepted)})
	table.Append([]string{"Rejected", fmt.Sprintf("%d", s.Rejected)})
	table.Append([]string{"Evaluated This Session", fmt.Sprintf("%d", s.Evaluated)})
	table.Append([]string{"Next Candidate Index", fmt.Sprintf("%d", s.NextIndex)})
	table.Append([]string{"Cached Candidates", fmt.Sprintf("%d", s.Candidates)})
	table.Append([]string{"Batch Files", fmt.Sprintf("%d (%d new)", s.BatchesWritten, s.NewBatches)})
	table.Append([]string{"Source Exhausted", fmt.Sprintf("%t", s.SourceExhausted)})
	table.Append([]string{"Interrupted", fmt.Sprintf("%t", s.Interrupted)})
	table.Append([]string{"Elapsed", s.Elapsed.Round(time.Second).String()})
	table.Render()
}

func printConsolidateResult(r *consolidator.Result) {
	fmt.Printf("\nConsolidation\n\n")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Batch Files", fmt.Sprintf("%d", r.BatchFiles)})
	table.Append([]string{"Records Read", fmt.Sprintf("%d", r.Records)})
	table.Append([]string{"Unique Repositories", fmt.Sprintf("%d", r.Unique)})
	table.Append([]string{"JSON", r.JSONPath})
	table.Append([]string{"CSV", r.CSVPath})
	table.Render()
}

func printFilterResult(r *consolidator.FilterResult) {
	fmt.Printf("\nQuality Filter\n\n")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Category", "Repositories"})
	for _, c := range []domain.QualityCategory{domain.QualityHigh, domain.QualityMedium, domain.QualityLesser, domain.QualityExcluded} {
		table.Append([]string{string(c), fmt.Sprintf("%d", r.Categories[c])})
	}
	table.SetFooter([]string{"Kept", fmt.Sprintf("%d / %d", r.Kept, r.Total)})
	table.Render()

	fmt.Printf("\nQuartiles (Q1 / Q3): stars %.1f / %.1f, watchers %.1f / %.1f, forks %.1f / %.1f\n",
		r.Quartiles.Stars.Q1, r.Quartiles.Stars.Q3,
		r.Quartiles.Watchers.Q1, r.Quartiles.Watchers.Q3,
		r.Quartiles.Forks.Q1, r.Quartiles.Forks.Q3)
	fmt.Printf("Dataset written to %s and %s\n", r.JSONPath, r.CSVPath)
}

func printStatistics(s domain.Statistics) {
	fmt.Printf("\nMining Progress (run %s)\n\n", s.RunID)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"State", string(s.State)})
	table.Append([]string{"Accepted", fmt.Sprintf("%d", s.TotalAccepted)})
	table.Append([]string{"Rejected", fmt.Sprintf("%d", s.TotalRejected)})
	table.Append([]string{"Next Candidate Index", fmt.Sprintf("%d", s.LastIndex)})
	table.Append([]string{"Cached Candidates", fmt.Sprintf("%d", s.SearchResults)})
	table.Append([]string{"Batch Files", fmt.Sprintf("%d", s.BatchesWritten)})
	table.Append([]string{"Source Exhausted", fmt.Sprintf("%t", s.SourceExhausted)})
	table.Append([]string{"Updated At", s.UpdatedAt})
	table.Render()
}

func printBatches(infos []domain.BatchInfo) {
	if len(infos) == 0 {
		return
	}
	fmt.Printf("\nBatch Files\n\n")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Batch", "Repositories", "Candidates", "Created At"})
	for _, info := range infos {
		table.Append([]string{
			fmt.Sprintf("%d", info.Number),
			fmt.Sprintf("%d", info.Repositories),
			fmt.Sprintf("%d..%d", info.StartIndex, info.EndIndex),
			info.CreatedAt.Format(time.RFC3339),
		})
	}
	table.Render()
}

func printDatasetStats(s *domain.DatasetStats) {
	fmt.Printf("\nDataset Statistics (%d repositories)\n\n", s.Total)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Min", "Q1", "Median", "Q3", "Max"})
	rows := []struct {
		name    string
		summary domain.FiveNumberSummary
	}{
		{"Stars", s.Stars},
		{"Watchers", s.Watchers},
		{"Forks", s.Forks},
		{"Avg Issue Close Days", s.AvgIssueCloseDays},
	}
	for _, row := range rows {
		table.Append([]string{
			row.name,
			fmt.Sprintf("%.2f", row.summary.Min),
			fmt.Sprintf("%.2f", row.summary.Q1),
			fmt.Sprintf("%.2f", row.summary.Median),
			fmt.Sprintf("%.2f", row.summary.Q3),
			fmt.Sprintf("%.2f", row.summary.Max),
		})
	}
	table.Render()

	fmt.Println()
	categories := tablewriter.NewWriter(os.Stdout)
	categories.SetHeader([]string{"Category", "Repositories"})
	for _, c := range []domain.QualityCategory{domain.QualityHigh, domain.QualityMedium, domain.QualityLesser, domain.QualityExcluded} {
		categories.Append([]string{string(c), fmt.Sprintf("%d", s.Categories[c])})
	}
	categories.Render()
}
