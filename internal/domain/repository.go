package domain

import (
	"fmt"
	"strings"
)

// SearchQuery describes one window of the repository search.
// A nil MaxStars means the window is open-ended upwards.
type SearchQuery struct {
	Language string
	MinStars int
	MaxStars *int
}

// String renders the query in GitHub search syntax
func (q SearchQuery) String() string {
	if q.MaxStars != nil {
		return fmt.Sprintf("language:%s stars:%d..%d", q.Language, q.MinStars, *q.MaxStars)
	}
	return fmt.Sprintf("language:%s stars:>=%d", q.Language, q.MinStars)
}

// Candidate is a repository returned by the search API, before evaluation
type Candidate struct {
	FullName      string `json:"full_name"`
	HTMLURL       string `json:"html_url"`
	Stars         int    `json:"stargazers_count"`
	Watchers      int    `json:"watchers_count"`
	Forks         int    `json:"forks_count"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
	DefaultBranch string `json:"default_branch"`
	Language      string `json:"language,omitempty"`
}

// Repository is an accepted repository record
type Repository struct {
	Name              string         `json:"name"`
	URL               string         `json:"url"`
	Stars             int            `json:"stars"`
	Watchers          int            `json:"watchers"`
	Forks             int            `json:"forks"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at"`
	AvgIssueCloseDays float64        `json:"avg_issue_close_days"`
	PullRequests      []PullRequest  `json:"prs"`
	DefaultBranch     string         `json:"default_branch"`
	Languages         map[string]int `json:"languages"`
	DominantLanguage  string         `json:"dominant_language"`
}

// TotalCommits counts commits across all pull requests
func (r *Repository) TotalCommits() int {
	total := 0
	for _, pr := range r.PullRequests {
		total += len(pr.Commits)
	}
	return total
}

// PullRequestTitles joins the pull request titles with "; "
func (r *Repository) PullRequestTitles() string {
	titles := make([]string, 0, len(r.PullRequests))
	for _, pr := range r.PullRequests {
		titles = append(titles, pr.Title)
	}
	return strings.Join(titles, "; ")
}

// PullRequest holds the comparison data for one open pull request
type PullRequest struct {
	Number         int      `json:"pr_number"`
	Title          string   `json:"pr_title"`
	BaseBranch     string   `json:"base_branch"`
	BaseCommitSHA  string   `json:"base_commit_sha"`
	BaseCommitDate string   `json:"base_commit_date"`
	HeadCommitSHA  string   `json:"pr_commit_sha"`
	HeadCommitDate string   `json:"pr_commit_date"`
	ComparisonURL  string   `json:"comparison_url"`
	AuthorName     string   `json:"author_name"`
	AuthorEmail    *string  `json:"author_email"`
	AuthorLogin    string   `json:"author_login"`
	Commits        []Commit `json:"commits"`
}

// Commit represents a commit belonging to a pull request
type Commit struct {
	SHA         string  `json:"sha"`
	Message     string  `json:"message"`
	AuthorName  string  `json:"author_name"`
	AuthorEmail *string `json:"author_email"`
	AuthorDate  string  `json:"author_date"`
}

// Rejection records why a candidate was not accepted
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// SplitFullName splits "owner/name" into its parts
func SplitFullName(fullName string) (owner, name string) {
	owner, name, found := strings.Cut(fullName, "/")
	if !found {
		return "", fullName
	}
	return owner, name
}
