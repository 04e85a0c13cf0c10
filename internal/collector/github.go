package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-miner/internal/errors"
)

// SearchResultCap is the number of results the search API returns per query
const SearchResultCap = 1000

// ErrSearchTruncated is returned with the candidates fetched so far when the
// search API refuses a page before SearchResultCap results were read. The
// window behind it is not complete.
var ErrSearchTruncated = errors.New("search window truncated")

// Options configures the GitHub collector
type Options struct {
	Token   string
	BaseURL string // empty for api.github.com

	// Cache enables the response cache when non-nil
	Cache ResponseCache

	MaxPRsPerRepo     int
	IssuesPerPage     int
	MaxIssuePages     int
	ReposPerPage      int
	MaxRetries        int
	SleepOnRateLimit  time.Duration
	RequestsPerSecond float64

	Logger *slog.Logger
}

// githubCollector implements Collector using GitHub API
type githubCollector struct {
	client      *github.Client
	rateLimiter RateLimiter
	retry       *retryPolicy
	opts        Options
	logger      *slog.Logger
}

// NewGitHubCollector creates a new GitHub collector
func NewGitHubCollector(opts Options) (Collector, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limiter := NewRateLimiter(opts.RequestsPerSecond, opts.Logger)

	// Requests served from the cache never reach the limiter.
	var transport http.RoundTripper = http.DefaultTransport
	if opts.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}),
			Base:   transport,
		}
	}
	transport = &limitedTransport{base: transport, limiter: limiter}
	if opts.Cache != nil {
		transport = &CachingTransport{Base: transport, Cache: opts.Cache, Logger: opts.Logger}
	}

	client := github.NewClient(&http.Client{Transport: transport})
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, apperrors.NewInvalidConfigError("invalid GitHub base URL", err)
		}
		client.BaseURL = u
	}

	return newWithClient(client, limiter, opts), nil
}

func newWithClient(client *github.Client, limiter RateLimiter, opts Options) *githubCollector {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReposPerPage <= 0 {
		opts.ReposPerPage = 100
	}
	if opts.IssuesPerPage <= 0 {
		opts.IssuesPerPage = 100
	}
	if opts.MaxIssuePages <= 0 {
		opts.MaxIssuePages = 1
	}
	if opts.MaxPRsPerRepo <= 0 {
		opts.MaxPRsPerRepo = 5
	}
	return &githubCollector{
		client:      client,
		rateLimiter: limiter,
		retry:       newRetryPolicy(opts.MaxRetries, opts.SleepOnRateLimit, opts.Logger),
		opts:        opts,
		logger:      opts.Logger,
	}
}

// call runs fn with retries and records the rate limit reported by the
// response. Throttling happens in limitedTransport.
func (c *githubCollector) call(ctx context.Context, op string, fn func() (*github.Response, error)) error {
	return c.retry.do(ctx, op, func() error {
		resp, err := fn()
		c.updateRateLimitFromResponse(resp)
		return err
	})
}

// SearchRepositories retrieves one search window sorted by stars
func (c *githubCollector) SearchRepositories(ctx context.Context, query domain.SearchQuery) ([]*domain.Candidate, error) {
	perPage := c.opts.ReposPerPage
	maxPages := (SearchResultCap + perPage - 1) / perPage
	q := query.String()

	var candidates []*domain.Candidate
	for page := 1; page <= maxPages; page++ {
		var result *github.RepositoriesSearchResult
		err := c.call(ctx, "search repositories", func() (*github.Response, error) {
			var resp *github.Response
			var err error
			result, resp, err = c.client.Search.Repositories(ctx, q, &github.SearchOptions{
				Sort:        "stars",
				Order:       "desc",
				ListOptions: github.ListOptions{Page: page, PerPage: perPage},
			})
			return resp, err
		})
		if err != nil {
			// Pages past the result ceiling are rejected as unprocessable.
			if hasStatus(err, http.StatusUnprocessableEntity) && page > 1 {
				return candidates, fmt.Errorf("%w at page %d: %w", ErrSearchTruncated, page, err)
			}
			return candidates, err
		}

		for _, repo := range result.Repositories {
			candidates = append(candidates, toCandidate(repo))
		}

		c.logger.Debug("search page fetched",
			"query", q,
			"page", page,
			"items", len(result.Repositories),
			"total", result.GetTotal())

		if len(result.Repositories) < perPage || len(candidates) >= result.GetTotal() {
			break
		}
	}

	return candidates, nil
}

// GetPullRequestComparisons builds comparison data for open pull requests
func (c *githubCollector) GetPullRequestComparisons(ctx context.Context, fullName string) ([]domain.PullRequest, error) {
	owner, name := domain.SplitFullName(fullName)

	var prs []*github.PullRequest
	err := c.call(ctx, "list pull requests", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		prs, resp, err = c.client.PullRequests.List(ctx, owner, name, &github.PullRequestListOptions{
			State:       "open",
			ListOptions: github.ListOptions{PerPage: c.opts.MaxPRsPerRepo},
		})
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	var result []domain.PullRequest
	for _, pr := range prs {
		comparison, err := c.comparePullRequest(ctx, fullName, pr)
		if err != nil {
			if apperrors.IsNotFound(err) {
				c.logger.Debug("skipping pull request", "repo", fullName, "pr", pr.GetNumber(), "error", err)
				continue
			}
			return nil, err
		}
		if comparison != nil {
			result = append(result, *comparison)
		}
	}

	return result, nil
}

// comparePullRequest returns nil when the pull request has no commits or no
// base commit predates it
func (c *githubCollector) comparePullRequest(ctx context.Context, fullName string, pr *github.PullRequest) (*domain.PullRequest, error) {
	owner, name := domain.SplitFullName(fullName)

	var raw []*github.RepositoryCommit
	err := c.call(ctx, "list pull request commits", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		raw, resp, err = c.client.PullRequests.ListCommits(ctx, owner, name, pr.GetNumber(), &github.ListOptions{PerPage: 100})
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	commits := make([]domain.Commit, 0, len(raw))
	var authorEmail *string
	for _, rc := range raw {
		commit := toCommit(rc)
		if authorEmail == nil && commit.AuthorEmail != nil {
			authorEmail = commit.AuthorEmail
		}
		commits = append(commits, commit)
	}

	login := pr.GetUser().GetLogin()
	if login == "" {
		login = "unknown"
	}
	authorName := pr.GetUser().GetName()
	if authorName == "" {
		authorName = login
	}
	if authorName == login {
		if last := commits[len(commits)-1].AuthorName; last != "" {
			authorName = last
		}
	}

	baseBranch := pr.GetBase().GetRef()
	base, err := c.commitBefore(ctx, owner, name, baseBranch, pr.GetCreatedAt().Time)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, nil
	}

	head := raw[len(raw)-1]
	return &domain.PullRequest{
		Number:         pr.GetNumber(),
		Title:          pr.GetTitle(),
		BaseBranch:     baseBranch,
		BaseCommitSHA:  base.GetSHA(),
		BaseCommitDate: authorDate(base),
		HeadCommitSHA:  head.GetSHA(),
		HeadCommitDate: authorDate(head),
		ComparisonURL:  fmt.Sprintf("https://github.com/%s/compare/%s...%s", fullName, base.GetSHA(), head.GetSHA()),
		AuthorName:     authorName,
		AuthorEmail:    authorEmail,
		AuthorLogin:    login,
		Commits:        commits,
	}, nil
}

// commitBefore finds the newest commit on branch at or before until
func (c *githubCollector) commitBefore(ctx context.Context, owner, name, branch string, until time.Time) (*github.RepositoryCommit, error) {
	var commits []*github.RepositoryCommit
	err := c.call(ctx, "list commits", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		commits, resp, err = c.client.Repositories.ListCommits(ctx, owner, name, &github.CommitsListOptions{
			SHA:         branch,
			Until:       until,
			ListOptions: github.ListOptions{PerPage: 1},
		})
		return resp, err
	})
	if err != nil {
		// Empty repositories answer 409.
		if apperrors.IsNotFound(err) || hasStatus(err, http.StatusConflict) {
			return nil, nil
		}
		return nil, err
	}
	if len(commits) == 0 {
		return nil, nil
	}
	return commits[0], nil
}

// GetAverageIssueCloseDays averages the close time of closed issues
func (c *githubCollector) GetAverageIssueCloseDays(ctx context.Context, fullName string) (float64, bool, error) {
	owner, name := domain.SplitFullName(fullName)
	opts := &github.IssueListByRepoOptions{
		State:       "closed",
		ListOptions: github.ListOptions{PerPage: c.opts.IssuesPerPage},
	}

	var total time.Duration
	count := 0
	for page := 0; page < c.opts.MaxIssuePages; page++ {
		var issues []*github.Issue
		var resp *github.Response
		err := c.call(ctx, "list issues", func() (*github.Response, error) {
			var err error
			issues, resp, err = c.client.Issues.ListByRepo(ctx, owner, name, opts)
			return resp, err
		})
		if err != nil {
			return 0, false, err
		}

		for _, issue := range issues {
			if issue.IsPullRequest() || issue.CreatedAt == nil || issue.ClosedAt == nil {
				continue
			}
			total += issue.ClosedAt.Sub(issue.CreatedAt.Time)
			count++
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if count == 0 {
		return 0, false, nil
	}
	return total.Hours() / 24 / float64(count), true, nil
}

// GetLanguages retrieves the language breakdown of a repository
func (c *githubCollector) GetLanguages(ctx context.Context, fullName string) (map[string]int, error) {
	owner, name := domain.SplitFullName(fullName)

	var languages map[string]int
	err := c.call(ctx, "list languages", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		languages, resp, err = c.client.Repositories.ListLanguages(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return languages, nil
}

// updateRateLimitFromResponse updates the rate limiter from API response
func (c *githubCollector) updateRateLimitFromResponse(resp *github.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	if resp.Header.Get(HeaderFromCache) != "" {
		return
	}
	if resp.Rate.Limit > 0 && resp.Rate.Remaining >= 0 {
		c.rateLimiter.UpdateLimit(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
}

func toCandidate(repo *github.Repository) *domain.Candidate {
	return &domain.Candidate{
		FullName:      repo.GetFullName(),
		HTMLURL:       repo.GetHTMLURL(),
		Stars:         repo.GetStargazersCount(),
		Watchers:      repo.GetWatchersCount(),
		Forks:         repo.GetForksCount(),
		CreatedAt:     formatTimestamp(repo.CreatedAt),
		UpdatedAt:     formatTimestamp(repo.UpdatedAt),
		DefaultBranch: repo.GetDefaultBranch(),
		Language:      repo.GetLanguage(),
	}
}

func toCommit(rc *github.RepositoryCommit) domain.Commit {
	author := rc.GetCommit().GetAuthor()
	message, _, _ := strings.Cut(rc.GetCommit().GetMessage(), "\n")

	var email *string
	if author != nil {
		email = author.Email
	}
	return domain.Commit{
		SHA:         rc.GetSHA(),
		Message:     message,
		AuthorName:  author.GetName(),
		AuthorEmail: email,
		AuthorDate:  authorDate(rc),
	}
}

func authorDate(rc *github.RepositoryCommit) string {
	date := rc.GetCommit().GetAuthor().GetDate()
	return formatTimestamp(&date)
}

func formatTimestamp(ts *github.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func hasStatus(err error, status int) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == status
}
