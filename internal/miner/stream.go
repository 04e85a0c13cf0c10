package miner

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kurihiro0119/github-repo-miner/internal/collector"
	"github.com/kurihiro0119/github-repo-miner/internal/domain"
)

// CandidateStream is a lazy, indexable sequence of search candidates. It is
// backed by the candidate list in progress and grows it one search window at
// a time. Each window after the first is bounded by the star count of the
// last cached candidate, so the search API's per-query result ceiling is
// never the limit of the stream.
type CandidateStream struct {
	collector collector.Collector
	progress  *domain.Progress
	language  string
	minStars  int
	resultCap int
	seen      map[string]struct{}
	logger    *slog.Logger
}

// NewCandidateStream creates a stream appending to progress.Candidates
func NewCandidateStream(c collector.Collector, progress *domain.Progress, language string, minStars int, logger *slog.Logger) *CandidateStream {
	seen := make(map[string]struct{}, len(progress.Candidates))
	for _, cand := range progress.Candidates {
		seen[cand.FullName] = struct{}{}
	}
	return &CandidateStream{
		collector: c,
		progress:  progress,
		language:  language,
		minStars:  minStars,
		resultCap: collector.SearchResultCap,
		seen:      seen,
		logger:    logger,
	}
}

// At returns the candidate at index, searching for more candidates when the
// cached list is too short. ok is false once the source is exhausted.
func (s *CandidateStream) At(ctx context.Context, index int) (*domain.Candidate, bool, error) {
	for index >= len(s.progress.Candidates) {
		if s.progress.SourceExhausted {
			return nil, false, nil
		}
		if err := s.expand(ctx); err != nil {
			return nil, false, err
		}
	}
	return &s.progress.Candidates[index], true, nil
}

// Exhausted reports whether no search window can produce new candidates
func (s *CandidateStream) Exhausted() bool {
	return s.progress.SourceExhausted
}

// expand runs search windows until at least one new candidate is found or
// the source is exhausted
func (s *CandidateStream) expand(ctx context.Context) error {
	query := domain.SearchQuery{Language: s.language, MinStars: s.minStars}
	if n := len(s.progress.Candidates); n > 0 {
		ceiling := s.progress.Candidates[n-1].Stars
		query.MaxStars = &ceiling
	}

	for {
		if query.MaxStars != nil && *query.MaxStars < s.minStars {
			s.markExhausted("star ceiling below minimum")
			return nil
		}

		results, err := s.collector.SearchRepositories(ctx, query)
		truncated := errors.Is(err, collector.ErrSearchTruncated)
		if err != nil && !truncated {
			return err
		}
		if truncated {
			s.logger.Warn("search window cut short", "query", query.String(), "results", len(results), "error", err)
		}

		fresh := 0
		for _, cand := range results {
			if _, ok := s.seen[cand.FullName]; ok {
				continue
			}
			s.seen[cand.FullName] = struct{}{}
			s.progress.Candidates = append(s.progress.Candidates, *cand)
			fresh++
		}

		s.logger.Info("search window fetched",
			"query", query.String(),
			"results", len(results),
			"new", fresh,
			"cached", len(s.progress.Candidates))

		// A window below the ceiling holds every repository in its star range.
		complete := !truncated && len(results) < s.resultCap
		if complete {
			s.markExhausted("search window complete")
		}
		if fresh > 0 || complete {
			return nil
		}

		// Only known repositories at this ceiling: step below it.
		next := s.minStars - 1
		if query.MaxStars != nil {
			next = *query.MaxStars - 1
		}
		query.MaxStars = &next
	}
}

func (s *CandidateStream) markExhausted(reason string) {
	if !s.progress.SourceExhausted {
		s.logger.Info("candidate source exhausted",
			"reason", reason,
			"cached", len(s.progress.Candidates))
	}
	s.progress.SourceExhausted = true
}
