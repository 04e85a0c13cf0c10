package miner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/github-repo-miner/internal/batch"
	"github.com/kurihiro0119/github-repo-miner/internal/collector"
	"github.com/kurihiro0119/github-repo-miner/internal/config"
	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-miner/internal/errors"
	"github.com/kurihiro0119/github-repo-miner/internal/storage"
)

// Options controls a mining run
type Options struct {
	Language          string
	MinStars          int
	MaxIssueCloseDays float64
	TotalTargetRepos  int
	BatchSize         int
	CheckpointEvery   int
	ConfigHash        string

	// OnEvaluated is called after each candidate has been evaluated
	OnEvaluated func(index int, name string, accepted bool)
}

// OptionsFromConfig builds run options from the loaded configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Language:          cfg.SearchLanguage,
		MinStars:          cfg.MinStars,
		MaxIssueCloseDays: cfg.MaxIssueCloseDays,
		TotalTargetRepos:  cfg.TotalTargetRepos,
		BatchSize:         cfg.BatchSize,
		CheckpointEvery:   cfg.CheckpointEvery,
		ConfigHash:        cfg.Hash(),
	}
}

// Summary describes the outcome of one mining session
type Summary struct {
	RunID           string          `json:"run_id"`
	State           domain.RunState `json:"state"`
	Accepted        int             `json:"total_accepted"`
	Rejected        int             `json:"total_rejected"`
	Evaluated       int             `json:"evaluated_this_session"`
	NextIndex       int             `json:"last_index"`
	Candidates      int             `json:"search_results_count"`
	BatchesWritten  int             `json:"batches_written"`
	NewBatches      int             `json:"new_batches"`
	SourceExhausted bool            `json:"source_exhausted"`
	Interrupted     bool            `json:"interrupted"`
	Elapsed         time.Duration   `json:"elapsed"`
}

// Miner runs the resumable mining loop
type Miner struct {
	collector collector.Collector
	store     storage.Storage
	writer    *batch.Writer
	reader    *batch.Reader
	evaluator *Evaluator
	opts      Options
	logger    *slog.Logger

	now      func() time.Time
	newRunID func() string
}

// New creates a miner. Batches are written with writer and listed with
// reader; both must point at the same directory.
func New(c collector.Collector, store storage.Storage, writer *batch.Writer, reader *batch.Reader, opts Options, logger *slog.Logger) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = 25
	}
	return &Miner{
		collector: c,
		store:     store,
		writer:    writer,
		reader:    reader,
		evaluator: NewEvaluator(c, opts.MaxIssueCloseDays, logger),
		opts:      opts,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newRunID:  uuid.NewString,
	}
}

// pending holds evaluated candidates that are not yet committed
type pending struct {
	start        int
	repositories []domain.Repository
	rejected     []domain.Rejection
}

// session is the mutable state of one Run call
type session struct {
	progress   *domain.Progress
	pending    *pending
	accepted   map[string]struct{}
	index      int
	evaluated  int
	sinceSave  int
	newBatches int
}

// Run mines until the target is reached, the source is exhausted or ctx is
// cancelled. Cancellation is not an error: pending work is committed and
// the summary is marked interrupted.
func (m *Miner) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()

	progress, err := m.loadProgress(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.reconcile(ctx, progress); err != nil {
		return nil, err
	}

	s := &session{
		progress: progress,
		pending:  &pending{start: progress.NextIndex},
		accepted: progress.AcceptedSet(),
		index:    progress.NextIndex,
	}

	if len(progress.Accepted) >= m.opts.TotalTargetRepos {
		m.logger.Info("target already reached",
			"accepted", len(progress.Accepted),
			"target", m.opts.TotalTargetRepos)
		if err := m.finish(ctx, s, domain.RunStateTargetReached); err != nil {
			return nil, err
		}
		return m.summary(s, started, false), nil
	}

	progress.State = domain.RunStateMining
	if err := m.save(ctx, progress); err != nil {
		return nil, err
	}

	m.logger.Info("mining started",
		"run_id", progress.RunID,
		"language", m.opts.Language,
		"min_stars", m.opts.MinStars,
		"accepted", len(progress.Accepted),
		"resume_index", progress.NextIndex,
		"target", m.opts.TotalTargetRepos)

	stream := NewCandidateStream(m.collector, progress, m.opts.Language, m.opts.MinStars, m.logger)
	state, interrupted, runErr := m.loop(ctx, s, stream)

	// Commit whatever was evaluated, even when stopping on an error.
	if err := m.finish(ctx, s, state); err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("%w (and failed to save progress: %v)", runErr, err)
		}
		return nil, err
	}
	if runErr != nil {
		return m.summary(s, started, interrupted), runErr
	}
	return m.summary(s, started, interrupted), nil
}

// loop evaluates candidates until a stop condition. It returns the state
// to record and whether the stop was caused by cancellation.
func (m *Miner) loop(ctx context.Context, s *session, stream *CandidateStream) (domain.RunState, bool, error) {
	for {
		if ctx.Err() != nil {
			return domain.RunStateMining, true, nil
		}
		if len(s.progress.Accepted)+len(s.pending.repositories) >= m.opts.TotalTargetRepos {
			return domain.RunStateTargetReached, false, nil
		}

		cand, ok, err := stream.At(ctx, s.index)
		if err != nil {
			if ctx.Err() != nil {
				return domain.RunStateMining, true, nil
			}
			return domain.RunStateMining, false, fmt.Errorf("failed to search candidates: %w", err)
		}
		if !ok {
			return domain.RunStateSourceExhausted, false, nil
		}

		if _, dup := s.accepted[cand.FullName]; dup {
			s.index++
			continue
		}

		repo, rejection, err := m.evaluator.Evaluate(ctx, cand)
		if err != nil {
			// In both cases below the index stays put and the candidate is
			// evaluated again on resume.
			if ctx.Err() != nil {
				return domain.RunStateMining, true, nil
			}
			if !collector.IsRepositoryError(err) {
				return domain.RunStateMining, false, fmt.Errorf("failed to evaluate %s: %w", cand.FullName, err)
			}
			m.logger.Warn("candidate evaluation failed", "repo", cand.FullName, "error", err)
			rejection = reject(cand.FullName, fmt.Sprintf("%s: %v", ReasonEvaluationFailed, err))
		}

		index := s.index
		s.index++
		s.evaluated++

		if repo != nil {
			s.pending.repositories = append(s.pending.repositories, *repo)
			s.accepted[repo.Name] = struct{}{}
			m.logger.Info("repository accepted",
				"repo", repo.Name,
				"index", index,
				"accepted", len(s.progress.Accepted)+len(s.pending.repositories),
				"target", m.opts.TotalTargetRepos)
		} else {
			s.pending.rejected = append(s.pending.rejected, *rejection)
			m.logger.Debug("repository rejected", "repo", rejection.Name, "reason", rejection.Reason)
		}
		if m.opts.OnEvaluated != nil {
			m.opts.OnEvaluated(index, cand.FullName, repo != nil)
		}

		if len(s.pending.repositories) >= m.opts.BatchSize {
			if err := m.flush(ctx, s); err != nil {
				return domain.RunStateMining, false, err
			}
			continue
		}

		if len(s.pending.repositories) == 0 {
			s.sinceSave++
			if s.sinceSave >= m.opts.CheckpointEvery {
				if err := m.checkpoint(ctx, s); err != nil {
					return domain.RunStateMining, false, err
				}
			}
		}
	}
}

// flush writes the pending batch, then records it in progress. Progress is
// only saved once the batch file exists.
func (m *Miner) flush(ctx context.Context, s *session) error {
	p := s.progress
	end := s.index
	b := &domain.Batch{
		Number:       p.BatchesWritten + 1,
		RunID:        p.RunID,
		ConfigHash:   p.ConfigHash,
		StartIndex:   s.pending.start,
		EndIndex:     end,
		CreatedAt:    m.now(),
		Repositories: s.pending.repositories,
		Rejected:     s.pending.rejected,
	}

	if _, err := m.writer.Write(b); err != nil {
		return fmt.Errorf("failed to write batch %d: %w", b.Number, err)
	}

	p.CommitBatch(b, m.now())
	if err := m.save(ctx, p); err != nil {
		return err
	}

	s.pending = &pending{start: end}
	s.sinceSave = 0
	s.newBatches++
	return nil
}

// checkpoint records a stretch of rejections without writing a batch
func (m *Miner) checkpoint(ctx context.Context, s *session) error {
	p := s.progress
	end := s.index
	p.Rejected = append(p.Rejected, s.pending.rejected...)
	p.NextIndex = end
	p.UpdatedAt = m.now()
	if err := m.save(ctx, p); err != nil {
		return err
	}

	s.pending = &pending{start: end}
	s.sinceSave = 0
	return nil
}

// finish commits pending work and records the final state
func (m *Miner) finish(ctx context.Context, s *session, state domain.RunState) error {
	if len(s.pending.repositories) > 0 {
		if err := m.flush(ctx, s); err != nil {
			return err
		}
	} else if s.index > s.pending.start {
		s.progress.Rejected = append(s.progress.Rejected, s.pending.rejected...)
		s.progress.NextIndex = s.index
		s.pending = &pending{start: s.index}
	}

	s.progress.State = state
	s.progress.UpdatedAt = m.now()
	return m.save(ctx, s.progress)
}

func (m *Miner) save(ctx context.Context, p *domain.Progress) error {
	// Progress must reach disk even while shutting down.
	if err := m.store.SaveProgress(context.WithoutCancel(ctx), p); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

func (m *Miner) loadProgress(ctx context.Context) (*domain.Progress, error) {
	progress, err := m.store.LoadProgress(ctx)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = domain.NewProgress(m.newRunID(), m.opts.ConfigHash, m.now())
		m.logger.Info("starting new run", "run_id", progress.RunID)
		return progress, nil
	}
	if progress.ConfigHash != m.opts.ConfigHash {
		return nil, apperrors.NewConfigMismatchError(progress.ConfigHash, m.opts.ConfigHash)
	}
	return progress, nil
}

// reconcile adopts batch files written by this run whose progress update
// was lost, e.g. after a crash between the two writes
func (m *Miner) reconcile(ctx context.Context, progress *domain.Progress) error {
	numbers, err := m.reader.Numbers()
	if err != nil {
		return err
	}

	adopted := false
	for _, n := range numbers {
		if n <= progress.BatchesWritten {
			continue
		}
		b, err := m.reader.Read(n)
		if err != nil {
			return err
		}
		if n != progress.BatchesWritten+1 || b.RunID != progress.RunID || b.StartIndex != progress.NextIndex {
			return apperrors.NewCorruptStateError(
				fmt.Sprintf("batch %d does not continue run %s at index %d", n, progress.RunID, progress.NextIndex), nil)
		}

		m.logger.Warn("adopting uncommitted batch", "batch", n, "repositories", len(b.Repositories))
		progress.CommitBatch(b, m.now())
		adopted = true
	}

	if adopted {
		return m.save(ctx, progress)
	}
	return nil
}

func (m *Miner) summary(s *session, started time.Time, interrupted bool) *Summary {
	p := s.progress
	return &Summary{
		RunID:           p.RunID,
		State:           p.State,
		Accepted:        len(p.Accepted),
		Rejected:        len(p.Rejected),
		Evaluated:       s.evaluated,
		NextIndex:       p.NextIndex,
		Candidates:      len(p.Candidates),
		BatchesWritten:  p.BatchesWritten,
		NewBatches:      s.newBatches,
		SourceExhausted: p.SourceExhausted,
		Interrupted:     interrupted,
		Elapsed:         time.Since(started),
	}
}
