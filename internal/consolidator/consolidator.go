package consolidator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/kurihiro0119/github-repo-miner/internal/aggregator"
	"github.com/kurihiro0119/github-repo-miner/internal/batch"
	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-miner/internal/errors"
	"github.com/kurihiro0119/github-repo-miner/internal/exporter"
	"github.com/kurihiro0119/github-repo-miner/internal/storage"
)

const (
	ConsolidatedJSON = "consolidated_repos.json"
	ConsolidatedCSV  = "consolidated_repos.csv"
	DatasetJSON      = "github_pr_repos_dataset.json"
	DatasetCSV       = "github_pr_repos_dataset.csv"

	maxConcurrentReads = 8
)

// Result describes a consolidation
type Result struct {
	BatchFiles int    `json:"batch_files"`
	Records    int    `json:"records"`
	Unique     int    `json:"unique"`
	JSONPath   string `json:"json_path"`
	CSVPath    string `json:"csv_path"`
}

// FilterResult describes a quality filter pass
type FilterResult struct {
	Total      int                            `json:"total"`
	Kept       int                            `json:"kept"`
	Excluded   int                            `json:"excluded"`
	Categories map[domain.QualityCategory]int `json:"categories"`
	Quartiles  aggregator.PopularityQuartiles `json:"quartiles"`
	JSONPath   string                         `json:"json_path"`
	CSVPath    string                         `json:"csv_path"`
}

// Consolidator merges batch files into the final dataset
type Consolidator struct {
	partialDir string
	finalDir   string
	store      storage.Storage
	aggregator aggregator.Aggregator
	logger     *slog.Logger
}

// New creates a consolidator. store may be nil; when set, the run state in
// progress is advanced to CONSOLIDATING and DONE once mining has stopped.
func New(partialDir, finalDir string, store storage.Storage, agg aggregator.Aggregator, logger *slog.Logger) *Consolidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consolidator{
		partialDir: partialDir,
		finalDir:   finalDir,
		store:      store,
		aggregator: agg,
		logger:     logger,
	}
}

// Consolidate loads every batch file in dirs, deduplicates by repository
// name and writes the consolidated JSON and CSV. Later batches win; each
// repository keeps the position of its first appearance.
func (c *Consolidator) Consolidate(ctx context.Context, dirs ...string) (*Result, error) {
	paths, err := batchPaths(dirs)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, apperrors.NewNotFoundError("batch files")
	}

	if err := c.setState(ctx, domain.RunStateConsolidating); err != nil {
		return nil, err
	}

	batches, err := loadBatches(ctx, paths)
	if err != nil {
		return nil, err
	}

	records := 0
	position := make(map[string]int)
	var repos []domain.Repository
	for _, b := range batches {
		for _, r := range b.Repositories {
			records++
			if i, ok := position[r.Name]; ok {
				repos[i] = r
				continue
			}
			position[r.Name] = len(repos)
			repos = append(repos, r)
		}
	}
	if repos == nil {
		repos = []domain.Repository{}
	}

	result := &Result{
		BatchFiles: len(paths),
		Records:    records,
		Unique:     len(repos),
		JSONPath:   filepath.Join(c.partialDir, ConsolidatedJSON),
		CSVPath:    filepath.Join(c.partialDir, ConsolidatedCSV),
	}
	if err := exporter.WriteJSON(result.JSONPath, repos); err != nil {
		return nil, fmt.Errorf("failed to write consolidated json: %w", err)
	}
	if err := exporter.WriteRepositoriesCSV(result.CSVPath, repos); err != nil {
		return nil, fmt.Errorf("failed to write consolidated csv: %w", err)
	}

	c.logger.Info("batches consolidated",
		"batch_files", result.BatchFiles,
		"records", result.Records,
		"unique", result.Unique,
		"output", result.JSONPath)
	return result, nil
}

// ApplyQualityFilter categorizes the consolidated dataset and writes the
// final dataset without the Excluded repositories
func (c *Consolidator) ApplyQualityFilter(ctx context.Context) (*FilterResult, error) {
	repos, err := c.LoadConsolidated()
	if err != nil {
		return nil, err
	}

	categorized := c.aggregator.Categorize(repos)
	result := &FilterResult{
		Total:      len(repos),
		Categories: make(map[domain.QualityCategory]int),
		Quartiles:  c.aggregator.Quartiles(repos),
		JSONPath:   filepath.Join(c.finalDir, DatasetJSON),
		CSVPath:    filepath.Join(c.finalDir, DatasetCSV),
	}

	kept := make([]domain.CategorizedRepository, 0, len(categorized))
	for _, r := range categorized {
		result.Categories[r.QualityCategory]++
		if r.QualityCategory == domain.QualityExcluded {
			continue
		}
		kept = append(kept, r)
	}
	result.Kept = len(kept)
	result.Excluded = result.Total - result.Kept

	if err := exporter.WriteJSON(result.JSONPath, kept); err != nil {
		return nil, fmt.Errorf("failed to write dataset json: %w", err)
	}
	if err := exporter.WriteCategorizedCSV(result.CSVPath, kept); err != nil {
		return nil, fmt.Errorf("failed to write dataset csv: %w", err)
	}

	if err := c.setState(ctx, domain.RunStateDone); err != nil {
		return nil, err
	}

	c.logger.Info("quality filter applied",
		"total", result.Total,
		"kept", result.Kept,
		"excluded", result.Excluded,
		"output", result.JSONPath)
	return result, nil
}

// LoadConsolidated reads the consolidated repositories
func (c *Consolidator) LoadConsolidated() ([]domain.Repository, error) {
	var repos []domain.Repository
	if err := readJSON(filepath.Join(c.partialDir, ConsolidatedJSON), &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// LoadDataset reads the final categorized dataset
func (c *Consolidator) LoadDataset() ([]domain.CategorizedRepository, error) {
	var repos []domain.CategorizedRepository
	if err := readJSON(filepath.Join(c.finalDir, DatasetJSON), &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

func (c *Consolidator) setState(ctx context.Context, state domain.RunState) error {
	if c.store == nil {
		return nil
	}
	progress, err := c.store.LoadProgress(ctx)
	if err != nil {
		return err
	}
	if progress == nil {
		return nil
	}
	if !postMining(progress.State) {
		c.logger.Info("run is still mining, state left unchanged",
			"state", progress.State,
			"run_id", progress.RunID)
		return nil
	}
	progress.State = state
	if err := c.store.SaveProgress(ctx, progress); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// postMining reports whether a run has stopped mining, so that it may move
// on to CONSOLIDATING and DONE
func postMining(state domain.RunState) bool {
	switch state {
	case domain.RunStateTargetReached, domain.RunStateSourceExhausted,
		domain.RunStateConsolidating, domain.RunStateDone:
		return true
	}
	return false
}

func batchPaths(dirs []string) ([]string, error) {
	var paths []string
	for _, dir := range dirs {
		numbers, err := batch.NewReader(dir).Numbers()
		if err != nil {
			return nil, err
		}
		for _, n := range numbers {
			paths = append(paths, filepath.Join(dir, batch.FileName(n)))
		}
	}
	return paths, nil
}

// loadBatches reads batch files concurrently, keeping their order
func loadBatches(ctx context.Context, paths []string) ([]*domain.Batch, error) {
	batches := make([]*domain.Batch, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, path := range paths {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			b, err := batch.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			batches[i] = b
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return apperrors.NewNotFoundError(filepath.Base(path))
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.NewCorruptStateError(filepath.Base(path), err)
	}
	return nil
}
