package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-miner/internal/errors"
	"github.com/kurihiro0119/github-repo-miner/internal/exporter"
	"github.com/kurihiro0119/github-repo-miner/internal/fsutil"
)

var fileNamePattern = regexp.MustCompile(`^batch_(\d+)\.json$`)

// FileName returns the JSON file name of a batch number
func FileName(number int) string {
	return fmt.Sprintf("batch_%04d.json", number)
}

func csvFileName(number int) string {
	return fmt.Sprintf("batch_%04d.csv", number)
}

// Writer persists batches as immutable files
type Writer struct {
	dir      string
	writeCSV bool
	logger   *slog.Logger
}

// NewWriter creates a writer for dir. A CSV companion is written next to
// every JSON batch when writeCSV is set.
func NewWriter(dir string, writeCSV bool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, writeCSV: writeCSV, logger: logger}
}

// Write stores b as batch_NNNN.json. An existing file with the same number
// is never replaced; ALREADY_EXISTS is returned instead.
func (w *Writer) Write(b *domain.Batch) (*domain.BatchInfo, error) {
	if b.Number < 1 {
		return nil, apperrors.NewBadRequestError(fmt.Sprintf("invalid batch number %d", b.Number))
	}
	if b.Repositories == nil {
		b.Repositories = []domain.Repository{}
	}
	if b.Rejected == nil {
		b.Rejected = []domain.Rejection{}
	}

	data, err := exporter.MarshalJSON(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch %d: %w", b.Number, err)
	}

	path := filepath.Join(w.dir, FileName(b.Number))
	if err := fsutil.WriteFileExclusive(path, data, 0o644); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, apperrors.NewAlreadyExistsError(path)
		}
		return nil, err
	}

	if w.writeCSV {
		if err := w.writeCompanion(b); err != nil {
			w.logger.Warn("failed to write batch csv", "batch", b.Number, "error", err)
		}
	}

	w.logger.Info("batch written",
		"batch", b.Number,
		"repositories", len(b.Repositories),
		"rejected", len(b.Rejected),
		"path", path)

	return infoFor(b, path), nil
}

func (w *Writer) writeCompanion(b *domain.Batch) error {
	data, err := exporter.EncodeRepositoriesCSV(b.Repositories)
	if err != nil {
		return err
	}
	return fsutil.WriteFileExclusive(filepath.Join(w.dir, csvFileName(b.Number)), data, 0o644)
}

// Reader reads batch files from a directory
type Reader struct {
	dir string
}

// NewReader creates a reader for dir
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// Numbers returns the batch numbers present, ascending. A missing
// directory has no batches.
func (r *Reader) Numbers() ([]int, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	var numbers []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers, nil
}

// List summarizes every batch file, ordered by number
func (r *Reader) List() ([]domain.BatchInfo, error) {
	numbers, err := r.Numbers()
	if err != nil {
		return nil, err
	}

	infos := make([]domain.BatchInfo, 0, len(numbers))
	for _, n := range numbers {
		b, err := r.Read(n)
		if err != nil {
			return nil, err
		}
		infos = append(infos, *infoFor(b, r.path(n)))
	}
	return infos, nil
}

// Read loads and validates one batch
func (r *Reader) Read(number int) (*domain.Batch, error) {
	return ReadFile(r.path(number))
}

func (r *Reader) path(number int) string {
	return filepath.Join(r.dir, FileName(number))
}

// ReadFile loads and validates the batch stored at path
func ReadFile(path string) (*domain.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewNotFoundError(path)
		}
		return nil, err
	}

	if err := Validate(data); err != nil {
		return nil, apperrors.NewCorruptStateError(filepath.Base(path), err)
	}

	var b domain.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, apperrors.NewCorruptStateError(filepath.Base(path), err)
	}
	return &b, nil
}

func infoFor(b *domain.Batch, path string) *domain.BatchInfo {
	return &domain.BatchInfo{
		Number:       b.Number,
		Path:         path,
		Repositories: len(b.Repositories),
		StartIndex:   b.StartIndex,
		EndIndex:     b.EndIndex,
		CreatedAt:    b.CreatedAt,
	}
}
