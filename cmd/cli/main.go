package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kurihiro0119/github-repo-miner/internal/aggregator"
	"github.com/kurihiro0119/github-repo-miner/internal/batch"
	"github.com/kurihiro0119/github-repo-miner/internal/collector"
	"github.com/kurihiro0119/github-repo-miner/internal/config"
	"github.com/kurihiro0119/github-repo-miner/internal/consolidator"
	apperrors "github.com/kurihiro0119/github-repo-miner/internal/errors"
	"github.com/kurihiro0119/github-repo-miner/internal/miner"
	"github.com/kurihiro0119/github-repo-miner/internal/storage"
	"github.com/kurihiro0119/github-repo-miner/internal/storage/file"
	"github.com/kurihiro0119/github-repo-miner/internal/storage/postgres"
	"github.com/kurihiro0119/github-repo-miner/internal/storage/sqlite"
	"github.com/kurihiro0119/github-repo-miner/pkg/client"
)

// requestsPerSecond keeps the miner near the authenticated limit of 5000 requests per hour
const requestsPerSecond = 1.4

var (
	outputJSON  bool
	batchDirs   []string
	remote      bool
	showVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "github-miner",
	Short: "GitHub repository miner",
	Long: `A resumable miner that collects pull request comparison data from popular
GitHub repositories of one language.

Without a subcommand the full pipeline runs: mining until the target count is
reached or the search is exhausted, then consolidation of the batch files and
the popularity quality filter.`,
	Args:          cobra.NoArgs,
	RunE:          runPipeline,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine repositories until the target count is reached",
	Long: `Search for candidate repositories, evaluate them and write accepted ones to
numbered batch files. An interrupted run resumes from its last checkpoint.`,
	Args: cobra.NoArgs,
	RunE: runMine,
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge batch files into one deduplicated dataset",
	Args:  cobra.NoArgs,
	RunE:  runConsolidate,
}

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Categorize the consolidated dataset by popularity quartiles",
	Args:  cobra.NoArgs,
	RunE:  runFilter,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mining progress",
	Long:  `Show the progress of the current run, read locally or from the status API with --remote.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics of the consolidated dataset",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&showVerbose, "verbose", "v", false, "print every evaluated candidate")

	consolidateCmd.Flags().StringSliceVar(&batchDirs, "batches-dir", nil, "batch directories to merge (default is RESULTS_DIR/batches)")
	statusCmd.Flags().BoolVar(&remote, "remote", false, "query the status API at API_ENDPOINT")

	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if apperrors.IsConfigMismatch(err) {
			fmt.Fprintln(os.Stderr, "Restore the previous settings or move the data directory aside to start a new run.")
		}
		os.Exit(1)
	}
}

// app holds the components shared by the subcommands
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Storage
	closeFn func() error
}

func newApp(requireToken bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if requireToken {
		if err := cfg.Validate(); err != nil {
			return nil, apperrors.NewInvalidConfigError("invalid config", err)
		}
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, config.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	store, err := getStorage(cfg)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		closeFn: func() error {
			err := store.Close()
			if cerr := closeLog(); err == nil {
				err = cerr
			}
			return err
		},
	}, nil
}

func (a *app) Close() {
	if err := a.closeFn(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cleanup failed: %v\n", err)
	}
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	case "sqlite":
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	default:
		return file.NewFileStorage(cfg.DataDir)
	}
}

func (a *app) newMiner() (*miner.Miner, error) {
	opts := collector.Options{
		Token:             a.cfg.GitHubToken,
		MaxPRsPerRepo:     a.cfg.MaxPRsPerRepo,
		IssuesPerPage:     a.cfg.IssuesPerPage,
		MaxIssuePages:     a.cfg.MaxIssuePages,
		ReposPerPage:      a.cfg.ReposPerPage,
		MaxRetries:        a.cfg.MaxRetries,
		SleepOnRateLimit:  a.cfg.SleepOnRateLimit,
		RequestsPerSecond: requestsPerSecond,
		Logger:            a.logger,
	}
	if a.cfg.APICache {
		opts.Cache = a.store
	}

	coll, err := collector.NewGitHubCollector(opts)
	if err != nil {
		return nil, err
	}

	minerOpts := miner.OptionsFromConfig(a.cfg)
	if showVerbose && !outputJSON {
		minerOpts.OnEvaluated = func(index int, name string, accepted bool) {
			verdict := "rejected"
			if accepted {
				verdict = "accepted"
			}
			fmt.Printf("[%d] %s %s\n", index, name, verdict)
		}
	}

	dir := a.cfg.BatchesDir()
	return miner.New(
		coll,
		a.store,
		batch.NewWriter(dir, a.cfg.WritesCSV(), a.logger),
		batch.NewReader(dir),
		minerOpts,
		a.logger,
	), nil
}

func (a *app) newConsolidator() *consolidator.Consolidator {
	return consolidator.New(a.cfg.PartialDir(), a.cfg.FinalDir(), a.store, aggregator.NewAggregator(), a.logger)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	printBanner("Mining started")
	summary, err := a.mine(cmd.Context())
	if err != nil {
		return err
	}
	if summary.Interrupted {
		fmt.Println("Interrupted; post-processing skipped. Run again to resume.")
		return nil
	}

	numbers, err := batch.NewReader(a.cfg.BatchesDir()).Numbers()
	if err != nil {
		return err
	}
	if len(numbers) == 0 {
		fmt.Println("No batch files were written; nothing to consolidate.")
		return nil
	}

	if err := a.consolidate(cmd.Context(), nil); err != nil {
		return err
	}
	if err := a.filter(cmd.Context()); err != nil {
		return err
	}
	printBanner("Mining finished")
	return nil
}

func runMine(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.mine(cmd.Context())
	return err
}

func (a *app) mine(ctx context.Context) (*miner.Summary, error) {
	m, err := a.newMiner()
	if err != nil {
		return nil, err
	}

	summary, err := m.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("mining failed: %w", err)
	}

	if outputJSON {
		return summary, printJSON(summary)
	}
	printMineSummary(summary)
	return summary, nil
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.consolidate(cmd.Context(), batchDirs)
}

func (a *app) consolidate(ctx context.Context, dirs []string) error {
	if len(dirs) == 0 {
		dirs = []string{a.cfg.BatchesDir()}
	}

	result, err := a.newConsolidator().Consolidate(ctx, dirs...)
	if err != nil {
		return fmt.Errorf("consolidation failed: %w", err)
	}

	if outputJSON {
		return printJSON(result)
	}
	printConsolidateResult(result)
	return nil
}

func runFilter(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.filter(cmd.Context())
}

func (a *app) filter(ctx context.Context) error {
	result, err := a.newConsolidator().ApplyQualityFilter(ctx)
	if err != nil {
		return fmt.Errorf("quality filter failed: %w", err)
	}

	if outputJSON {
		return printJSON(result)
	}
	printFilterResult(result)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if remote {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		stats, err := client.NewClient(cfg.APIEndpoint).GetProgress(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", cfg.APIEndpoint, err)
		}
		if outputJSON {
			return printJSON(stats)
		}
		printStatistics(*stats)
		return nil
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	progress, err := a.store.LoadProgress(cmd.Context())
	if err != nil {
		return err
	}
	if progress == nil {
		fmt.Println("No mining run has been checkpointed yet.")
		return nil
	}

	stats := progress.Statistics()
	if outputJSON {
		return printJSON(stats)
	}
	printStatistics(stats)

	infos, err := batch.NewReader(a.cfg.BatchesDir()).List()
	if err != nil {
		return err
	}
	printBatches(infos)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	repos, err := a.newConsolidator().LoadConsolidated()
	if err != nil {
		if apperrors.IsNotFound(err) {
			return fmt.Errorf("no consolidated dataset yet, run consolidate first: %w", err)
		}
		return err
	}

	stats := aggregator.NewAggregator().Stats(repos)
	if outputJSON {
		return printJSON(stats)
	}
	printDatasetStats(stats)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
