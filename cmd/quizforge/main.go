package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lamim/quizforge/internal/orchestrator"
	"github.com/lamim/quizforge/internal/server"
	"github.com/lamim/quizforge/internal/session"
	"github.com/lamim/quizforge/internal/writer"
	"github.com/lamim/quizforge/pkg/models"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	envFile    string
	verbose    bool
)

// generate flags
var (
	category     string
	groupIDs     string
	difficulties string
	mode         string
	quota        int
	maxGroupSize int
	totalQuota   int
	workers      int
	dryRun       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quizforge",
		Short: "QuizForge - batch quiz item generator",
		Long: `QuizForge generates deduplicated quiz items for groups of topics using LLMs.
Work is planned into group combinations, run on a bounded worker pool and
tracked per session.`,
		Version:           fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		PersistentPreRunE: loadEnv,
		SilenceUsage:      true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serve the session API, item counts and metrics until interrupted",
		RunE:  runServe,
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation session in the foreground",
		Long: `Plan and run a single session:
1. Resolve the requested groups from the catalog
2. Plan group combinations per difficulty (or split a budget for one group)
3. Generate, validate and deduplicate items on the worker pool`,
		RunE: runGenerate,
	}
	generateCmd.Flags().StringVar(&category, "category", string(models.CategoryNonCoding), "Item category (coding or non_coding)")
	generateCmd.Flags().StringVar(&groupIDs, "groups", "", "Comma-separated group ids")
	generateCmd.Flags().StringVar(&difficulties, "difficulties", "", "Comma-separated difficulties (default from config)")
	generateCmd.Flags().StringVar(&mode, "mode", orchestrator.ModeGroups, "Planning mode (groups or budget)")
	generateCmd.Flags().IntVar(&quota, "quota", 1, "Items per group and difficulty (groups mode)")
	generateCmd.Flags().IntVar(&maxGroupSize, "max-group-size", 0, "Largest combination size (groups mode)")
	generateCmd.Flags().IntVar(&totalQuota, "total", 0, "Total items to generate (budget mode)")
	generateCmd.Flags().IntVar(&workers, "workers", 0, "Tasks to split the budget into (budget mode)")
	generateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without generating")
	_ = generateCmd.MarkFlagRequired("groups")

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect archived sessions",
	}
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived sessions, newest first",
		RunE:  listSessions,
	})
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "inspect <session-id>",
		Short: "Show an archived session and its workers",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectSession,
	})

	rootCmd.AddCommand(serveCmd, generateCmd, sessionsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnv loads the env file when it exists. A missing default file is not an error.
func loadEnv(cmd *cobra.Command, _ []string) error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		if cmd.Flags().Changed("env-file") {
			return fmt.Errorf("env file not found: %s", envFile)
		}
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Loaded env file: %s\n", envFile)
	}
	return nil
}

// logOptions keeps the console quiet under a progress bar; the run log always gets Info
func logOptions(progress bool) writer.LogOptions {
	opts := writer.LogOptions{ConsoleLevel: slog.LevelInfo, FileLevel: slog.LevelInfo}
	if progress {
		opts.ConsoleLevel = slog.LevelWarn
		opts.Console = os.Stderr
	}
	if verbose {
		opts.ConsoleLevel = slog.LevelDebug
		opts.FileLevel = slog.LevelDebug
	}
	return opts
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := newApp(cmd.Context(), "serve", logOptions(false))
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := app.cfg
	sweeper := session.NewSweeper(
		app.tracker,
		time.Duration(cfg.Sessions.SweepIntervalMinutes)*time.Minute,
		time.Duration(cfg.Sessions.RetentionHours)*time.Hour,
		app.logger,
		app.metrics.RecordEvictions,
	)
	srv := server.New(app.orch, app.store, cfg.Server, app.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if shutdownErr := app.orch.Shutdown(shutdownCtx); shutdownErr != nil {
		app.logger.Error("Sessions did not stop cleanly", "error", shutdownErr)
	}

	if err != nil {
		return err
	}
	app.logger.Info("Server stopped")
	return nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	req, err := buildRequest()
	if err != nil {
		return err
	}

	app, err := newApp(cmd.Context(), "generate", logOptions(!dryRun))
	if err != nil {
		return err
	}
	defer app.Close()

	plan, err := app.orch.Prepare(req)
	if err != nil {
		return fmt.Errorf("failed to plan session: %w", err)
	}
	printPlan(plan)
	if dryRun {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bar := progressbar.NewOptions(len(plan.Tasks),
		progressbar.OptionSetDescription("Generating"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
	final, err := app.orch.Run(ctx, plan, func(r models.TaskResult) {
		bar.Describe(r.Task.Label())
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to run session: %w", err)
	}

	app.logger.Info("Generation complete",
		"session_id", final.ID,
		"status", final.Status,
		"items", final.TotalItemsGenerated,
		"duplicates", final.DuplicatesSkipped,
		"successful_tasks", final.SuccessfulTasks,
		"failed_tasks", final.FailedTasks,
		"run_dir", app.run.GetRunDir())

	switch final.Status {
	case models.StatusError:
		return fmt.Errorf("session %s failed: %s", final.ID, final.Error)
	case models.StatusCancelled:
		return fmt.Errorf("session %s cancelled: %s", final.ID, final.CancelReason)
	}
	return nil
}

func buildRequest() (orchestrator.Request, error) {
	ids, err := parseIDs(groupIDs)
	if err != nil {
		return orchestrator.Request{}, err
	}
	req := orchestrator.Request{
		Category:      models.Category(category),
		Mode:          mode,
		GroupIDs:      ids,
		Difficulties:  splitList(difficulties),
		QuotaPerGroup: quota,
		MaxGroupSize:  maxGroupSize,
		TotalQuota:    totalQuota,
		Workers:       workers,
	}
	if mode == orchestrator.ModeBudget {
		req.QuotaPerGroup = 0
	}
	return req, nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid group id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("--groups must name at least one group id")
	}
	return ids, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printPlan(plan *orchestrator.Plan) {
	fmt.Printf("Scope: %s\n", plan.ScopeDescription)
	fmt.Printf("Tasks: %d, planned items: %d\n", plan.Summary.TotalTasks, plan.Summary.TotalQuota)
	fmt.Println()
	fmt.Printf("%-14s %-8s %-8s %-8s %-8s %-10s %s\n", "DIFFICULTY", "COMBOS", "SINGLE", "PAIRS", "TRIPLES", "PER COMBO", "ITEMS")
	fmt.Println(strings.Repeat("-", 70))
	for _, d := range plan.Summary.Difficulties {
		fmt.Printf("%-14s %-8d %-8d %-8d %-8d %-10d %d\n",
			d.Difficulty, d.Combinations, d.Individuals, d.Pairs, d.Triples, d.QuotaPerCombination, d.PlannedItems)
	}
	fmt.Println()
}
