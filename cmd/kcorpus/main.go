package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/kcorpus/crawler/internal/autocrawl"
	"github.com/kcorpus/crawler/internal/config"
	"github.com/kcorpus/crawler/internal/pipeline"
)

var (
	paramsFile string
	logLevel   string

	onlySources []string
	forumSites  []string
	maxFetch    int

	rounds       int
	sleepSec     int
	cronSpec     string
	monthsBack   int
	monthlyTgt   int
	includeFor   bool
	excludeFor   bool
	maxGDELTWin  int
	maxYTWin     int
	maxYTKw      int
	dryRun       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kcorpus",
		Short: "kcorpus — multi-source corpus acquisition crawler",
		Long: `kcorpus discovers, fetches and stores keyword-matched documents from
news APIs, a video API and Korean forum sites into per-source
append-only JSONL logs with exactly-once URL storage.`,
	}

	rootCmd.PersistentFlags().StringVar(&paramsFile, "params", "", "params file path (default: params.yaml in ./ or ./configs)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: DEBUG, INFO, WARNING, ERROR")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(autocrawlCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// crawlCmd creates the single-run "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one discovery→fetch→store pass",
		RunE:  runCrawl,
	}

	cmd.Flags().StringSliceVar(&onlySources, "only", nil, "restrict to source families: forums, gdelt, youtube, rss")
	cmd.Flags().StringSliceVar(&forumSites, "forums-sites", nil, "restrict forum discovery to these sites")
	cmd.Flags().IntVar(&maxFetch, "max-fetch", 0, "cap fetch attempts this run (0 = unlimited)")

	return cmd
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	restrictForumSites(cfg)

	ctx, stop := signalContext()
	defer stop()

	p := pipeline.New(cfg, logger)
	stats, err := p.Run(ctx, pipeline.Options{
		IncludeSources: onlySources,
		MaxFetch:       maxFetch,
	})
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}
	return printJSON(stats)
}

// autocrawlCmd groups the deficit-planner subcommands.
func autocrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autocrawl",
		Short: "Deficit-driven crawl rounds with persistent planner state",
	}
	cmd.AddCommand(autocrawlRunCmd())
	cmd.AddCommand(autocrawlStatusCmd())
	cmd.AddCommand(autocrawlPlanCmd())
	cmd.AddCommand(autocrawlResetCmd())
	return cmd
}

func autocrawlRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute crawl rounds",
		RunE:  runAutocrawl,
	}

	cmd.Flags().IntVar(&rounds, "rounds", 1, "number of rounds to run")
	cmd.Flags().IntVar(&sleepSec, "sleep-sec", 0, "sleep between rounds")
	cmd.Flags().StringVar(&cronSpec, "cron", "", "run one round on a cron schedule instead of a fixed count")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan only, execute nothing")
	addPlannerFlags(cmd)

	return cmd
}

func addPlannerFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&monthsBack, "months-back", 0, "override autocrawl.months_back")
	cmd.Flags().IntVar(&monthlyTgt, "monthly-target", 0, "override autocrawl.monthly_target_per_source")
	cmd.Flags().BoolVar(&includeFor, "include-forums", false, "force forum rounds on")
	cmd.Flags().BoolVar(&excludeFor, "exclude-forums", false, "force forum rounds off")
	cmd.Flags().IntVar(&maxFetch, "max-fetch", 0, "override autocrawl.round.max_fetch")
	cmd.Flags().IntVar(&maxGDELTWin, "max-gdelt-windows", 0, "override autocrawl.round.max_gdelt_windows")
	cmd.Flags().IntVar(&maxYTWin, "max-youtube-windows", 0, "override autocrawl.round.max_youtube_windows")
	cmd.Flags().IntVar(&maxYTKw, "max-youtube-keywords", 0, "override autocrawl.round.max_youtube_keywords")
}

func runAutocrawl(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	applyPlannerOverrides(cfg)

	ctx, stop := signalContext()
	defer stop()

	a := autocrawl.New(cfg, logger)

	if dryRun {
		plan, err := a.Plan()
		if err != nil {
			return err
		}
		return printJSON(plan)
	}

	if cronSpec != "" {
		return runOnCron(ctx, a, logger)
	}

	for i := 0; i < rounds; i++ {
		result, err := a.RunRound(ctx)
		if err != nil {
			return fmt.Errorf("round %d: %w", i+1, err)
		}
		logger.Info("round done", "round", i+1, "stored", result.Stored)
		if err := printJSON(result); err != nil {
			return err
		}
		if i < rounds-1 && sleepSec > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Duration(sleepSec) * time.Second):
			}
		}
	}
	return nil
}

// runOnCron executes one round per schedule tick until interrupted.
func runOnCron(ctx context.Context, a *autocrawl.AutoCrawler, logger *slog.Logger) error {
	c := cron.New()
	_, err := c.AddFunc(cronSpec, func() {
		result, err := a.RunRound(ctx)
		if err != nil {
			logger.Error("scheduled round failed", "error", err)
			return
		}
		logger.Info("scheduled round done", "stored", result.Stored)
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", cronSpec, err)
	}

	c.Start()
	logger.Info("cron schedule active", "spec", cronSpec)
	<-ctx.Done()
	cronCtx := c.Stop()
	<-cronCtx.Done()
	return nil
}

func autocrawlStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print planner state: monthly counts, quota, cooldowns",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a := autocrawl.New(cfg, logger)
			return printJSON(a.State())
		},
	}
}

func autocrawlPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the next round plan without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			applyPlannerOverrides(cfg)
			a := autocrawl.New(cfg, logger)
			plan, err := a.Plan()
			if err != nil {
				return err
			}
			return printJSON(plan)
		},
	}
	addPlannerFlags(cmd)
	return cmd
}

func autocrawlResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset planner state, preserving quota defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a := autocrawl.New(cfg, logger)
			if err := a.Reset(); err != nil {
				return fmt.Errorf("reset state: %w", err)
			}
			logger.Info("auto state reset", "root", cfg.Output.Root)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kcorpus %s\n", config.Version)
		},
	}
}

// loadConfig loads params, applies the log level, and validates.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(paramsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load params: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid params: %w", err)
	}
	return cfg, setupLogger(cfg.Logging.Level), nil
}

// restrictForumSites disables every forum site not named by
// --forums-sites.
func restrictForumSites(cfg *config.Config) {
	if len(forumSites) == 0 {
		return
	}
	keep := make(map[string]bool, len(forumSites))
	for _, s := range forumSites {
		keep[strings.ToLower(strings.TrimSpace(s))] = true
	}
	for name, site := range cfg.Forums.Sites {
		if !keep[name] {
			site.Enabled = false
			cfg.Forums.Sites[name] = site
		}
	}
}

func applyPlannerOverrides(cfg *config.Config) {
	if monthsBack > 0 {
		cfg.AutoCrawl.MonthsBack = monthsBack
	}
	if monthlyTgt > 0 {
		cfg.AutoCrawl.MonthlyTargetPerSource = monthlyTgt
	}
	if includeFor {
		cfg.AutoCrawl.IncludeForums = true
	}
	if excludeFor {
		cfg.AutoCrawl.IncludeForums = false
	}
	if maxFetch > 0 {
		cfg.AutoCrawl.Round.MaxFetch = maxFetch
	}
	if maxGDELTWin > 0 {
		cfg.AutoCrawl.Round.MaxGDELTWindows = maxGDELTWin
	}
	if maxYTWin > 0 {
		cfg.AutoCrawl.Round.MaxYouTubeWindows = maxYTWin
	}
	if maxYTKw > 0 {
		cfg.AutoCrawl.Round.MaxYouTubeKeywords = maxYTKw
	}
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// setupLogger creates the structured logger at the configured level.
func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARNING", "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
