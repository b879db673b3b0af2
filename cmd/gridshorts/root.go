package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gridshorts/pipeline/internal/asset"
	"github.com/gridshorts/pipeline/internal/client"
	"github.com/gridshorts/pipeline/internal/config"
	"github.com/gridshorts/pipeline/internal/generator"
	"github.com/gridshorts/pipeline/internal/logging"
	"github.com/gridshorts/pipeline/internal/model"
	"github.com/gridshorts/pipeline/internal/pipeline"
	"github.com/gridshorts/pipeline/internal/render"
	"github.com/gridshorts/pipeline/internal/video"
)

const (
	exitOK          = 0
	exitFatal       = 1
	exitInterrupted = 130
)

var flags struct {
	count      int
	difficulty int
	skipVideo  bool
	outputDir  string
	post       bool
	upload     bool
	parallel   int
	dryRun     bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gridshorts",
		Short: "Generate puzzle quiz videos for short-form platforms",
		Long: `gridshorts runs a batch pipeline that generates matrix-reasoning
puzzles with an LLM, renders them as quiz cards, assembles slide videos
with ffmpeg and persists everything under sequential puzzle_NNN names.
Finished videos can optionally be uploaded to remote storage and posted
to TikTok.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&flags.count, "count", "n", 1, "number of puzzles to produce")
	cmd.Flags().IntVarP(&flags.difficulty, "difficulty", "d", 0, "fixed difficulty 1-10 (0 cycles per item)")
	cmd.Flags().BoolVar(&flags.skipVideo, "skip-video", false, "render images and metadata only")
	cmd.Flags().StringVarP(&flags.outputDir, "output-dir", "o", "", "output directory (overrides OUTPUT_DIR)")
	cmd.Flags().BoolVar(&flags.post, "post", false, "post finished videos to TikTok")
	cmd.Flags().BoolVar(&flags.upload, "upload", false, "upload finished videos to the configured storage backend")
	cmd.Flags().IntVarP(&flags.parallel, "parallel", "p", 0, "concurrent items (overrides PIPELINE_PARALLEL)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "print the plan and exit without producing anything")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	return cmd
}

// errInterrupted marks a batch cut short by a signal so run() can map
// it to the conventional 130 exit code.
var errInterrupted = errors.New("interrupted")

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errInterrupted) {
			return exitInterrupted
		}
		fmt.Fprintf(os.Stderr, "gridshorts: %v\n", err)
		return exitFatal
	}
	return exitOK
}

func runBatch(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	applyFlagOverrides(cfg)

	if flags.count < 1 {
		return fmt.Errorf("--count must be >= 1")
	}
	if flags.difficulty < 0 || flags.difficulty > model.MaxDifficulty {
		return fmt.Errorf("--difficulty must be between 1 and %d (or 0 to cycle)", model.MaxDifficulty)
	}
	if err := cfg.Validate(flags.post, flags.upload); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	log := logging.New(logging.ParseLevel(cfg.Log.Level))
	for k, v := range cfg.Summary() {
		log.Debug("config %s=%s", k, v)
	}

	store, err := asset.NewStore(cfg.Output.Dir)
	if err != nil {
		return err
	}
	nextIndex, err := store.NextIndex()
	if err != nil {
		return fmt.Errorf("scan output directories: %w", err)
	}

	if flags.dryRun {
		return printPlan(cfg, nextIndex)
	}

	runner, err := buildRunner(cfg, store, nextIndex, log)
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx, flags.count)
	if err != nil {
		return fmt.Errorf("start batch: %w", err)
	}

	if path, err := writeReport(store.Root(), report); err != nil {
		log.Warn("could not write batch report: %v", err)
	} else {
		log.Info("batch report written to %s", path)
	}

	if ctx.Err() != nil && !report.Produced() {
		return errInterrupted
	}
	return nil
}

func applyFlagOverrides(cfg *config.Config) {
	if flags.outputDir != "" {
		cfg.Output.Dir = flags.outputDir
	}
	if flags.parallel > 0 {
		cfg.Pipeline.Parallel = flags.parallel
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
}

// buildRunner wires every collaborator the batch needs from config and
// flags.
func buildRunner(cfg *config.Config, store *asset.Store, nextIndex int, log *logging.Logger) (*pipeline.Runner, error) {
	validate := validator.New()
	gen := generator.New(client.NewOpenAIClient(&cfg.OpenAI), validate)
	renderer := render.New(&cfg.Image)
	builder := video.NewBuilder(cfg.Video)

	var uploader pipeline.Uploader
	if flags.upload {
		sc, err := client.NewStorageClient(&cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("storage backend: %w", err)
		}
		uploader = sc
	}

	var poster pipeline.Poster
	var limiter pipeline.Limiter
	if flags.post {
		tk := client.NewTikTokClient(&cfg.TikTok)
		poster = tk
		limiter = newPostLimiter(cfg, log)

		// Best effort: surfaces token problems before the first item is
		// spent on them.
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if info, err := tk.QueryCreatorInfo(ctx); err != nil {
			log.Warn("creator info query failed: %v", err)
		} else {
			log.Info("posting as @%s (privacy %s)", info.Username, cfg.TikTok.PrivacyLevel)
		}
	}

	policy := pipeline.RetryPolicy{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Pipeline.BackoffBaseMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Pipeline.BackoffCapMS) * time.Millisecond,
	}
	exec := pipeline.NewExecutor(policy, log)

	orch := pipeline.NewOrchestrator(gen, renderer, builder, store, uploader, poster, limiter, exec, log, pipeline.Options{
		SkipVideo:     flags.skipVideo,
		Upload:        flags.upload,
		Post:          flags.post,
		PrivacyLevel:  cfg.TikTok.PrivacyLevel,
		VideoDuration: cfg.Video.TotalDuration(),
		StageTimeout:  time.Duration(cfg.Pipeline.StageTimeoutSec) * time.Second,
	})

	cycler := pipeline.NewDifficultyCycler(flags.difficulty, nextIndex-1)
	return pipeline.NewRunner(orch, store, cycler, log, cfg.Pipeline.Parallel), nil
}

// newPostLimiter picks the shared Redis counter when one is configured,
// otherwise the in-process window limiter.
func newPostLimiter(cfg *config.Config, log *logging.Logger) pipeline.Limiter {
	window := time.Duration(cfg.TikTok.RateLimitWindowSec) * time.Second
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return pipeline.NewRedisLimiter(rdb, "gridshorts:tiktok:init", cfg.TikTok.RateLimitCalls, window, log)
	}
	return pipeline.NewWindowLimiter(cfg.TikTok.RateLimitCalls, window, log)
}

func printPlan(cfg *config.Config, nextIndex int) error {
	fmt.Printf("plan: %d item(s), %s through %s\n",
		flags.count, asset.ItemID(nextIndex), asset.ItemID(nextIndex+flags.count-1))
	fmt.Printf("output: %s\n", cfg.Output.Dir)
	fmt.Printf("video: %v (duration %.0fs)\n", !flags.skipVideo, cfg.Video.TotalDuration())
	fmt.Printf("upload: %v (backend %q)\n", flags.upload, cfg.Storage.Backend)
	fmt.Printf("post: %v (privacy %s)\n", flags.post, cfg.TikTok.PrivacyLevel)
	if flags.difficulty != 0 {
		fmt.Printf("difficulty: fixed at %d\n", flags.difficulty)
	} else {
		fmt.Println("difficulty: cycling 1-10")
	}
	return nil
}

// writeReport persists the batch report next to the produced assets.
func writeReport(root string, report *model.BatchReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, fmt.Sprintf("report_%s.json", report.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
