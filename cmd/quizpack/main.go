package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/quizpack/internal/ai"
	"github.com/xxxsen/quizpack/internal/classify"
	"github.com/xxxsen/quizpack/internal/config"
	"github.com/xxxsen/quizpack/internal/db"
	"github.com/xxxsen/quizpack/internal/extract"
	"github.com/xxxsen/quizpack/internal/filestore"
	"github.com/xxxsen/quizpack/internal/handler"
	"github.com/xxxsen/quizpack/internal/importer"
	"github.com/xxxsen/quizpack/internal/job"
	"github.com/xxxsen/quizpack/internal/metrics"
	"github.com/xxxsen/quizpack/internal/middleware"
	"github.com/xxxsen/quizpack/internal/normalize"
	"github.com/xxxsen/quizpack/internal/parser"
	"github.com/xxxsen/quizpack/internal/renumber"
	"github.com/xxxsen/quizpack/internal/repo"
	"github.com/xxxsen/quizpack/internal/schedule"
	"github.com/xxxsen/quizpack/internal/service"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quizpack",
		Short: "tournament package import service",
	}
	rootCmd.AddCommand(newRunCmd(), newParseCmd())

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func newRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the import server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer conn.Close()
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	return cmd
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logutil.GetLogger(ctx)
	log.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.Int("ai_providers", len(cfg.AI.Providers)))

	if err := os.MkdirAll(cfg.Import.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	jobRepo := repo.NewImportJobRepo(conn)
	packageRepo := repo.NewPackageRepo(conn)
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	stats := metrics.New()

	table, err := classify.LoadTable(cfg.Import.VocabularyFile)
	if err != nil {
		return fmt.Errorf("load vocabulary: %w", err)
	}
	classifier := classify.New(table)
	if cfg.Import.WatchVocabulary {
		if err := classify.Watch(ctx, classifier, cfg.Import.VocabularyFile); err != nil {
			return fmt.Errorf("watch vocabulary: %w", err)
		}
	}

	var norm importer.Normalizer
	gen, err := ai.BuildGenerator(providerSpecs(cfg.AI.Providers))
	if err != nil {
		return fmt.Errorf("init ai providers: %w", err)
	}
	if gen != nil {
		norm = normalize.New(gen, normalize.Config{
			Guardrail: normalize.Guardrail{
				Threshold:       cfg.AI.Threshold,
				MaxCost:         cfg.AI.MaxCost,
				PricePer1KChars: cfg.AI.PricePer1KChars,
				Timeout:         time.Duration(cfg.AI.Timeout) * time.Second,
			},
			CacheSize: cfg.AI.CacheSize,
			CacheTTL:  time.Duration(cfg.AI.CacheTTL) * time.Second,
			Metrics:   stats,
		})
	} else {
		log.Warn("no language model configured, low confidence imports keep the rule-based tree")
	}

	pipeline := importer.NewPipeline(
		extract.New(cfg.Import.MaxFileSize()),
		parser.New(classifier),
		norm,
		packageRepo,
		store,
	)
	scheduler := importer.New(jobRepo, pipeline, importer.Config{
		Concurrency: cfg.Import.Concurrency,
		RetryDelays: cfg.Import.RetryDelayDurations(),
		JobTimeout:  time.Duration(cfg.Import.JobTimeout) * time.Second,
	}, importer.WithMetrics(stats))
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start import scheduler: %w", err)
	}
	defer scheduler.Stop()

	cron := schedule.NewCronScheduler()
	cleanup := job.NewImportCleanupJob(jobRepo, cfg.Import.WorkDir, time.Duration(cfg.Cleanup.MaxAgeHrs)*time.Hour)
	if err := cron.AddJob(cleanup, cfg.Cleanup.Spec); err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	cron.Start(ctx)
	defer cron.Stop()

	importService := service.NewImportService(jobRepo, scheduler, cfg.Import.WorkDir, cfg.Import.MaxFileSize())
	structureService := service.NewStructureService(packageRepo)

	deps := handler.RouterDeps{
		Imports:     handler.NewImportHandler(importService, cfg.Import.MaxFileSize()),
		Packages:    handler.NewPackageHandler(structureService, store),
		Files:       handler.NewFileHandler(store),
		Metrics:     stats.Handler(),
		UploadEvery: time.Duration(cfg.Import.UploadInterval) * time.Second,
		UploadBurst: cfg.Import.UploadBurst,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	log.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("server stopping...")
	return nil
}

func providerSpecs(items []config.AIProviderConfig) []ai.ProviderSpec {
	specs := make([]ai.ProviderSpec, 0, len(items))
	for _, item := range items {
		specs = append(specs, ai.ProviderSpec{
			Name:     item.Name,
			Provider: item.Provider,
			Model:    item.Model,
			Args:     item.Data,
		})
	}
	return specs
}

type parseOutput struct {
	Confidence float64     `json:"confidence"`
	Warnings   interface{} `json:"warnings"`
	Package    interface{} `json:"package"`
}

func newParseCmd() *cobra.Command {
	var vocabulary string
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "extract, parse and renumber a document offline and print the tree as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := classify.LoadTable(vocabulary)
			if err != nil {
				return err
			}
			workDir, err := os.MkdirTemp("", "quizpack-parse-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(workDir)

			src := extract.Source{Path: args[0], Name: filepath.Base(args[0])}
			extracted, err := extract.New(0).Extract(cmd.Context(), src, workDir)
			if err != nil {
				return err
			}
			res := parser.New(classify.New(table)).Parse(extracted.Fragments)
			out := parseOutput{
				Confidence: res.Confidence,
				Warnings:   append(extracted.Warnings, res.Warnings...),
				Package:    renumber.Renumber(res.Package),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&vocabulary, "vocabulary", "", "YAML vocabulary overriding the built-in labels")
	return cmd
}
