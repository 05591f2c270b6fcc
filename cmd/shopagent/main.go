package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/ai"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/config"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/crawler"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/filestore"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/handler"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/job"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/middleware"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/repo"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/schedule"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "shopagent",
		Short: "shopagent backend server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run shopagent server",
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

			db, err := repo.Open(cfg.DB)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := repo.ApplyMigrations(db); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, db)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func buildAIManager(cfg config.AIConfig) (*ai.Manager, error) {
	var generator ai.IGenerator
	if cfg.Provider != "" {
		provider, err := ai.NewProvider(cfg.Provider, cfg.Args)
		if err != nil {
			return nil, fmt.Errorf("init ai provider: %w", err)
		}
		generator = ai.NewGenerator(provider, cfg.Model)
	}
	var embedder ai.IEmbedder
	if cfg.EmbedProvider != "" {
		provider, err := ai.NewEmbedProvider(cfg.EmbedProvider, cfg.EmbedArgs)
		if err != nil {
			return nil, fmt.Errorf("init embed provider: %w", err)
		}
		embedder = ai.NewEmbedder(provider, cfg.EmbedModel)
	}
	return ai.NewManager(generator, embedder, ai.ManagerConfig{
		Timeout:          cfg.TimeoutSeconds,
		MaxQuestionChars: cfg.MaxQuestionChars,
	}), nil
}

func runServer(cfg *config.Config, db *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
	)

	businessRepo := repo.NewBusinessRepo(db)
	productRepo := repo.NewProductRepo(db)
	crawlJobRepo := repo.NewCrawlJobRepo(db)
	indexRepo := repo.NewIndexRepo(db)
	usageRepo := repo.NewUsageRepo(db)
	conversationRepo := repo.NewConversationRepo(db)

	aiManager, err := buildAIManager(cfg.AI)
	if err != nil {
		return err
	}

	tierService := service.NewTierService(cfg.Tiers)
	usageService := service.NewUsageService(usageRepo, tierService)
	catalogService := service.NewCatalogService(productRepo, cfg.Crawl.RetireAfterMisses)
	indexService := service.NewIndexService(indexRepo, aiManager, service.IndexerConfig{
		Retries:   cfg.AI.EmbedRetries,
		Backoff:   time.Duration(cfg.AI.EmbedBackoffMS) * time.Millisecond,
		CacheSize: cfg.AI.EmbedCacheSize,
		CacheTTL:  time.Duration(cfg.AI.EmbedCacheTTLMins) * time.Minute,
	})

	var imageStore filestore.Store
	if cfg.Crawl.MirrorImages && cfg.FileStore.Type != "" {
		imageStore, err = filestore.New(cfg.FileStore)
		if err != nil {
			return fmt.Errorf("init file store: %w", err)
		}
	}

	fetcher := crawler.NewFetcher(crawler.FetcherConfig{
		UserAgent:            cfg.Crawl.UserAgent,
		Timeout:              time.Duration(cfg.Crawl.FetchTimeoutSeconds) * time.Second,
		MaxRedirects:         cfg.Crawl.MaxRedirects,
		PerDomainConcurrency: cfg.Crawl.PerDomainConcurrency,
		PerDomainDelay:       time.Duration(cfg.Crawl.PerDomainDelayMS) * time.Millisecond,
	})
	crawlService := service.NewCrawlService(
		businessRepo, crawlJobRepo, catalogService, indexService,
		usageService, tierService, service.NewSiteClient(fetcher), imageStore,
		service.CrawlerConfig{
			MaxPages:            cfg.Crawl.MaxPages,
			PageConcurrency:     cfg.Crawl.PageConcurrency,
			BusinessConcurrency: cfg.Crawl.BusinessConcurrency,
			RetryAttempts:       cfg.Crawl.RetryAttempts,
			RetryBackoff:        time.Duration(cfg.Crawl.RetryBackoffMS) * time.Millisecond,
		},
	)
	agentService := service.NewAgentService(
		businessRepo, productRepo, conversationRepo,
		indexService, usageService, tierService, aiManager,
		service.SearchOptions{
			StockPenalty: cfg.Search.StockPenalty,
			DefaultK:     cfg.Search.DefaultK,
			MaxK:         cfg.Search.MaxK,
		},
	)
	businessService := service.NewBusinessService(businessRepo, catalogService, usageService, tierService)

	deps := handler.RouterDeps{
		Businesses:    handler.NewBusinessHandler(businessService, crawlService),
		Crawls:        handler.NewCrawlHandler(crawlService),
		Agent:         handler.NewAgentHandler(agentService),
		Tiers:         handler.NewTierHandler(tierService),
		AskRateWindow: time.Duration(cfg.AskRateLimitMS) * time.Millisecond,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewCrawlAllJob(crawlService), cfg.Schedule.CrawlAllSpec); err != nil {
		return fmt.Errorf("schedule crawl all: %w", err)
	}
	if err := scheduler.AddJob(job.NewReindexJob(indexService, cfg.Schedule.ReindexBatchSize), cfg.Schedule.ReindexSpec); err != nil {
		return fmt.Errorf("schedule index heal: %w", err)
	}
	scheduler.Start(ctx)

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	scheduler.Stop()
	crawlService.Wait()
	return nil
}
