package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/docpipe/rag-go/internal/config"
	"github.com/docpipe/rag-go/internal/dashscope"
	"github.com/docpipe/rag-go/internal/di"
	"github.com/docpipe/rag-go/internal/events"
	"github.com/docpipe/rag-go/internal/kafka"
	applogger "github.com/docpipe/rag-go/internal/logger"
	"github.com/docpipe/rag-go/internal/middleware"
	"github.com/docpipe/rag-go/internal/services"
)

func main() {
	var action = flag.String("action", "reindex", "Action: reindex, object, purge, status")
	var bucket = flag.String("bucket", "", "Bucket to scan (defaults to the configured bucket)")
	var prefix = flag.String("prefix", "", "Only process objects whose key starts with this prefix")
	var key = flag.String("key", "", "Object key for the object action")
	var source = flag.String("source", "", "Source identifier (s3://bucket/key) for purge and status")
	var dryRun = flag.Bool("dry-run", false, "List what would be processed without touching the index")
	flag.Parse()

	// CLI与服务进程读同一份.env
	_ = godotenv.Load()

	// 初始化配置
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.AppConfig

	if err := applogger.Init(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// 创建日志器
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	// Redis可选，不可用时管道自动跳过状态与锁
	if _, err := middleware.InitRedisService(); err != nil {
		logger.WithError(err).Warn("Redis unavailable, continuing without status tracking")
	}

	if _, err := middleware.NewMinIOService(); err != nil {
		log.Fatalf("Failed to init object storage: %v", err)
	}

	if _, err := middleware.InitVectorService(); err != nil {
		log.Fatalf("Failed to init vector store: %v", err)
	}

	if cfg.Kafka.Enabled {
		if err := kafka.InitProducer(cfg.Kafka.Brokers, cfg.Kafka.ResultsTopic); err != nil {
			logger.WithError(err).Warn("Kafka unavailable, ingest results will not be published")
		} else {
			defer kafka.GetProducer().Close()
		}
	}

	if apiKey := cfg.Embedding.DashScopeKey; apiKey != "" {
		dashscope.InitGlobalService(apiKey)
	}

	// 组装摄取管道
	container := di.InitContainer()
	if err := di.RegisterProviders(container); err != nil {
		log.Fatalf("Failed to register providers: %v", err)
	}
	var ingestService *services.IngestService
	if err := container.Invoke(func(svc *services.IngestService) {
		ingestService = svc
	}); err != nil {
		log.Fatalf("Failed to resolve ingest service: %v", err)
	}

	ctx := context.Background()

	switch *action {
	case "reindex":
		runReindex(ctx, logger, ingestService, *bucket, *prefix, *dryRun)

	case "object":
		if *key == "" {
			log.Fatal("Key must be specified for object action")
		}
		b := *bucket
		if b == "" {
			b = cfg.Storage.Bucket
		}
		fmt.Printf("Reindexing s3://%s/%s...\n", b, *key)
		chunks, err := ingestService.ReindexObject(ctx, b, *key)
		if err != nil {
			log.Fatalf("Reindex failed: %v", err)
		}
		fmt.Printf("Indexed %d chunks from s3://%s/%s\n", chunks, b, *key)

	case "purge":
		if *source == "" {
			log.Fatal("Source must be specified for purge action")
		}
		if _, err := events.ParseSource(*source); err != nil {
			log.Fatal("Source must look like s3://bucket/key")
		}
		fmt.Printf("Purging vectors for %s...\n", *source)
		if err := middleware.GetVectorStore().DeleteBySource(ctx, *source); err != nil {
			log.Fatalf("Purge failed: %v", err)
		}
		fmt.Println("Purge completed successfully")

	case "status":
		if *source == "" {
			log.Fatal("Source must be specified for status action")
		}
		rs := middleware.GetRedisService()
		if !rs.Ready() {
			log.Fatal("Redis is not available, status tracking is disabled")
		}
		st, err := rs.GetIngestStatus(ctx, *source)
		if err != nil {
			log.Fatalf("Failed to read status: %v", err)
		}
		if st == nil {
			fmt.Printf("No ingest status recorded for %s\n", *source)
			os.Exit(0)
		}
		fmt.Printf("Source:  %s\n", st.Source)
		fmt.Printf("Status:  %s\n", st.Status)
		fmt.Printf("Chunks:  %d\n", st.Chunks)
		fmt.Printf("Updated: %s\n", st.UpdatedAt.Format(time.RFC3339))
		if st.Error != "" {
			fmt.Printf("Error:   %s\n", st.Error)
		}

	default:
		fmt.Printf("Unknown action: %s\n", *action)
		fmt.Println("Available actions: reindex, object, purge, status")
		os.Exit(1)
	}
}

// runReindex 扫描bucket并把每个对象重新走一遍摄取管道
func runReindex(ctx context.Context, logger *logrus.Logger, svc *services.IngestService, bucket, prefix string, dryRun bool) {
	if bucket == "" {
		bucket = config.AppConfig.Storage.Bucket
	}
	if bucket == "" {
		log.Fatal("No bucket specified and none configured")
	}

	keys, err := middleware.GetMinIOService().ListObjects(ctx, bucket, prefix)
	if err != nil {
		log.Fatalf("Failed to list objects: %v", err)
	}
	fmt.Printf("Found %d objects in %s\n", len(keys), bucket)

	if dryRun {
		for _, k := range keys {
			fmt.Printf("  s3://%s/%s\n", bucket, k)
		}
		return
	}

	start := time.Now()
	var done, failed, chunks int
	for _, k := range keys {
		n, err := svc.ReindexObject(ctx, bucket, k)
		if err != nil {
			failed++
			logger.WithFields(logrus.Fields{
				"key":   k,
				"error": err.Error(),
			}).Error("Reindex failed")
			continue
		}
		done++
		chunks += n
		logger.WithFields(logrus.Fields{
			"key":    k,
			"chunks": n,
		}).Info("Reindexed")
	}

	fmt.Printf("Reindex completed: %d ok, %d failed, %d chunks in %s\n",
		done, failed, chunks, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		os.Exit(1)
	}
}
