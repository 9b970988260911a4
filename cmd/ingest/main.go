package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/docpipe/rag-go/app/bootstrap"
	"github.com/docpipe/rag-go/internal/config"
	"github.com/docpipe/rag-go/internal/di"
	"github.com/docpipe/rag-go/internal/health"
	"github.com/docpipe/rag-go/internal/kafka"
	"github.com/docpipe/rag-go/internal/logger"
	"github.com/docpipe/rag-go/internal/middleware"
	"github.com/docpipe/rag-go/internal/rag"
	"github.com/docpipe/rag-go/internal/services"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()
	bootstrap.SetGlobalApp(app)

	cfg := config.AppConfig
	if !cfg.Kafka.Enabled {
		log.Fatal("kafka is disabled, ingest worker has nothing to consume (set KAFKA_ENABLED=true)")
	}

	container := di.InitContainer()
	if err := di.RegisterProviders(container); err != nil {
		log.Fatalf("failed to register providers: %v", err)
	}

	var ingestService *services.IngestService
	var embedder rag.Embedder
	if err := container.Invoke(func(svc *services.IngestService, e rag.Embedder) {
		ingestService = svc
		embedder = e
	}); err != nil {
		log.Fatalf("failed to resolve ingest service: %v", err)
	}

	// 必需依赖就绪前不开始消费，避免消息空转重投
	checker := newHealthChecker(cfg, embedder)
	startupTimeout := 60 * time.Second
	if v := os.Getenv("INGEST_STARTUP_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			startupTimeout = time.Duration(n) * time.Second
		}
	}
	if err := checker.WaitForHealthy(context.Background(), startupTimeout); err != nil {
		log.Fatalf("required dependencies not ready within %s: %v", startupTimeout, err)
	}

	checkerCtx, stopChecker := context.WithCancel(context.Background())
	defer stopChecker()
	go checker.Start(checkerCtx)

	topic := cfg.Kafka.NotificationsTopic
	if err := kafka.InitConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, []string{topic}); err != nil {
		log.Fatalf("failed to init kafka consumer: %v", err)
	}
	consumer := kafka.GetConsumer()
	consumer.RegisterHandler(topic, notificationHandler(ingestService))
	consumer.Start()

	logger.Info("🚀 Ingest worker started",
		zap.String("topic", topic),
		zap.String("group_id", cfg.Kafka.GroupID),
		zap.String("vector_store", cfg.VectorStore.Type))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down ingest worker")
	if err := consumer.Close(); err != nil {
		logger.Error("Failed to close kafka consumer", zap.Error(err))
	}
	checker.Stop()
}

// notificationHandler 把桶通知交给摄取管道。
// 处理器永远返回nil：载荷解析失败重投也不会成功，
// 对象级失败已经通过状态、结果事件和日志上报，重投只会重复报错。
func notificationHandler(svc *services.IngestService) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		summary, err := svc.ProcessNotification(ctx, message.Value)
		if err != nil {
			logger.Error("Dropping malformed notification",
				zap.Int32("partition", message.Partition),
				zap.Int64("offset", message.Offset),
				zap.Error(err))
			return nil
		}
		if summary.Failures > 0 {
			logger.Warn("Notification processed with failures",
				zap.Int64("offset", message.Offset),
				zap.Int("failures", summary.Failures),
				zap.Int("processed_records", summary.ProcessedRecords))
		}
		return nil
	}
}

// newHealthChecker 注册管道依赖的探测项。
// Redis与嵌入后端降级运行即可，对象存储与向量存储缺一不可。
func newHealthChecker(cfg *config.Config, embedder rag.Embedder) *health.Checker {
	hlog := logrus.New()
	if cfg.Server.Env == "production" {
		hlog.SetFormatter(&logrus.JSONFormatter{})
	}

	checker := health.NewChecker(hlog)

	checker.Register("minio", func(ctx context.Context) error {
		return middleware.GetMinIOService().HealthCheck()
	})
	checker.Register("vector_store", func(ctx context.Context) error {
		store := middleware.GetVectorStore()
		if store == nil || !store.Ready() {
			return fmt.Errorf("vector store not ready")
		}
		return nil
	})
	checker.RegisterOptional("redis", func(ctx context.Context) error {
		return middleware.GetRedisService().HealthCheck()
	})
	checker.RegisterOptional("embedder", func(ctx context.Context) error {
		if embedder == nil || !embedder.Ready() {
			return fmt.Errorf("embedder not configured")
		}
		return nil
	})

	return checker
}

