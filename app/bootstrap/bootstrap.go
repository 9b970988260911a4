package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/docpipe/rag-go/internal/config"
	"github.com/docpipe/rag-go/internal/consul"
	"github.com/docpipe/rag-go/internal/dashscope"
	"github.com/docpipe/rag-go/internal/etcd"
	"github.com/docpipe/rag-go/internal/kafka"
	"github.com/docpipe/rag-go/internal/logger"
	"github.com/docpipe/rag-go/internal/middleware"
	"github.com/docpipe/rag-go/internal/vault"
)

// consulConfigPrefix is the KV prefix holding pipeline configuration.
const consulConfigPrefix = "config/rag-pipeline"

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks   []func() error
	consulClient   *consul.Client
	etcdClient     *etcd.Client
	vaultClient    *vault.Client
	consulRegistry *consul.ServiceRegistry
	etcdRegistry   *etcd.ServiceRegistry
}

// InfraHealth reports the state of the optional infrastructure clients.
// Components are omitted entirely when they were never enabled, and a
// failing probe is reported as degraded since the pipeline runs without them.
func (a *App) InfraHealth(ctx context.Context) map[string]middleware.HealthStatus {
	health := make(map[string]middleware.HealthStatus)

	if a.consulClient != nil && a.consulClient.IsEnabled() {
		health["consul"] = probeStatus(a.consulClient.Health())
	}

	if a.etcdClient != nil && a.etcdClient.IsEnabled() {
		health["etcd"] = probeStatus(a.etcdClient.Health(ctx))
	}

	if a.vaultClient != nil && a.vaultClient.IsEnabled() {
		health["vault"] = probeStatus(a.vaultClient.HealthCheck(ctx))
	}

	return health
}

func probeStatus(err error) middleware.HealthStatus {
	if err != nil {
		return middleware.HealthStatus{
			Status:    "degraded",
			Message:   err.Error(),
			Timestamp: time.Now(),
		}
	}
	return middleware.HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	}
}

// Global app instance for controllers to access
var globalApp *App

// GetApp returns the global app instance
func GetApp() *App {
	return globalApp
}

// SetGlobalApp sets the global app instance
func SetGlobalApp(app *App) {
	globalApp = app
}

// Init bootstraps configuration, logger, storage backends and other shared
// infrastructure components required by the query API.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Load dynamic configuration.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}

	// Initialize structured logger.
	if err := logger.Init(config.AppConfig.Server.Env, config.AppConfig.Server.LogLevel); err != nil {
		return nil, err
	}

	// Hot-reload safe tunables when a config file is present.
	config.WatchTunables(func(cfg *config.Config) {
		logger.SetLevel(cfg.Server.LogLevel)
		logger.Info("Configuration reloaded",
			zap.Int("top_k", cfg.Retrieval.TopK),
			zap.Int("cache_ttl_seconds", cfg.Retrieval.CacheTTLSeconds))
	})

	app := &App{}

	// Pull configuration from Consul KV when Consul is the chosen registry.
	if config.AppConfig.Registry.Type == "consul" && config.AppConfig.Consul.Address != "" {
		consulClient, err := consul.NewClient(
			config.AppConfig.Consul.Address,
			true,
			logger.GetLogger(),
		)
		if err != nil {
			logger.Warn("Failed to initialize Consul client, using environment config", zap.Error(err))
		} else {
			app.consulClient = consulClient

			if consulClient.IsEnabled() {
				consulConfig, err := consul.LoadConfigFromConsul(
					consulClient,
					consulConfigPrefix,
					logger.GetLogger(),
				)
				if err == nil {
					// Merge Consul config with existing config (Consul takes precedence)
					config.AppConfig = mergeConfig(config.AppConfig, consulConfig)
					logger.Info("Configuration loaded from Consul")

					// Watch for runtime-tunable config changes
					go func() {
						if err := consul.WatchConfig(
							consulClient,
							consulConfigPrefix,
							func(newCfg *config.Config) error {
								logger.Info("Configuration updated from Consul, reloading...")
								config.AppConfig = mergeConfig(config.AppConfig, newCfg)
								return nil
							},
							logger.GetLogger(),
						); err != nil {
							logger.Error("Failed to watch Consul config", zap.Error(err))
						}
					}()
				} else {
					logger.Warn("Failed to load config from Consul, using environment variables", zap.Error(err))
				}
			}
		}
	}

	// Overlay credentials from Vault before any client that needs them is built.
	vaultClient, err := vault.NewClient()
	if err != nil {
		logger.Warn("Failed to initialize Vault client", zap.Error(err))
	} else {
		app.vaultClient = vaultClient
		vault.VaultClient = vaultClient

		if vaultClient.IsEnabled() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := vaultClient.OverlaySecrets(ctx, config.AppConfig); err != nil {
				logger.Warn("Failed to overlay secrets from Vault", zap.Error(err))
			}
			cancel()
		}
	}

	// Initialize Redis (optional). Failure shouldn't block the app.
	if _, err := middleware.InitRedisService(); err != nil {
		logger.Warn("Failed to initialize Redis", zap.Error(err))
	} else {
		app.cleanupTasks = append(app.cleanupTasks, func() error {
			if rs := middleware.GetRedisService(); rs != nil {
				return rs.Close()
			}
			return nil
		})
	}

	// Initialize MinIO (optional). Failure shouldn't block the app.
	if _, err := middleware.NewMinIOService(); err != nil {
		logger.Warn("Failed to initialize MinIO", zap.Error(err))
	}

	// Initialize the vector store. An unknown backend name is a hard error:
	// the API cannot serve queries without a working store.
	if _, err := middleware.InitVectorService(); err != nil {
		return nil, err
	}

	// Initialize Kafka producer for ingest result events (optional).
	if config.AppConfig.Kafka.Enabled {
		if err := kafka.InitProducer(config.AppConfig.Kafka.Brokers, config.AppConfig.Kafka.ResultsTopic); err != nil {
			logger.Warn("Failed to initialize Kafka producer", zap.Error(err))
		} else {
			app.cleanupTasks = append(app.cleanupTasks, func() error {
				producer := kafka.GetProducer()
				if producer != nil {
					return producer.Close()
				}
				return nil
			})
		}
	}

	// 初始化全局DashScope服务
	if apiKey := config.AppConfig.Embedding.DashScopeKey; apiKey != "" {
		dashscope.InitGlobalService(apiKey)
		logger.Info("Global DashScope service initialized")
	}

	// Register the API instance with the configured registry.
	switch config.AppConfig.Registry.Type {
	case "consul":
		if app.consulClient == nil || !app.consulClient.IsEnabled() {
			logger.Warn("Consul client not available, skipping service registration")
			break
		}
		registry := consul.NewServiceRegistry(
			app.consulClient,
			config.AppConfig.Consul.ServiceID,
			config.AppConfig.Consul.ServiceName,
			logger.GetLogger(),
		)
		if err := registry.Register(config.AppConfig); err != nil {
			logger.Warn("Failed to register service with Consul", zap.Error(err))
		} else {
			app.consulRegistry = registry
			app.cleanupTasks = append(app.cleanupTasks, func() error {
				return registry.Deregister()
			})
			logger.Info("Service registered with Consul",
				zap.String("service_id", config.AppConfig.Consul.ServiceID),
				zap.String("service_name", config.AppConfig.Consul.ServiceName))
		}
	case "etcd":
		etcdClient, err := etcd.NewClient(config.AppConfig.Etcd.Endpoints, true, logger.GetLogger())
		if err != nil {
			logger.Warn("Failed to initialize etcd client, skipping service registration", zap.Error(err))
			break
		}
		app.etcdClient = etcdClient
		app.cleanupTasks = append(app.cleanupTasks, func() error {
			return etcdClient.Close()
		})

		registry := etcd.NewServiceRegistry(
			etcdClient,
			config.AppConfig.Etcd.ServiceID,
			config.AppConfig.Etcd.ServiceName,
			logger.GetLogger(),
		)
		if err := registry.Register(config.AppConfig); err != nil {
			logger.Warn("Failed to register service with etcd", zap.Error(err))
		} else {
			app.etcdRegistry = registry
			app.cleanupTasks = append(app.cleanupTasks, func() error {
				return registry.Deregister()
			})
			logger.Info("Service registered with etcd",
				zap.String("service_id", config.AppConfig.Etcd.ServiceID),
				zap.String("service_name", config.AppConfig.Etcd.ServiceName))
		}
	case "", "none":
		// Standalone deployment, nothing to register.
	default:
		logger.Warn("Unknown registry type, skipping service registration",
			zap.String("type", config.AppConfig.Registry.Type))
	}

	return app, nil
}

// mergeConfig merges Consul config into the base config
func mergeConfig(base, consul *config.Config) *config.Config {
	result := *base

	// Merge only non-empty values from Consul
	if consul.Server.Port != "" {
		result.Server.Port = consul.Server.Port
	}
	if consul.Server.Env != "" {
		result.Server.Env = consul.Server.Env
	}
	if consul.Server.LogLevel != "" {
		result.Server.LogLevel = consul.Server.LogLevel
	}
	if consul.Redis.Host != "" {
		result.Redis.Host = consul.Redis.Host
	}
	if consul.Redis.Port != "" {
		result.Redis.Port = consul.Redis.Port
	}
	if consul.Redis.DB != 0 {
		result.Redis.DB = consul.Redis.DB
	}
	if len(consul.Kafka.Brokers) > 0 {
		result.Kafka.Brokers = consul.Kafka.Brokers
	}
	if consul.Kafka.NotificationsTopic != "" {
		result.Kafka.NotificationsTopic = consul.Kafka.NotificationsTopic
	}
	if consul.Kafka.ResultsTopic != "" {
		result.Kafka.ResultsTopic = consul.Kafka.ResultsTopic
	}
	if consul.Kafka.GroupID != "" {
		result.Kafka.GroupID = consul.Kafka.GroupID
	}
	result.Kafka.Enabled = consul.Kafka.Enabled
	if consul.Storage.Endpoint != "" {
		result.Storage.Endpoint = consul.Storage.Endpoint
	}
	if consul.Storage.Bucket != "" {
		result.Storage.Bucket = consul.Storage.Bucket
	}
	if consul.VectorStore.Type != "" {
		result.VectorStore.Type = consul.VectorStore.Type
	}
	if consul.VectorStore.IndexName != "" {
		result.VectorStore.IndexName = consul.VectorStore.IndexName
	}
	if consul.VectorStore.Endpoint != "" {
		result.VectorStore.Endpoint = consul.VectorStore.Endpoint
	}
	if consul.VectorStore.Milvus.Address != "" {
		result.VectorStore.Milvus.Address = consul.VectorStore.Milvus.Address
	}
	if len(consul.VectorStore.Elasticsearch.Addresses) > 0 {
		result.VectorStore.Elasticsearch.Addresses = consul.VectorStore.Elasticsearch.Addresses
	}
	if consul.Embedding.Provider != "" {
		result.Embedding.Provider = consul.Embedding.Provider
	}
	if consul.Embedding.Model != "" {
		result.Embedding.Model = consul.Embedding.Model
	}
	if consul.Embedding.Dimensions != 0 {
		result.Embedding.Dimensions = consul.Embedding.Dimensions
	}
	if consul.Embedding.BaseURL != "" {
		result.Embedding.BaseURL = consul.Embedding.BaseURL
	}
	if consul.Chat.Model != "" {
		result.Chat.Model = consul.Chat.Model
	}
	if consul.Chat.MaxTokens != 0 {
		result.Chat.MaxTokens = consul.Chat.MaxTokens
	}
	if consul.Retrieval.TopK != 0 {
		result.Retrieval.TopK = consul.Retrieval.TopK
	}
	if consul.Retrieval.ChunkSize != 0 {
		result.Retrieval.ChunkSize = consul.Retrieval.ChunkSize
	}
	if consul.Retrieval.ChunkOverlap != 0 {
		result.Retrieval.ChunkOverlap = consul.Retrieval.ChunkOverlap
	}
	if consul.Retrieval.CacheTTLSeconds != 0 {
		result.Retrieval.CacheTTLSeconds = consul.Retrieval.CacheTTLSeconds
	}

	return &result
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}

	// Flush logger buffers.
	logger.Sync()
}
