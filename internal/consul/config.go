package consul

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docpipe/rag-go/internal/config"
)

// LoadConfigFromConsul loads pipeline configuration from Consul KV store
func LoadConfigFromConsul(client *Client, prefix string, logger *zap.Logger) (*config.Config, error) {
	if !client.IsEnabled() {
		return nil, fmt.Errorf("Consul is not enabled")
	}

	cfg := &config.Config{}

	// Server
	cfg.Server.Port = client.GetKVWithDefault(prefix+"/server/port", "8000")
	cfg.Server.Env = client.GetKVWithDefault(prefix+"/server/env", "development")
	cfg.Server.LogLevel = client.GetKVWithDefault(prefix+"/server/log_level", "info")

	// Redis
	cfg.Redis.Host = client.GetKVWithDefault(prefix+"/redis/host", "localhost")
	cfg.Redis.Port = client.GetKVWithDefault(prefix+"/redis/port", "6379")
	cfg.Redis.DB = client.GetKVIntWithDefault(prefix+"/redis/db", 0)

	// Kafka, defaults must match the env-driven config so that missing
	// keys do not flip values during the merge
	cfg.Kafka.Enabled = client.GetKVBoolWithDefault(prefix+"/kafka/enabled", true)
	if brokersStr := client.GetKVWithDefault(prefix+"/kafka/brokers", ""); brokersStr != "" {
		cfg.Kafka.Brokers = splitList(brokersStr)
	} else {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	cfg.Kafka.NotificationsTopic = client.GetKVWithDefault(
		prefix+"/kafka/notifications_topic",
		"bucket-notifications",
	)
	cfg.Kafka.ResultsTopic = client.GetKVWithDefault(
		prefix+"/kafka/results_topic",
		"ingest-results",
	)
	cfg.Kafka.GroupID = client.GetKVWithDefault(
		prefix+"/kafka/group_id",
		"rag-ingest-group",
	)

	// Object storage
	cfg.Storage.Endpoint = client.GetKVWithDefault(prefix+"/storage/endpoint", "localhost:9000")
	cfg.Storage.Bucket = client.GetKVWithDefault(prefix+"/storage/bucket", "documents")
	cfg.Storage.UseSSL = client.GetKVBoolWithDefault(prefix+"/storage/use_ssl", false)

	// Vector store
	cfg.VectorStore.Type = client.GetKVWithDefault(prefix+"/vector_store/type", "milvus")
	cfg.VectorStore.IndexName = client.GetKVWithDefault(prefix+"/vector_store/index_name", "rag-documents-v2")
	cfg.VectorStore.Endpoint = client.GetKVWithDefault(prefix+"/vector_store/endpoint", "")
	cfg.VectorStore.Milvus.Address = client.GetKVWithDefault(prefix+"/vector_store/milvus/address", "localhost:19530")
	if esStr := client.GetKVWithDefault(prefix+"/vector_store/elasticsearch/addresses", ""); esStr != "" {
		cfg.VectorStore.Elasticsearch.Addresses = splitList(esStr)
	}

	// Embedding
	cfg.Embedding.Provider = client.GetKVWithDefault(prefix+"/embedding/provider", "openai")
	cfg.Embedding.Model = client.GetKVWithDefault(prefix+"/embedding/model", "text-embedding-3-small")
	cfg.Embedding.Dimensions = client.GetKVIntWithDefault(prefix+"/embedding/dimensions", 1024)
	cfg.Embedding.BaseURL = client.GetKVWithDefault(prefix+"/embedding/base_url", "")

	// Chat
	cfg.Chat.Model = client.GetKVWithDefault(prefix+"/chat/model", "gpt-4o-mini")
	cfg.Chat.MaxTokens = client.GetKVIntWithDefault(prefix+"/chat/max_tokens", 2000)

	// Retrieval
	cfg.Retrieval.TopK = client.GetKVIntWithDefault(prefix+"/retrieval/top_k", 5)
	cfg.Retrieval.ChunkSize = client.GetKVIntWithDefault(prefix+"/retrieval/chunk_size", 1000)
	cfg.Retrieval.ChunkOverlap = client.GetKVIntWithDefault(prefix+"/retrieval/chunk_overlap", 100)
	cfg.Retrieval.CacheTTLSeconds = client.GetKVIntWithDefault(prefix+"/retrieval/cache_ttl_seconds", 300)

	logger.Info("Configuration loaded from Consul", zap.String("prefix", prefix))
	return cfg, nil
}

// WatchConfig watches for configuration changes in Consul.
// Only runtime-tunable keys are watched, credentials are not reloaded.
func WatchConfig(client *Client, prefix string, callback func(*config.Config) error, logger *zap.Logger) error {
	if !client.IsEnabled() {
		return fmt.Errorf("Consul is not enabled")
	}

	keys := []string{
		prefix + "/server/log_level",
		prefix + "/retrieval/top_k",
		prefix + "/retrieval/chunk_size",
		prefix + "/retrieval/chunk_overlap",
		prefix + "/retrieval/cache_ttl_seconds",
		prefix + "/chat/model",
		prefix + "/chat/max_tokens",
	}

	for _, key := range keys {
		go func(k string) {
			if err := client.WatchKV(k, func(value string) error {
				logger.Info("Configuration changed in Consul",
					zap.String("key", k),
					zap.String("value", maskSensitiveValue(k, value)),
				)

				// Reload full config
				newCfg, err := LoadConfigFromConsul(client, prefix, logger)
				if err != nil {
					return err
				}

				return callback(newCfg)
			}); err != nil {
				logger.Error("Failed to watch Consul key",
					zap.String("key", k),
					zap.Error(err),
				)
			}
		}(key)
	}

	return nil
}

// splitList splits a comma separated list and trims whitespace
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// maskSensitiveValue masks sensitive configuration values in logs
func maskSensitiveValue(key, value string) string {
	sensitiveKeys := []string{"secret", "password", "token", "key"}
	lowerKey := strings.ToLower(key)

	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			if len(value) > 8 {
				return value[:4] + "****" + value[len(value)-4:]
			}
			return "****"
		}
	}

	return value
}
