package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// 清理可能影响测试的环境变量
	testEnvVars := []string{
		"PORT", "ENV", "VECTOR_STORE_TYPE", "INDEX_NAME", "VECTOR_STORE_ENDPOINT",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS",
		"RETRIEVAL_TOP_K", "CHUNK_SIZE", "CHUNK_OVERLAP", "KAFKA_BROKERS",
		"MINIO_ENDPOINT", "REGISTRY_TYPE", "AUTH_ENABLED",
	}
	for _, envVar := range testEnvVars {
		os.Unsetenv(envVar)
	}

	err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, AppConfig)

	// 验证默认值
	assert.Equal(t, "8000", AppConfig.Server.Port)
	assert.Equal(t, "development", AppConfig.Server.Env)
	assert.Equal(t, "milvus", AppConfig.VectorStore.Type)
	assert.Equal(t, "rag-documents-v2", AppConfig.VectorStore.IndexName)
	assert.Equal(t, 1024, AppConfig.Embedding.Dimensions)
	assert.Equal(t, "openai", AppConfig.Embedding.Provider)
	assert.Equal(t, 5, AppConfig.Retrieval.TopK)
	assert.Equal(t, 1000, AppConfig.Retrieval.ChunkSize)
	assert.Equal(t, 100, AppConfig.Retrieval.ChunkOverlap)
	assert.Equal(t, 2000, AppConfig.Chat.MaxTokens)
	assert.InDelta(t, 0.1, AppConfig.Chat.Temperature, 1e-9)
	assert.InDelta(t, 0.9, AppConfig.Chat.TopP, 1e-9)
	assert.Equal(t, "none", AppConfig.Registry.Type)
	assert.False(t, AppConfig.Auth.Enabled)
	assert.True(t, AppConfig.Kafka.Enabled)
	assert.Equal(t, "bucket-notifications", AppConfig.Kafka.NotificationsTopic)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	envVars := map[string]string{
		"VECTOR_STORE_TYPE":     "Elasticsearch",
		"INDEX_NAME":            "docs-test",
		"VECTOR_STORE_ENDPOINT": "http://search.internal:9200",
		"RETRIEVAL_TOP_K":       "8",
		"EMBEDDING_DIMENSIONS":  "1536",
		"KAFKA_BROKERS":         "broker1:9092, broker2:9092",
		"MINIO_ENDPOINT":        "minio.internal:9000",
		"REGISTRY_TYPE":         "consul",
	}
	for key, value := range envVars {
		os.Setenv(key, value)
	}
	defer func() {
		for key := range envVars {
			os.Unsetenv(key)
		}
	}()

	err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, AppConfig)

	// 验证环境变量覆盖了默认值，类型名统一成小写
	assert.Equal(t, "elasticsearch", AppConfig.VectorStore.Type)
	assert.Equal(t, "docs-test", AppConfig.VectorStore.IndexName)
	assert.Equal(t, "http://search.internal:9200", AppConfig.VectorStore.Endpoint)
	assert.Equal(t, 8, AppConfig.Retrieval.TopK)
	assert.Equal(t, 1536, AppConfig.Embedding.Dimensions)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, AppConfig.Kafka.Brokers)
	assert.Equal(t, "minio.internal:9000", AppConfig.Storage.Endpoint)
	assert.Equal(t, "consul", AppConfig.Registry.Type)
}

func TestLoadConfig_InvalidNumbersIgnored(t *testing.T) {
	os.Setenv("RETRIEVAL_TOP_K", "not-a-number")
	os.Setenv("EMBEDDING_DIMENSIONS", "-3")
	defer func() {
		os.Unsetenv("RETRIEVAL_TOP_K")
		os.Unsetenv("EMBEDDING_DIMENSIONS")
	}()

	err := LoadConfig()
	require.NoError(t, err)

	// 非法数值不覆盖默认值
	assert.True(t, AppConfig.Retrieval.TopK > 0)
	assert.True(t, AppConfig.Embedding.Dimensions > 0)
}

func TestEncryptionService_RoundTrip(t *testing.T) {
	es, err := NewEncryptionService("test-master-key")
	require.NoError(t, err)

	encrypted, err := es.EncryptValue("sk-secret-api-key")
	require.NoError(t, err)
	assert.Contains(t, encrypted, EncryptedPrefix)
	assert.NotContains(t, encrypted, "sk-secret-api-key")

	decrypted, err := es.DecryptValue(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret-api-key", decrypted)
}

func TestEncryptionService_SameKeyAcrossInstances(t *testing.T) {
	// 两个进程用同一个主密钥必须能互相解密
	es1, err := NewEncryptionService("shared-key")
	require.NoError(t, err)
	es2, err := NewEncryptionService("shared-key")
	require.NoError(t, err)

	encrypted, err := es1.EncryptValue("minio-secret")
	require.NoError(t, err)

	decrypted, err := es2.DecryptValue(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "minio-secret", decrypted)
}

func TestEncryptionService_PlainValuePassthrough(t *testing.T) {
	es, err := NewEncryptionService("")
	require.NoError(t, err)

	// 无前缀的值原样返回，不需要密钥
	plain, err := es.DecryptValue("just-a-plain-value")
	require.NoError(t, err)
	assert.Equal(t, "just-a-plain-value", plain)

	// 有前缀但没有密钥时报错
	_, err = es.DecryptValue(EncryptedPrefix + "YWJjZGVm")
	assert.Error(t, err)
}

func TestEncryptionService_WrongKeyFails(t *testing.T) {
	es1, err := NewEncryptionService("key-one")
	require.NoError(t, err)
	es2, err := NewEncryptionService("key-two")
	require.NoError(t, err)

	encrypted, err := es1.EncryptValue("payload")
	require.NoError(t, err)

	_, err = es2.DecryptValue(encrypted)
	assert.Error(t, err)
}
