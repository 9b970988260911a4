package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Storage     ObjectStorageConfig
	VectorStore VectorStoreConfig
	Embedding   EmbeddingConfig
	Chat        ChatConfig
	Retrieval   RetrievalConfig
	Auth        AuthConfig
	Registry    RegistryConfig
	Consul      ConsulConfig
	Etcd        EtcdConfig
	Vault       VaultConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers            []string
	NotificationsTopic string
	ResultsTopic       string
	GroupID            string
	Enabled            bool
}

type ObjectStorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type VectorStoreConfig struct {
	// Type 取值 milvus / elasticsearch，决定向量写入与检索走哪个后端
	Type          string
	IndexName     string
	Endpoint      string
	Milvus        MilvusConfig
	Elasticsearch ElasticsearchConfig
}

type MilvusConfig struct {
	Address  string
	Username string
	Password string
	Database string
	TLS      bool
}

type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
}

type EmbeddingConfig struct {
	// Provider 取值 openai / dashscope / noop
	Provider       string
	Model          string
	Dimensions     int
	APIKey         string
	BaseURL        string
	DashScopeKey   string
	DashScopeModel string
}

type ChatConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

type RetrievalConfig struct {
	TopK            int
	ChunkSize       int
	ChunkOverlap    int
	CacheTTLSeconds int
}

type AuthConfig struct {
	Enabled       bool
	JWTSecret     string
	TokenTTLHours int
}

type RegistryConfig struct {
	// Type 取值 consul / etcd / none
	Type string
}

type ConsulConfig struct {
	Address     string
	ServiceName string
	ServiceID   string
}

type EtcdConfig struct {
	Endpoints   []string
	ServiceName string
	ServiceID   string
}

type VaultConfig struct {
	Address string
	Token   string
	Enabled bool
}

var AppConfig *Config

// configFileLoaded 记录是否找到了配置文件，热更新依赖它
var configFileLoaded bool

func LoadConfig() error {
	// 设置默认值
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.notifications_topic", "bucket-notifications")
	viper.SetDefault("kafka.results_topic", "ingest-results")
	viper.SetDefault("kafka.group_id", "rag-ingest-group")
	viper.SetDefault("kafka.enabled", true)
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.bucket", "documents")
	viper.SetDefault("storage.use_ssl", false)

	// 向量存储默认值
	viper.SetDefault("vector_store.type", "milvus")
	viper.SetDefault("vector_store.index_name", "rag-documents-v2")
	viper.SetDefault("vector_store.milvus.address", "localhost:19530")
	viper.SetDefault("vector_store.milvus.database", "default")
	viper.SetDefault("vector_store.milvus.tls", false)
	viper.SetDefault("vector_store.elasticsearch.addresses", []string{"http://localhost:9200"})

	// 嵌入与生成模型默认值
	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1024)
	viper.SetDefault("embedding.dashscope_model", "text-embedding-v3")
	viper.SetDefault("chat.model", "gpt-4o-mini")
	viper.SetDefault("chat.max_tokens", 2000)
	viper.SetDefault("chat.temperature", 0.1)
	viper.SetDefault("chat.top_p", 0.9)

	// 检索默认值
	viper.SetDefault("retrieval.top_k", 5)
	viper.SetDefault("retrieval.chunk_size", 1000)
	viper.SetDefault("retrieval.chunk_overlap", 100)
	viper.SetDefault("retrieval.cache_ttl_seconds", 300)

	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.token_ttl_hours", 24)
	viper.SetDefault("registry.type", "none")
	viper.SetDefault("consul.address", "localhost:8500")
	viper.SetDefault("consul.service_name", "rag-query")
	viper.SetDefault("consul.service_id", "rag-query-1")
	viper.SetDefault("etcd.endpoints", []string{"http://localhost:2379"})
	viper.SetDefault("etcd.service_name", "rag-query")
	viper.SetDefault("etcd.service_id", "rag-query-1")
	viper.SetDefault("vault.address", "http://localhost:8200/v1")
	viper.SetDefault("vault.token", "root")
	viper.SetDefault("vault.enabled", false)

	// 可选配置文件，存在时支持热更新
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./conf")
	if err := viper.ReadInConfig(); err == nil {
		configFileLoaded = true
	}

	viper.SetEnvPrefix("RAG")
	viper.AutomaticEnv()

	// 从环境变量读取
	if port := os.Getenv("PORT"); port != "" {
		viper.Set("server.port", port)
	}
	if env := os.Getenv("ENV"); env != "" {
		viper.Set("server.env", env)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		viper.Set("server.log_level", level)
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		viper.Set("redis.host", redisHost)
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		viper.Set("redis.port", redisPort)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		viper.Set("redis.password", redisPassword)
	}
	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			viper.Set("redis.db", db)
		}
	}
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		// 支持逗号分隔的broker列表
		brokers := strings.Split(kafkaBrokers, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		viper.Set("kafka.brokers", brokers)
	}
	if topic := os.Getenv("KAFKA_NOTIFICATIONS_TOPIC"); topic != "" {
		viper.Set("kafka.notifications_topic", topic)
	}
	if topic := os.Getenv("KAFKA_RESULTS_TOPIC"); topic != "" {
		viper.Set("kafka.results_topic", topic)
	}
	if groupID := os.Getenv("KAFKA_GROUP_ID"); groupID != "" {
		viper.Set("kafka.group_id", groupID)
	}
	if enabled := os.Getenv("KAFKA_ENABLED"); enabled == "false" {
		viper.Set("kafka.enabled", false)
	}

	// MinIO配置从环境变量读取
	if minioEndpoint := os.Getenv("MINIO_ENDPOINT"); minioEndpoint != "" {
		viper.Set("storage.endpoint", minioEndpoint)
	}
	if minioAccessKey := os.Getenv("MINIO_ACCESS_KEY"); minioAccessKey != "" {
		viper.Set("storage.access_key", minioAccessKey)
	}
	if minioSecretKey := os.Getenv("MINIO_SECRET_KEY"); minioSecretKey != "" {
		viper.Set("storage.secret_key", minioSecretKey)
	}
	if minioBucket := os.Getenv("MINIO_BUCKET"); minioBucket != "" {
		viper.Set("storage.bucket", minioBucket)
	}
	if useSSL := os.Getenv("MINIO_USE_SSL"); useSSL == "true" {
		viper.Set("storage.use_ssl", true)
	}

	// 向量存储环境变量，变量名沿用原系统
	if storeType := os.Getenv("VECTOR_STORE_TYPE"); storeType != "" {
		viper.Set("vector_store.type", strings.ToLower(storeType))
	}
	if indexName := os.Getenv("INDEX_NAME"); indexName != "" {
		viper.Set("vector_store.index_name", indexName)
	}
	if endpoint := os.Getenv("VECTOR_STORE_ENDPOINT"); endpoint != "" {
		viper.Set("vector_store.endpoint", endpoint)
	}
	if milvusAddr := os.Getenv("MILVUS_ADDRESS"); milvusAddr != "" {
		viper.Set("vector_store.milvus.address", milvusAddr)
	}
	if milvusUser := os.Getenv("MILVUS_USERNAME"); milvusUser != "" {
		viper.Set("vector_store.milvus.username", milvusUser)
	}
	if milvusPassword := os.Getenv("MILVUS_PASSWORD"); milvusPassword != "" {
		viper.Set("vector_store.milvus.password", milvusPassword)
	}
	if esAddrs := os.Getenv("ELASTICSEARCH_ADDRESSES"); esAddrs != "" {
		addrs := strings.Split(esAddrs, ",")
		for i := range addrs {
			addrs[i] = strings.TrimSpace(addrs[i])
		}
		viper.Set("vector_store.elasticsearch.addresses", addrs)
	}
	if esUser := os.Getenv("ELASTICSEARCH_USERNAME"); esUser != "" {
		viper.Set("vector_store.elasticsearch.username", esUser)
	}
	if esPassword := os.Getenv("ELASTICSEARCH_PASSWORD"); esPassword != "" {
		viper.Set("vector_store.elasticsearch.password", esPassword)
	}
	if esAPIKey := os.Getenv("ELASTICSEARCH_API_KEY"); esAPIKey != "" {
		viper.Set("vector_store.elasticsearch.api_key", esAPIKey)
	}

	// 模型配置环境变量
	if provider := os.Getenv("EMBEDDING_PROVIDER"); provider != "" {
		viper.Set("embedding.provider", strings.ToLower(provider))
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		viper.Set("embedding.model", model)
	}
	if dims := os.Getenv("EMBEDDING_DIMENSIONS"); dims != "" {
		if n, err := strconv.Atoi(dims); err == nil && n > 0 {
			viper.Set("embedding.dimensions", n)
		}
	}
	if openaiKey := os.Getenv("OPENAI_API_KEY"); openaiKey != "" {
		viper.Set("embedding.api_key", openaiKey)
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		viper.Set("embedding.base_url", baseURL)
	}
	if dashscopeKey := os.Getenv("DASHSCOPE_API_KEY"); dashscopeKey != "" {
		viper.Set("embedding.dashscope_key", dashscopeKey)
	}
	if dashscopeModel := os.Getenv("DASHSCOPE_EMBEDDING_MODEL"); dashscopeModel != "" {
		viper.Set("embedding.dashscope_model", dashscopeModel)
	}
	if chatModel := os.Getenv("CHAT_MODEL"); chatModel != "" {
		viper.Set("chat.model", chatModel)
	}

	// 检索参数环境变量
	if topK := os.Getenv("RETRIEVAL_TOP_K"); topK != "" {
		if k, err := strconv.Atoi(topK); err == nil && k > 0 {
			viper.Set("retrieval.top_k", k)
		}
	}
	if chunkSize := os.Getenv("CHUNK_SIZE"); chunkSize != "" {
		if n, err := strconv.Atoi(chunkSize); err == nil && n > 0 {
			viper.Set("retrieval.chunk_size", n)
		}
	}
	if overlap := os.Getenv("CHUNK_OVERLAP"); overlap != "" {
		if n, err := strconv.Atoi(overlap); err == nil && n >= 0 {
			viper.Set("retrieval.chunk_overlap", n)
		}
	}
	if ttl := os.Getenv("QUERY_CACHE_TTL"); ttl != "" {
		if n, err := strconv.Atoi(ttl); err == nil && n >= 0 {
			viper.Set("retrieval.cache_ttl_seconds", n)
		}
	}

	if authEnabled := os.Getenv("AUTH_ENABLED"); authEnabled == "true" {
		viper.Set("auth.enabled", true)
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		viper.Set("auth.jwt_secret", jwtSecret)
	}

	// Registry configuration
	if registryType := os.Getenv("REGISTRY_TYPE"); registryType != "" {
		viper.Set("registry.type", strings.ToLower(registryType))
	}
	if consulAddress := os.Getenv("CONSUL_ADDRESS"); consulAddress != "" {
		viper.Set("consul.address", consulAddress)
	}
	if name := os.Getenv("CONSUL_SERVICE_NAME"); name != "" {
		viper.Set("consul.service_name", name)
	}
	if id := os.Getenv("CONSUL_SERVICE_ID"); id != "" {
		viper.Set("consul.service_id", id)
	}
	if etcdEndpoints := os.Getenv("ETCD_ENDPOINTS"); etcdEndpoints != "" {
		endpoints := strings.Split(etcdEndpoints, ",")
		for i := range endpoints {
			endpoints[i] = strings.TrimSpace(endpoints[i])
		}
		viper.Set("etcd.endpoints", endpoints)
	}

	// Vault configuration
	if vaultAddress := os.Getenv("VAULT_ADDRESS"); vaultAddress != "" {
		viper.Set("vault.address", vaultAddress)
	}
	if vaultToken := os.Getenv("VAULT_TOKEN"); vaultToken != "" {
		viper.Set("vault.token", vaultToken)
	}
	if vaultEnabled := os.Getenv("VAULT_ENABLED"); vaultEnabled == "true" {
		viper.Set("vault.enabled", true)
	}

	AppConfig = buildConfig()

	// 带 encrypted: 前缀的配置项在这里解密
	if err := decryptSensitiveFields(AppConfig); err != nil {
		return err
	}

	return nil
}

func buildConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetString("redis.port"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Brokers:            viper.GetStringSlice("kafka.brokers"),
			NotificationsTopic: viper.GetString("kafka.notifications_topic"),
			ResultsTopic:       viper.GetString("kafka.results_topic"),
			GroupID:            viper.GetString("kafka.group_id"),
			Enabled:            viper.GetBool("kafka.enabled"),
		},
		Storage: ObjectStorageConfig{
			Endpoint:  viper.GetString("storage.endpoint"),
			AccessKey: viper.GetString("storage.access_key"),
			SecretKey: viper.GetString("storage.secret_key"),
			Bucket:    viper.GetString("storage.bucket"),
			UseSSL:    viper.GetBool("storage.use_ssl"),
		},
		VectorStore: VectorStoreConfig{
			Type:      viper.GetString("vector_store.type"),
			IndexName: viper.GetString("vector_store.index_name"),
			Endpoint:  viper.GetString("vector_store.endpoint"),
			Milvus: MilvusConfig{
				Address:  viper.GetString("vector_store.milvus.address"),
				Username: viper.GetString("vector_store.milvus.username"),
				Password: viper.GetString("vector_store.milvus.password"),
				Database: viper.GetString("vector_store.milvus.database"),
				TLS:      viper.GetBool("vector_store.milvus.tls"),
			},
			Elasticsearch: ElasticsearchConfig{
				Addresses: viper.GetStringSlice("vector_store.elasticsearch.addresses"),
				Username:  viper.GetString("vector_store.elasticsearch.username"),
				Password:  viper.GetString("vector_store.elasticsearch.password"),
				APIKey:    viper.GetString("vector_store.elasticsearch.api_key"),
			},
		},
		Embedding: EmbeddingConfig{
			Provider:       viper.GetString("embedding.provider"),
			Model:          viper.GetString("embedding.model"),
			Dimensions:     viper.GetInt("embedding.dimensions"),
			APIKey:         viper.GetString("embedding.api_key"),
			BaseURL:        viper.GetString("embedding.base_url"),
			DashScopeKey:   viper.GetString("embedding.dashscope_key"),
			DashScopeModel: viper.GetString("embedding.dashscope_model"),
		},
		Chat: ChatConfig{
			Model:       viper.GetString("chat.model"),
			MaxTokens:   viper.GetInt("chat.max_tokens"),
			Temperature: viper.GetFloat64("chat.temperature"),
			TopP:        viper.GetFloat64("chat.top_p"),
		},
		Retrieval: RetrievalConfig{
			TopK:            viper.GetInt("retrieval.top_k"),
			ChunkSize:       viper.GetInt("retrieval.chunk_size"),
			ChunkOverlap:    viper.GetInt("retrieval.chunk_overlap"),
			CacheTTLSeconds: viper.GetInt("retrieval.cache_ttl_seconds"),
		},
		Auth: AuthConfig{
			Enabled:       viper.GetBool("auth.enabled"),
			JWTSecret:     viper.GetString("auth.jwt_secret"),
			TokenTTLHours: viper.GetInt("auth.token_ttl_hours"),
		},
		Registry: RegistryConfig{
			Type: viper.GetString("registry.type"),
		},
		Consul: ConsulConfig{
			Address:     viper.GetString("consul.address"),
			ServiceName: viper.GetString("consul.service_name"),
			ServiceID:   viper.GetString("consul.service_id"),
		},
		Etcd: EtcdConfig{
			Endpoints:   viper.GetStringSlice("etcd.endpoints"),
			ServiceName: viper.GetString("etcd.service_name"),
			ServiceID:   viper.GetString("etcd.service_id"),
		},
		Vault: VaultConfig{
			Address: viper.GetString("vault.address"),
			Token:   viper.GetString("vault.token"),
			Enabled: viper.GetBool("vault.enabled"),
		},
	}
}

// WatchTunables 监听配置文件变更，只热更新安全的运行参数。
// 凭据和后端选择不参与热更新，改这些需要重启。
func WatchTunables(onChange func(*Config)) {
	if !configFileLoaded {
		return
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if AppConfig == nil {
			return
		}
		AppConfig.Retrieval.TopK = viper.GetInt("retrieval.top_k")
		AppConfig.Retrieval.CacheTTLSeconds = viper.GetInt("retrieval.cache_ttl_seconds")
		AppConfig.Server.LogLevel = viper.GetString("server.log_level")
		if onChange != nil {
			onChange(AppConfig)
		}
	})
	viper.WatchConfig()
}

// decryptSensitiveFields 解密带前缀的敏感配置
func decryptSensitiveFields(cfg *Config) error {
	es, err := NewEncryptionService(os.Getenv("CONFIG_ENCRYPTION_KEY"))
	if err != nil {
		return err
	}

	fields := []*string{
		&cfg.Embedding.APIKey,
		&cfg.Embedding.DashScopeKey,
		&cfg.Storage.SecretKey,
		&cfg.Redis.Password,
		&cfg.Auth.JWTSecret,
		&cfg.VectorStore.Milvus.Password,
		&cfg.VectorStore.Elasticsearch.Password,
		&cfg.VectorStore.Elasticsearch.APIKey,
	}
	for _, f := range fields {
		plain, err := es.DecryptValue(*f)
		if err != nil {
			return err
		}
		*f = plain
	}
	return nil
}
