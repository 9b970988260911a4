package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docpipe/rag-go/internal/config"
	"github.com/docpipe/rag-go/internal/logger"
)

// pipelineSecretPath KV v2中存放管道凭证的路径
const pipelineSecretPath = "rag-pipeline"

var VaultClient *Client

// Client Vault客户端，走KV v2 HTTP API
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	enabled    bool
	logger     *zap.Logger
}

// NewClient 创建Vault客户端，未启用或连不上时返回禁用实例
func NewClient() (*Client, error) {
	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	vaultCfg := cfg.Vault
	if !vaultCfg.Enabled {
		logger.Info("Vault is not enabled")
		return &Client{enabled: false}, nil
	}

	baseURL := vaultCfg.Address
	if baseURL == "" {
		baseURL = "http://localhost:8200"
	}

	// 确保URL以/v1结尾
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	}

	token := vaultCfg.Token
	if token == "" {
		token = "root" // 开发环境默认token
	}

	client := &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		token:   token,
		enabled: true,
		logger:  logger.GetLogger(),
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		logger.Warn("Failed to connect to Vault, secrets stay env-provided", zap.Error(err))
		return &Client{enabled: false}, nil
	}

	VaultClient = client
	logger.Info("Vault连接成功", zap.String("address", baseURL))
	return client, nil
}

// IsEnabled 检查Vault是否启用
func (c *Client) IsEnabled() bool {
	return c != nil && c.enabled
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsEnabled() {
		return fmt.Errorf("Vault is not enabled")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/sys/health", nil)
	if err != nil {
		return err
	}

	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("Vault health check failed: %s", resp.Status)
	}

	return nil
}

// WriteSecret 写入密钥
func (c *Client) WriteSecret(ctx context.Context, path string, data map[string]interface{}) error {
	if !c.IsEnabled() {
		return fmt.Errorf("Vault is not enabled")
	}

	url := c.baseURL + "/secret/data/" + path

	payload := map[string]interface{}{
		"data": data,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to write secret: %s, body: %s", resp.Status, string(body))
	}

	return nil
}

// ReadSecret 读取密钥
func (c *Client) ReadSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	if !c.IsEnabled() {
		return nil, fmt.Errorf("Vault is not enabled")
	}

	url := c.baseURL + "/secret/data/" + path

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("secret not found: %s", path)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to read secret: %s, body: %s", resp.Status, string(body))
	}

	var result struct {
		Data struct {
			Data map[string]interface{} `json:"data"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Data.Data, nil
}

// DeleteSecret 删除密钥
func (c *Client) DeleteSecret(ctx context.Context, path string) error {
	if !c.IsEnabled() {
		return fmt.Errorf("Vault is not enabled")
	}

	url := c.baseURL + "/secret/metadata/" + path

	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return err
	}

	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to delete secret: %s, body: %s", resp.Status, string(body))
	}

	return nil
}

// OverlaySecrets 用Vault中的凭证覆盖配置里的敏感字段。
// 密钥缺失不算错误，对应字段保留环境变量提供的值。
func (c *Client) OverlaySecrets(ctx context.Context, cfg *config.Config) error {
	if !c.IsEnabled() || cfg == nil {
		return nil
	}

	secrets, err := c.ReadSecret(ctx, pipelineSecretPath)
	if err != nil {
		c.logger.Warn("Pipeline secrets not available in Vault", zap.Error(err))
		return nil
	}

	overlay := func(key string, target *string) {
		if v, ok := secrets[key].(string); ok && v != "" {
			*target = v
		}
	}

	overlay("embedding_api_key", &cfg.Embedding.APIKey)
	overlay("dashscope_api_key", &cfg.Embedding.DashScopeKey)
	overlay("storage_access_key", &cfg.Storage.AccessKey)
	overlay("storage_secret_key", &cfg.Storage.SecretKey)
	overlay("redis_password", &cfg.Redis.Password)
	overlay("milvus_password", &cfg.VectorStore.Milvus.Password)
	overlay("elasticsearch_password", &cfg.VectorStore.Elasticsearch.Password)
	overlay("elasticsearch_api_key", &cfg.VectorStore.Elasticsearch.APIKey)
	overlay("jwt_secret", &cfg.Auth.JWTSecret)

	c.logger.Info("Vault凭证已覆盖到配置", zap.Int("keys", len(secrets)))
	return nil
}
