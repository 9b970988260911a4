package consul

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Client wraps the Consul API client
type Client struct {
	apiClient *api.Client
	enabled   bool
	logger    *zap.Logger
}

// NewClient creates a new Consul client
func NewClient(address string, enabled bool, logger *zap.Logger) (*Client, error) {
	if !enabled {
		return &Client{enabled: false, logger: logger}, nil
	}

	config := api.DefaultConfig()
	if address != "" {
		config.Address = address
	}

	apiClient, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	// Test connection
	_, _, err = apiClient.Health().State(api.HealthAny, nil)
	if err != nil {
		logger.Warn("Consul connection test failed, will use fallback config", zap.Error(err))
		return &Client{enabled: false, logger: logger}, nil
	}

	logger.Info("Consul client initialized", zap.String("address", address))
	return &Client{
		apiClient: apiClient,
		enabled:   true,
		logger:    logger,
	}, nil
}

// IsEnabled returns whether Consul is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled && c.apiClient != nil
}

// Health verifies the connection by querying the cluster leader
func (c *Client) Health() error {
	if !c.IsEnabled() {
		return fmt.Errorf("Consul is not enabled")
	}

	_, err := c.apiClient.Status().Leader()
	return err
}

// GetKV retrieves a value from Consul KV store
func (c *Client) GetKV(key string) (string, error) {
	if !c.IsEnabled() {
		return "", fmt.Errorf("Consul is not enabled")
	}

	kv := c.apiClient.KV()
	pair, _, err := kv.Get(key, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}

	if pair == nil {
		return "", fmt.Errorf("key %s not found", key)
	}

	return string(pair.Value), nil
}

// GetKVWithDefault retrieves a value from Consul KV store with a default value
func (c *Client) GetKVWithDefault(key string, defaultValue string) string {
	if !c.IsEnabled() {
		return defaultValue
	}

	value, err := c.GetKV(key)
	if err != nil {
		c.logger.Debug("Failed to get Consul key, using default",
			zap.String("key", key),
			zap.Error(err),
		)
		return defaultValue
	}

	return value
}

// GetKVIntWithDefault retrieves an integer value with a default
func (c *Client) GetKVIntWithDefault(key string, defaultValue int) int {
	value := c.GetKVWithDefault(key, "")
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		c.logger.Warn("Consul key is not an integer, using default",
			zap.String("key", key),
			zap.String("value", value),
		)
		return defaultValue
	}
	return n
}

// GetKVBoolWithDefault retrieves a boolean value with a default
func (c *Client) GetKVBoolWithDefault(key string, defaultValue bool) bool {
	value := c.GetKVWithDefault(key, "")
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1"
}

// WatchKV watches a key for changes and calls the callback when it changes
func (c *Client) WatchKV(key string, callback func(string) error) error {
	if !c.IsEnabled() {
		return fmt.Errorf("Consul is not enabled")
	}

	kv := c.apiClient.KV()
	lastIndex := uint64(0)

	for {
		pair, meta, err := kv.Get(key, &api.QueryOptions{
			WaitIndex: lastIndex,
			WaitTime:  10 * time.Second,
		})
		if err != nil {
			c.logger.Error("Error watching Consul key",
				zap.String("key", key),
				zap.Error(err),
			)
			time.Sleep(5 * time.Second)
			continue
		}

		if meta.LastIndex > lastIndex {
			lastIndex = meta.LastIndex
			if pair != nil {
				if err := callback(string(pair.Value)); err != nil {
					c.logger.Error("Error in Consul watch callback",
						zap.String("key", key),
						zap.Error(err),
					)
				}
			}
		}
	}
}

// RegisterService registers a service with Consul
func (c *Client) RegisterService(registration *api.AgentServiceRegistration) error {
	if !c.IsEnabled() {
		return fmt.Errorf("Consul is not enabled")
	}

	agent := c.apiClient.Agent()
	if err := agent.ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	c.logger.Info("Service registered with Consul",
		zap.String("service_id", registration.ID),
		zap.String("service_name", registration.Name),
	)

	return nil
}

// DeregisterService deregisters a service from Consul
func (c *Client) DeregisterService(serviceID string) error {
	if !c.IsEnabled() {
		return nil
	}

	agent := c.apiClient.Agent()
	if err := agent.ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	c.logger.Info("Service deregistered from Consul",
		zap.String("service_id", serviceID),
	)

	return nil
}
