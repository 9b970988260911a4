package etcd

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Client wraps the etcd client
type Client struct {
	client  *clientv3.Client
	enabled bool
	logger  *zap.Logger
}

// NewClient creates a new etcd client
func NewClient(endpoints []string, enabled bool, logger *zap.Logger) (*Client, error) {
	if !enabled {
		return &Client{enabled: false, logger: logger}, nil
	}

	if len(endpoints) == 0 {
		endpoints = []string{"http://localhost:2379"}
	}

	config := clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	}

	client, err := clientv3.New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = client.Status(ctx, endpoints[0])
	if err != nil {
		logger.Warn("etcd connection test failed, will use fallback config", zap.Error(err))
		return &Client{enabled: false, logger: logger}, nil
	}

	logger.Info("etcd client initialized", zap.Strings("endpoints", endpoints))
	return &Client{
		client:  client,
		enabled: true,
		logger:  logger,
	}, nil
}

// IsEnabled returns whether etcd is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled && c.client != nil
}

// Health verifies the connection by querying the status of one endpoint
func (c *Client) Health(ctx context.Context) error {
	if !c.IsEnabled() {
		return fmt.Errorf("etcd is not enabled")
	}

	endpoints := c.client.Endpoints()
	if len(endpoints) == 0 {
		return fmt.Errorf("no etcd endpoints configured")
	}

	_, err := c.client.Status(ctx, endpoints[0])
	return err
}

// Put stores a key-value pair in etcd, optionally bound to a lease
func (c *Client) Put(ctx context.Context, key, value string, opts ...clientv3.OpOption) error {
	if !c.IsEnabled() {
		return fmt.Errorf("etcd is not enabled")
	}

	_, err := c.client.Put(ctx, key, value, opts...)
	return err
}

// Get retrieves a value from etcd
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if !c.IsEnabled() {
		return "", fmt.Errorf("etcd is not enabled")
	}

	resp, err := c.client.Get(ctx, key)
	if err != nil {
		return "", err
	}

	if len(resp.Kvs) == 0 {
		return "", fmt.Errorf("key %s not found", key)
	}

	return string(resp.Kvs[0].Value), nil
}

// Delete deletes a key from etcd
func (c *Client) Delete(ctx context.Context, key string) error {
	if !c.IsEnabled() {
		return fmt.Errorf("etcd is not enabled")
	}

	_, err := c.client.Delete(ctx, key)
	return err
}

// GrantLease creates a lease with the given TTL in seconds
func (c *Client) GrantLease(ctx context.Context, ttl int64) (clientv3.LeaseID, error) {
	if !c.IsEnabled() {
		return 0, fmt.Errorf("etcd is not enabled")
	}

	lease, err := c.client.Grant(ctx, ttl)
	if err != nil {
		return 0, fmt.Errorf("failed to create lease: %w", err)
	}
	return lease.ID, nil
}

// KeepAliveLease keeps a lease alive until the context is cancelled
func (c *Client) KeepAliveLease(ctx context.Context, id clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error) {
	if !c.IsEnabled() {
		return nil, fmt.Errorf("etcd is not enabled")
	}

	return c.client.KeepAlive(ctx, id)
}

// RevokeLease revokes a lease, deleting all keys bound to it
func (c *Client) RevokeLease(ctx context.Context, id clientv3.LeaseID) error {
	if !c.IsEnabled() {
		return fmt.Errorf("etcd is not enabled")
	}

	_, err := c.client.Revoke(ctx, id)
	return err
}

// Watch watches a key for changes
func (c *Client) Watch(ctx context.Context, key string, callback func(string, string) error) error {
	if !c.IsEnabled() {
		return fmt.Errorf("etcd is not enabled")
	}

	watchChan := c.client.Watch(ctx, key)
	for watchResp := range watchChan {
		for _, event := range watchResp.Events {
			if event.Type == clientv3.EventTypePut {
				if err := callback(string(event.Kv.Key), string(event.Kv.Value)); err != nil {
					c.logger.Error("Error in etcd watch callback",
						zap.String("key", string(event.Kv.Key)),
						zap.Error(err),
					)
				}
			}
		}
	}

	return nil
}

// Close closes the etcd client
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
