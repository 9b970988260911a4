package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/docpipe/rag-go/internal/config"
)

// serviceLeaseTTL seconds before an instance without keep-alives expires
const serviceLeaseTTL = 30

// ServiceInfo represents service registration information
type ServiceInfo struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Address     string            `json:"address"`
	Port        int               `json:"port"`
	HealthCheck string            `json:"health_check"`
	Tags        []string          `json:"tags"`
	Meta        map[string]string `json:"meta"`
}

// ServiceRegistry handles service registration with etcd
type ServiceRegistry struct {
	client      *Client
	serviceID   string
	serviceName string
	serviceKey  string
	logger      *zap.Logger
	leaseID     clientv3.LeaseID
}

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(client *Client, serviceID, serviceName string, logger *zap.Logger) *ServiceRegistry {
	// Service key format: /services/{serviceName}/instances/{serviceID}
	serviceKey := fmt.Sprintf("/services/%s/instances/%s", serviceName, serviceID)

	return &ServiceRegistry{
		client:      client,
		serviceID:   serviceID,
		serviceName: serviceName,
		serviceKey:  serviceKey,
		logger:      logger,
	}
}

// Register registers the query API with etcd under a keep-alive lease.
// Deregistration is the caller's responsibility during shutdown.
func (sr *ServiceRegistry) Register(cfg *config.Config) error {
	if !sr.client.IsEnabled() {
		sr.logger.Info("etcd is not enabled, skipping service registration")
		return nil
	}

	// Get hostname or use localhost
	hostname := os.Getenv("SERVICE_HOST")
	if hostname == "" {
		hostname = "localhost"
	}

	// Parse port
	port := 8000
	if cfg.Server.Port != "" {
		if p, err := strconv.Atoi(cfg.Server.Port); err == nil {
			port = p
		}
	}

	serviceInfo := ServiceInfo{
		ID:          sr.serviceID,
		Name:        sr.serviceName,
		Address:     hostname,
		Port:        port,
		HealthCheck: fmt.Sprintf("http://%s:%d/health", hostname, port),
		Tags:        []string{"api", "go", "rag", cfg.Server.Env},
		Meta: map[string]string{
			"version":      "1.0.0",
			"env":          cfg.Server.Env,
			"vector_store": cfg.VectorStore.Type,
		},
	}

	serviceData, err := json.Marshal(serviceInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal service info: %w", err)
	}

	ctx := context.Background()
	leaseID, err := sr.client.GrantLease(ctx, serviceLeaseTTL)
	if err != nil {
		return err
	}
	sr.leaseID = leaseID

	if err := sr.client.Put(ctx, sr.serviceKey, string(serviceData), clientv3.WithLease(leaseID)); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	keepAlive, err := sr.client.KeepAliveLease(ctx, leaseID)
	if err != nil {
		return fmt.Errorf("failed to keep lease alive: %w", err)
	}

	// Drain keep-alive responses, the channel closes when the lease is revoked
	go func() {
		for ka := range keepAlive {
			if ka != nil {
				sr.logger.Debug("Service lease kept alive",
					zap.String("service_id", sr.serviceID),
					zap.Int64("lease_id", int64(ka.ID)),
				)
			}
		}
	}()

	sr.logger.Info("Service registered with etcd",
		zap.String("service_id", sr.serviceID),
		zap.String("service_name", sr.serviceName),
		zap.String("address", hostname),
		zap.Int("port", port),
		zap.String("key", sr.serviceKey),
	)

	return nil
}

// Deregister deregisters the service from etcd
func (sr *ServiceRegistry) Deregister() error {
	if !sr.client.IsEnabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Revoking the lease deletes the service key automatically
	if sr.leaseID != 0 {
		if err := sr.client.RevokeLease(ctx, sr.leaseID); err != nil {
			return fmt.Errorf("failed to revoke lease: %w", err)
		}
	} else {
		if err := sr.client.Delete(ctx, sr.serviceKey); err != nil {
			return fmt.Errorf("failed to delete service key: %w", err)
		}
	}

	sr.logger.Info("Service deregistered from etcd",
		zap.String("service_id", sr.serviceID),
		zap.String("key", sr.serviceKey),
	)

	return nil
}
