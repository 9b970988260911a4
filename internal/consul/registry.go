package consul

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/docpipe/rag-go/internal/config"
)

// ServiceRegistry handles service registration with Consul
type ServiceRegistry struct {
	client      *Client
	serviceID   string
	serviceName string
	logger      *zap.Logger
}

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(client *Client, serviceID, serviceName string, logger *zap.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		client:      client,
		serviceID:   serviceID,
		serviceName: serviceName,
		logger:      logger,
	}
}

// Register registers the query API with Consul. Deregistration is the
// caller's responsibility during shutdown.
func (sr *ServiceRegistry) Register(cfg *config.Config) error {
	if !sr.client.IsEnabled() {
		sr.logger.Info("Consul is not enabled, skipping service registration")
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

	// Build health check URL
	healthCheckURL := fmt.Sprintf("http://%s:%d/health", hostname, port)

	registration := &api.AgentServiceRegistration{
		ID:      sr.serviceID,
		Name:    sr.serviceName,
		Tags:    []string{"api", "go", "rag", cfg.Server.Env},
		Address: hostname,
		Port:    port,
		Check: &api.AgentServiceCheck{
			HTTP:                           healthCheckURL,
			Interval:                       "10s",
			Timeout:                        "3s",
			DeregisterCriticalServiceAfter: "30s",
		},
		Meta: map[string]string{
			"version":      "1.0.0",
			"env":          cfg.Server.Env,
			"vector_store": cfg.VectorStore.Type,
		},
	}

	if err := sr.client.RegisterService(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	sr.logger.Info("Service registered with Consul",
		zap.String("service_id", sr.serviceID),
		zap.String("service_name", sr.serviceName),
		zap.String("address", hostname),
		zap.Int("port", port),
	)

	return nil
}

// Deregister deregisters the service from Consul
func (sr *ServiceRegistry) Deregister() error {
	if !sr.client.IsEnabled() {
		return nil
	}

	return sr.client.DeregisterService(sr.serviceID)
}
