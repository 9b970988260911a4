package middleware

import (
	"time"

	"github.com/docpipe/rag-go/internal/dashscope"
	"github.com/docpipe/rag-go/internal/kafka"
)

// HealthStatus 组件健康状态
type HealthStatus struct {
	Status    string        `json:"status"` // healthy, unhealthy, degraded
	Latency   time.Duration `json:"latency,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// CheckHealth 检查所有已初始化中间件的健康状态。
// 未初始化的可选组件标记为degraded，核心组件缺失标记为unhealthy。
func CheckHealth() map[string]HealthStatus {
	health := make(map[string]HealthStatus)

	// Redis
	if rs := GetRedisService(); rs.Ready() {
		start := time.Now()
		err := rs.HealthCheck()
		latency := time.Since(start)
		if err != nil {
			health["redis"] = HealthStatus{
				Status:    "unhealthy",
				Latency:   latency,
				Message:   err.Error(),
				Timestamp: time.Now(),
			}
		} else {
			health["redis"] = HealthStatus{
				Status:    "healthy",
				Latency:   latency,
				Timestamp: time.Now(),
			}
		}
	} else {
		health["redis"] = HealthStatus{
			Status:    "degraded",
			Message:   "Redis not configured",
			Timestamp: time.Now(),
		}
	}

	// MinIO
	if ms := GetMinIOService(); ms.IsHealthy() {
		start := time.Now()
		err := ms.HealthCheck()
		latency := time.Since(start)
		if err != nil {
			health["minio"] = HealthStatus{
				Status:    "unhealthy",
				Latency:   latency,
				Message:   err.Error(),
				Timestamp: time.Now(),
			}
		} else {
			health["minio"] = HealthStatus{
				Status:    "healthy",
				Latency:   latency,
				Timestamp: time.Now(),
			}
		}
	} else {
		health["minio"] = HealthStatus{
			Status:    "degraded",
			Message:   "MinIO not configured",
			Timestamp: time.Now(),
		}
	}

	// 向量存储是核心依赖，缺失视为不健康
	if store := GetVectorStore(); store != nil {
		start := time.Now()
		ready := store.Ready()
		latency := time.Since(start)
		if ready {
			health["vector_store"] = HealthStatus{
				Status:    "healthy",
				Latency:   latency,
				Message:   store.Name(),
				Timestamp: time.Now(),
			}
		} else {
			health["vector_store"] = HealthStatus{
				Status:    "unhealthy",
				Latency:   latency,
				Message:   store.Name() + " not responding",
				Timestamp: time.Now(),
			}
		}
	} else {
		health["vector_store"] = HealthStatus{
			Status:    "unhealthy",
			Message:   "vector store not initialized",
			Timestamp: time.Now(),
		}
	}

	// Kafka生产者
	if kafka.GetProducer() != nil {
		health["kafka"] = HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now(),
		}
	} else {
		health["kafka"] = HealthStatus{
			Status:    "degraded",
			Message:   "Kafka not configured",
			Timestamp: time.Now(),
		}
	}

	// DashScope
	if dashscope.IsGlobalServiceReady() {
		health["dashscope"] = HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now(),
		}
	} else {
		health["dashscope"] = HealthStatus{
			Status:    "degraded",
			Message:   "DashScope not configured",
			Timestamp: time.Now(),
		}
	}

	return health
}

// OverallStatus 汇总整体状态，任一组件unhealthy则整体unhealthy
func OverallStatus(health map[string]HealthStatus) string {
	for _, h := range health {
		if h.Status == "unhealthy" {
			return "unhealthy"
		}
	}
	return "healthy"
}
