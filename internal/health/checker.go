package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Probe 单个依赖的探测函数
type Probe func(ctx context.Context) error

// probeEntry 注册的探测项，可选项失败不影响整体状态
type probeEntry struct {
	name     string
	probe    Probe
	optional bool
}

// ProbeResult 单个依赖的探测结果
type ProbeResult struct {
	Healthy      bool      `json:"healthy"`
	Optional     bool      `json:"optional,omitempty"`
	LastCheck    time.Time `json:"last_check"`
	LastError    string    `json:"last_error,omitempty"`
	ResponseTime string    `json:"response_time,omitempty"`
}

// Checker 管道依赖健康检查器
type Checker struct {
	probes        []probeEntry
	logger        *logrus.Logger
	checkInterval time.Duration
	retryDelay    time.Duration
	maxRetries    int
	probeTimeout  time.Duration
	isHealthy     bool
	lastCheck     time.Time
	results       map[string]ProbeResult
	mu            sync.RWMutex
	stopChan      chan struct{}
	running       bool
}

// NewChecker 创建健康检查器
func NewChecker(logger *logrus.Logger) *Checker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Checker{
		logger:        logger,
		checkInterval: 30 * time.Second, // 默认30秒检查一次
		retryDelay:    5 * time.Second,  // 默认5秒重试延迟
		maxRetries:    3,                // 默认最多重试3次
		probeTimeout:  5 * time.Second,
		isHealthy:     false,
		results:       make(map[string]ProbeResult),
		stopChan:      make(chan struct{}),
	}
}

// Register 注册必需依赖，失败时整体视为不健康
func (hc *Checker) Register(name string, probe Probe) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.probes = append(hc.probes, probeEntry{name: name, probe: probe})
}

// RegisterOptional 注册可选依赖，失败只记录不影响整体状态
func (hc *Checker) RegisterOptional(name string, probe Probe) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.probes = append(hc.probes, probeEntry{name: name, probe: probe, optional: true})
}

// SetCheckInterval 设置检查间隔
func (hc *Checker) SetCheckInterval(interval time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkInterval = interval
}

// SetRetryConfig 设置重试配置
func (hc *Checker) SetRetryConfig(delay time.Duration, maxRetries int) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.retryDelay = delay
	hc.maxRetries = maxRetries
}

// Start 开始周期性健康检查，阻塞直到ctx取消或Stop被调用
func (hc *Checker) Start(ctx context.Context) {
	hc.mu.Lock()
	if hc.running {
		hc.mu.Unlock()
		return
	}
	hc.running = true
	interval := hc.checkInterval
	hc.mu.Unlock()

	hc.logger.Info("Starting pipeline health checker")

	// 立即执行一次检查
	go hc.checkAndUpdate()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hc.mu.Lock()
			hc.running = false
			hc.mu.Unlock()
			hc.logger.Info("Pipeline health checker stopped")
			return
		case <-hc.stopChan:
			hc.mu.Lock()
			hc.running = false
			hc.mu.Unlock()
			hc.logger.Info("Pipeline health checker stopped")
			return
		case <-ticker.C:
			go hc.checkAndUpdate()
		}
	}
}

// Stop 停止周期性检查
func (hc *Checker) Stop() {
	hc.mu.Lock()
	if !hc.running {
		hc.mu.Unlock()
		return
	}
	close(hc.stopChan)
	hc.mu.Unlock()
}

// Check 依次执行所有探测，返回首个必需依赖的失败
func (hc *Checker) Check(ctx context.Context) error {
	hc.mu.RLock()
	probes := make([]probeEntry, len(hc.probes))
	copy(probes, hc.probes)
	timeout := hc.probeTimeout
	hc.mu.RUnlock()

	results := make(map[string]ProbeResult, len(probes))
	var firstErr error

	for _, entry := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := entry.probe(probeCtx)
		responseTime := time.Since(start)
		cancel()

		result := ProbeResult{
			Healthy:      err == nil,
			Optional:     entry.optional,
			LastCheck:    time.Now(),
			ResponseTime: responseTime.String(),
		}
		if err != nil {
			result.LastError = err.Error()
			if entry.optional {
				hc.logger.WithFields(logrus.Fields{
					"probe": entry.name,
					"error": err.Error(),
				}).Warn("Optional dependency unavailable")
			} else {
				hc.logger.WithFields(logrus.Fields{
					"probe":         entry.name,
					"error":         err.Error(),
					"response_time": responseTime,
				}).Warn("Health check failed")
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", entry.name, err)
				}
			}
		}
		results[entry.name] = result
	}

	hc.mu.Lock()
	hc.lastCheck = time.Now()
	hc.results = results
	wasHealthy := hc.isHealthy
	hc.isHealthy = firstErr == nil
	hc.mu.Unlock()

	if firstErr == nil && !wasHealthy {
		hc.logger.Info("All required dependencies healthy")
	}
	return firstErr
}

// checkAndUpdate 执行检查并在失败时重试
func (hc *Checker) checkAndUpdate() {
	ctx := context.Background()
	if err := hc.Check(ctx); err != nil {
		hc.retryWithBackoff(ctx)
	}
}

// retryWithBackoff 带退避的重试
func (hc *Checker) retryWithBackoff(ctx context.Context) {
	hc.mu.RLock()
	retryDelay := hc.retryDelay
	maxRetries := hc.maxRetries
	hc.mu.RUnlock()

	for i := 0; i < maxRetries; i++ {
		hc.logger.WithField("attempt", i+1).Info("Retrying dependency checks")

		select {
		case <-time.After(retryDelay * time.Duration(i+1)):
			if err := hc.Check(ctx); err == nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}

	hc.logger.Error("Dependencies still failing after all retries")
}

// IsHealthy 当前整体健康状态
func (hc *Checker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.isHealthy
}

// Results 各依赖的最近探测结果
func (hc *Checker) Results() map[string]ProbeResult {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	out := make(map[string]ProbeResult, len(hc.results))
	for name, r := range hc.results {
		out[name] = r
	}
	return out
}

// WaitForHealthy 阻塞直到所有必需依赖就绪或超时，启动时用于门禁
func (hc *Checker) WaitForHealthy(ctx context.Context, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := hc.Check(timeoutCtx); err == nil {
		return nil
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeoutCtx.Done():
			return timeoutCtx.Err()
		case <-ticker.C:
			if err := hc.Check(timeoutCtx); err == nil {
				return nil
			}
		}
	}
}
