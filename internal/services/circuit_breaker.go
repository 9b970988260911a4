package services

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// CircuitBreakerState 熔断器状态
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// ErrCircuitOpen 熔断器打开时的哨兵错误
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker 熔断器，保护对外部模型API的调用
type CircuitBreaker struct {
	name string

	failureThreshold int           // 连续失败多少次后打开
	successThreshold int           // 半开状态下连续成功多少次后关闭
	timeout          time.Duration // 打开后多久允许半开试探

	state           int32
	failureCount    int32
	successCount    int32
	lastFailureTime time.Time
	mutex           sync.RWMutex
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(name string, failureThreshold, successThreshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            int32(StateClosed),
	}
}

// Call 执行函数调用，打开状态下直接拒绝
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.canExecute() {
		return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	}

	err := fn()
	cb.recordResult(err == nil)
	return err
}

// canExecute 检查是否可以执行请求
func (cb *CircuitBreaker) canExecute() bool {
	switch cb.State() {
	case StateClosed:
		return true
	case StateOpen:
		cb.mutex.RLock()
		canHalfOpen := time.Since(cb.lastFailureTime) >= cb.timeout
		cb.mutex.RUnlock()

		if canHalfOpen {
			atomic.StoreInt32(&cb.state, int32(StateHalfOpen))
			atomic.StoreInt32(&cb.successCount, 0)
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// recordResult 记录执行结果
func (cb *CircuitBreaker) recordResult(success bool) {
	if success {
		cb.recordSuccess()
	} else {
		cb.recordFailure()
	}
}

// recordSuccess 记录成功
func (cb *CircuitBreaker) recordSuccess() {
	switch cb.State() {
	case StateHalfOpen:
		count := atomic.AddInt32(&cb.successCount, 1)
		if int(count) >= cb.successThreshold {
			atomic.StoreInt32(&cb.state, int32(StateClosed))
			atomic.StoreInt32(&cb.failureCount, 0)
		}
	case StateClosed:
		atomic.StoreInt32(&cb.failureCount, 0)
	}
}

// recordFailure 记录失败
func (cb *CircuitBreaker) recordFailure() {
	cb.mutex.Lock()
	cb.lastFailureTime = time.Now()
	cb.mutex.Unlock()

	switch cb.State() {
	case StateHalfOpen:
		// 半开状态下失败，直接重新打开
		atomic.StoreInt32(&cb.state, int32(StateOpen))
		atomic.StoreInt32(&cb.successCount, 0)
	case StateClosed:
		count := atomic.AddInt32(&cb.failureCount, 1)
		if int(count) >= cb.failureThreshold {
			atomic.StoreInt32(&cb.state, int32(StateOpen))
		}
	}
}

// State 获取当前状态
func (cb *CircuitBreaker) State() CircuitBreakerState {
	return CircuitBreakerState(atomic.LoadInt32(&cb.state))
}

// Stats 当前统计信息
func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	return map[string]interface{}{
		"name":          cb.name,
		"state":         cb.State().String(),
		"failure_count": atomic.LoadInt32(&cb.failureCount),
		"success_count": atomic.LoadInt32(&cb.successCount),
	}
}

// String 返回状态字符串
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// 全局熔断器注册表，按名称复用
var (
	globalCircuitBreakers = make(map[string]*CircuitBreaker)
	circuitBreakerMutex   sync.RWMutex
)

// GetCircuitBreaker 获取或创建命名熔断器
func GetCircuitBreaker(name string) *CircuitBreaker {
	circuitBreakerMutex.RLock()
	cb, exists := globalCircuitBreakers[name]
	circuitBreakerMutex.RUnlock()

	if exists {
		return cb
	}

	cb = NewCircuitBreaker(name, 5, 3, time.Minute)

	circuitBreakerMutex.Lock()
	globalCircuitBreakers[name] = cb
	circuitBreakerMutex.Unlock()

	return cb
}

// AllCircuitBreakerStats 所有熔断器的状态快照
func AllCircuitBreakerStats() map[string]interface{} {
	circuitBreakerMutex.RLock()
	defer circuitBreakerMutex.RUnlock()

	result := make(map[string]interface{}, len(globalCircuitBreakers))
	for name, cb := range globalCircuitBreakers {
		result[name] = cb.Stats()
	}
	return result
}
