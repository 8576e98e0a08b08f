// Package loadtest 针对语音会话API的负载基准：
// 每个工作器模拟一个完整会话（开通、延迟上报、函数调用）并统计RTT。
package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BenchConfig 基准测试配置
type BenchConfig struct {
	BaseURL string

	Sessions          int // 并发会话数
	Interactions      int // 每会话的语音交互次数
	FunctionCallEvery int // 每N次交互插入一次函数调用，0表示不插入

	Timeout      time.Duration // 单请求超时
	ReadyTimeout time.Duration // 等待服务器就绪的最长时间

	MaxIdleConns    int
	MaxConnsPerHost int
}

// DefaultBenchConfig 返回默认基准配置
func DefaultBenchConfig(baseURL string) *BenchConfig {
	return &BenchConfig{
		BaseURL:           baseURL,
		Sessions:          10,
		Interactions:      20,
		FunctionCallEvery: 5,
		Timeout:           10 * time.Second,
		ReadyTimeout:      30 * time.Second,
		MaxIdleConns:      100,
		MaxConnsPerHost:   50,
	}
}

// BenchResult 基准测试结果
type BenchResult struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	SessionsCompleted  int64
	Duration           time.Duration

	// 延迟指标（毫秒）
	MinLatency float64
	MaxLatency float64
	AvgLatency float64
	P50Latency float64
	P95Latency float64
	P99Latency float64

	RequestsPerSecond float64

	StatusCodes  map[int]int64
	ErrorsByType map[string]int64
}

// benchMetrics 基准指标收集器
type benchMetrics struct {
	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	sessionsDone    atomic.Int64

	latencies []time.Duration
	latencyMu sync.Mutex

	statusCodes map[int]*atomic.Int64
	statusMu    sync.RWMutex

	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	startTime time.Time
}

// Bench 语音会话负载基准
type Bench struct {
	config *BenchConfig
	client *http.Client

	metrics *benchMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	result *BenchResult
	mu     sync.RWMutex
}

// NewBench 创建基准测试器
func NewBench(config *BenchConfig) *Bench {
	ctx, cancel := context.WithCancel(context.Background())

	transport := &http.Transport{
		MaxIdleConns:    config.MaxIdleConns,
		MaxConnsPerHost: config.MaxConnsPerHost,
		IdleConnTimeout: 90 * time.Second,
	}

	return &Bench{
		config: config,
		client: &http.Client{Transport: transport, Timeout: config.Timeout},
		ctx:    ctx,
		cancel: cancel,
		metrics: &benchMetrics{
			statusCodes: make(map[int]*atomic.Int64),
			errorCounts: make(map[string]*atomic.Int64),
			startTime:   time.Now(),
		},
	}
}

// WaitReady 用指数退避轮询健康检查端点直到服务器就绪
func (b *Bench) WaitReady() error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = b.config.ReadyTimeout

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(b.ctx, "GET", b.config.BaseURL+"/healthz", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health check returned %d", resp.StatusCode)
		}
		return nil
	}, backoff.WithContext(bo, b.ctx))
}

// Run 执行基准测试：等待就绪后并发跑完所有会话工作器
func (b *Bench) Run() (*BenchResult, error) {
	log.Printf("🚀 Starting voice session bench: %d sessions x %d interactions against %s",
		b.config.Sessions, b.config.Interactions, b.config.BaseURL)

	if err := b.WaitReady(); err != nil {
		return nil, fmt.Errorf("server not ready: %w", err)
	}

	b.metrics.startTime = time.Now()

	for i := 0; i < b.config.Sessions; i++ {
		b.wg.Add(1)
		go b.sessionWorker(i)
	}
	b.wg.Wait()

	b.generateResult()
	return b.GetResult(), nil
}

// Stop 中止测试
func (b *Bench) Stop() {
	b.cancel()
}

// sessionWorker 单会话工作器：开通会话后按顺序上报交互
func (b *Bench) sessionWorker(workerID int) {
	defer b.wg.Done()

	sessionID, ok := b.createSession()
	if !ok {
		return
	}

	// 合成单调递增的交互时间戳
	clock := time.Now().UnixMilli()

	for i := 0; i < b.config.Interactions; i++ {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		speechStart := clock
		speechEnd := speechStart + 400 + int64(workerID%7)*50
		responseStart := speechEnd + 80 + int64(i%5)*30
		clock = responseStart + 1000

		b.postJSON("/track-latency", map[string]interface{}{
			"session_id":          sessionID,
			"event_type":          "speech_turn",
			"speech_start_time":   speechStart,
			"speech_end_time":     speechEnd,
			"response_start_time": responseStart,
		})

		if b.config.FunctionCallEvery > 0 && (i+1)%b.config.FunctionCallEvery == 0 {
			b.postJSON("/function-call", map[string]interface{}{
				"name":       "search_documents",
				"arguments":  `{"query":"pricing"}`,
				"call_id":    fmt.Sprintf("bench_%d_%d", workerID, i),
				"session_id": sessionID,
			})
		}
	}

	// 收尾拉一次统计，覆盖读路径
	b.doRequest("GET", "/latency-stats/"+sessionID, nil)

	b.metrics.sessionsDone.Add(1)
}

// createSession 开通会话并返回服务端分配的session_id
func (b *Bench) createSession() (string, bool) {
	body, statusCode, ok := b.doRequest("GET", "/session", nil)
	if !ok || statusCode != http.StatusOK {
		return "", false
	}

	var parsed struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.SessionID == "" {
		b.recordError(fmt.Errorf("invalid session response"))
		return "", false
	}
	return parsed.SessionID, true
}

// postJSON 发送JSON POST请求
func (b *Bench) postJSON(path string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.recordError(err)
		return
	}
	b.doRequest("POST", path, data)
}

// doRequest 执行一次请求并记录指标，返回响应体
func (b *Bench) doRequest(method, path string, body []byte) ([]byte, int, bool) {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(b.ctx, method, b.config.BaseURL+path, reader)
	if err != nil {
		b.recordError(err)
		return nil, 0, false
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.recordError(err)
		return nil, 0, false
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		b.recordError(err)
		return nil, resp.StatusCode, false
	}

	b.recordMetrics(resp.StatusCode, time.Since(start))
	return respBody, resp.StatusCode, true
}

// recordMetrics 记录一次完成请求的指标
func (b *Bench) recordMetrics(statusCode int, latency time.Duration) {
	b.metrics.totalRequests.Add(1)
	if statusCode >= 200 && statusCode < 400 {
		b.metrics.successRequests.Add(1)
	} else {
		b.metrics.failedRequests.Add(1)
	}

	b.metrics.latencyMu.Lock()
	b.metrics.latencies = append(b.metrics.latencies, latency)
	b.metrics.latencyMu.Unlock()

	b.metrics.statusMu.Lock()
	counter, exists := b.metrics.statusCodes[statusCode]
	if !exists {
		counter = &atomic.Int64{}
		b.metrics.statusCodes[statusCode] = counter
	}
	counter.Add(1)
	b.metrics.statusMu.Unlock()
}

// recordError 记录请求错误
func (b *Bench) recordError(err error) {
	b.metrics.totalRequests.Add(1)
	b.metrics.failedRequests.Add(1)

	errorType := err.Error()
	if len(errorType) > 50 {
		errorType = errorType[:50]
	}

	b.metrics.errorMu.Lock()
	counter, exists := b.metrics.errorCounts[errorType]
	if !exists {
		counter = &atomic.Int64{}
		b.metrics.errorCounts[errorType] = counter
	}
	counter.Add(1)
	b.metrics.errorMu.Unlock()
}

// generateResult 汇总测试结果
func (b *Bench) generateResult() {
	b.mu.Lock()
	defer b.mu.Unlock()

	duration := time.Since(b.metrics.startTime)
	totalRequests := b.metrics.totalRequests.Load()

	result := &BenchResult{
		TotalRequests:      totalRequests,
		SuccessfulRequests: b.metrics.successRequests.Load(),
		FailedRequests:     b.metrics.failedRequests.Load(),
		SessionsCompleted:  b.metrics.sessionsDone.Load(),
		Duration:           duration,
		RequestsPerSecond:  float64(totalRequests) / duration.Seconds(),
		StatusCodes:        make(map[int]int64),
		ErrorsByType:       make(map[string]int64),
	}

	b.metrics.latencyMu.Lock()
	if len(b.metrics.latencies) > 0 {
		latencies := make([]time.Duration, len(b.metrics.latencies))
		copy(latencies, b.metrics.latencies)

		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		result.MinLatency = float64(latencies[0].Nanoseconds()) / 1e6
		result.MaxLatency = float64(latencies[len(latencies)-1].Nanoseconds()) / 1e6
		result.P50Latency = float64(latencies[len(latencies)/2].Nanoseconds()) / 1e6
		result.P95Latency = float64(latencies[int(float64(len(latencies))*0.95)].Nanoseconds()) / 1e6
		result.P99Latency = float64(latencies[int(float64(len(latencies))*0.99)].Nanoseconds()) / 1e6

		var total time.Duration
		for _, lat := range latencies {
			total += lat
		}
		result.AvgLatency = float64(total.Nanoseconds()) / float64(len(latencies)) / 1e6
	}
	b.metrics.latencyMu.Unlock()

	b.metrics.statusMu.RLock()
	for code, counter := range b.metrics.statusCodes {
		result.StatusCodes[code] = counter.Load()
	}
	b.metrics.statusMu.RUnlock()

	b.metrics.errorMu.RLock()
	for errorType, counter := range b.metrics.errorCounts {
		result.ErrorsByType[errorType] = counter.Load()
	}
	b.metrics.errorMu.RUnlock()

	b.result = result
}

// GetResult 获取测试结果
func (b *Bench) GetResult() *BenchResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.result
}

// PrintSummary 打印结果摘要
func (r *BenchResult) PrintSummary() {
	log.Printf("📊 Bench complete in %v", r.Duration.Round(time.Millisecond))
	log.Printf("   Sessions completed: %d", r.SessionsCompleted)
	log.Printf("   Requests: %d total, %d ok, %d failed (%.1f req/s)",
		r.TotalRequests, r.SuccessfulRequests, r.FailedRequests, r.RequestsPerSecond)
	log.Printf("   Latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f",
		r.MinLatency, r.AvgLatency, r.P50Latency, r.P95Latency, r.P99Latency, r.MaxLatency)
	for code, count := range r.StatusCodes {
		log.Printf("   HTTP %d: %d", code, count)
	}
	for errType, count := range r.ErrorsByType {
		log.Printf("   Error %q: %d", errType, count)
	}
}
