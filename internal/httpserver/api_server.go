// Package httpserver 语音会话代理的HTTP对外接口：
// 会话开通、函数调用中继、延迟上报与统计查询。
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"RealtimeVoiceKB/internal/config"
	"RealtimeVoiceKB/internal/kb"
	"RealtimeVoiceKB/internal/latency"
	"RealtimeVoiceKB/internal/livefeed"
	"RealtimeVoiceKB/internal/provisioner"
)

// SessionProvisioner 上游会话开通的抽象，便于测试替换
type SessionProvisioner interface {
	CreateSession(ctx context.Context) (*provisioner.Result, error)
}

// APIServer 延迟遥测HTTP服务器
type APIServer struct {
	router      *mux.Router
	server      *http.Server
	store       *latency.Store
	provisioner SessionProvisioner
	feed        *livefeed.Feed

	// 请求级统计
	requestCount int64
	responseTime []time.Duration
	errorCount   int64
	startTime    time.Time
	mu           sync.RWMutex
}

// NewAPIServer 创建HTTP服务器
func NewAPIServer(cfg config.ServerConfig, prov SessionProvisioner, store *latency.Store, feed *livefeed.Feed) *APIServer {
	s := &APIServer{
		router:      mux.NewRouter(),
		store:       store,
		provisioner: prov,
		feed:        feed,
		startTime:   time.Now(),
	}

	s.setupRoutes(cfg.StaticDir)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      c.Handler(s.router),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// setupRoutes 设置路由
func (s *APIServer) setupRoutes(staticDir string) {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)

	s.router.HandleFunc("/session", s.sessionHandler).Methods("GET")
	s.router.HandleFunc("/function-call", s.functionCallHandler).Methods("POST")
	s.router.HandleFunc("/track-latency", s.trackLatencyHandler).Methods("POST")
	s.router.HandleFunc("/latency-stats/{session_id}", s.latencyStatsHandler).Methods("GET")

	s.router.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	s.router.HandleFunc("/metrics", s.metricsHandler).Methods("GET")

	if s.feed != nil {
		s.router.HandleFunc("/ws/live", s.feed.HandleWS)
	}

	// 静态页面（WebRTC客户端），目录存在时才挂载
	if staticDir != "" {
		if _, err := os.Stat(staticDir); err == nil {
			s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
		}
	}
}

// 中间件
func (s *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)
		log.Printf("%s %s %s %v", r.Method, r.RequestURI, r.RemoteAddr, duration)
	})
}

func (s *APIServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)

		s.mu.Lock()
		s.requestCount++
		s.responseTime = append(s.responseTime, duration)
		// 保持最近1000个请求的响应时间
		if len(s.responseTime) > 1000 {
			s.responseTime = s.responseTime[1:]
		}
		s.mu.Unlock()
	})
}

// sessionResponse GET /session 响应体
type sessionResponse struct {
	EphemeralKey           string `json:"ephemeral_key"`
	SessionID              string `json:"session_id"`
	SessionCreationLatency int64  `json:"session_creation_latency"`
}

// sessionHandler 开通临时语音会话并初始化延迟跟踪
func (s *APIServer) sessionHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.provisioner.CreateSession(r.Context())
	if err != nil {
		var upstreamErr *provisioner.UpstreamError
		if errors.As(err, &upstreamErr) {
			// 上游错误负载原样透传
			s.writeErrorPayload(w, http.StatusInternalServerError, upstreamErr.Payload)
			return
		}
		log.Printf("Session creation error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	log.Printf("📊 Session creation latency: %dms", result.CreationLatencyMs)

	if err := s.store.Create(result.SessionID, result.CreationLatencyMs); err != nil {
		log.Printf("Session record creation failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	s.writeJSON(w, http.StatusOK, sessionResponse{
		EphemeralKey:           result.EphemeralKey,
		SessionID:              result.SessionID,
		SessionCreationLatency: result.CreationLatencyMs,
	})
}

// functionCallRequest POST /function-call 请求体
type functionCallRequest struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	CallID    string `json:"call_id"`
	SessionID string `json:"session_id"`
}

// functionCallResponse POST /function-call 响应体
type functionCallResponse struct {
	CallID          string `json:"call_id"`
	Output          string `json:"output"`
	FunctionLatency int64  `json:"function_latency"`
}

// searchOutput 文档检索的函数输出
type searchOutput struct {
	Query           string            `json:"query"`
	Documents       []kb.SearchResult `json:"documents"`
	SearchPerformed bool              `json:"search_performed"`
	Timestamp       time.Time         `json:"timestamp"`
}

// functionErrorOutput 以函数结果形式返回的错误。
// 调用方是远端模型，期望拿到函数output而不是HTTP错误。
type functionErrorOutput struct {
	Error string `json:"error"`
}

// functionCallHandler 函数调用中继：分发到文档检索并记录函数延迟
func (s *APIServer) functionCallHandler(w http.ResponseWriter, r *http.Request) {
	functionStart := time.Now()

	var req functionCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	log.Printf("📚 Function called: %s with args: %s", req.Name, req.Arguments)

	var result interface{}
	switch req.Name {
	case "search_documents":
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(req.Arguments), &args); err != nil {
			result = functionErrorOutput{Error: "Invalid arguments: " + err.Error()}
			break
		}

		result = searchOutput{
			Query:           args.Query,
			Documents:       kb.Search(args.Query),
			SearchPerformed: true,
			Timestamp:       time.Now(),
		}
		log.Printf("📄 Document search performed for query: %q", args.Query)

	default:
		result = functionErrorOutput{Error: "Unknown function: " + req.Name}
	}

	functionLatency := time.Since(functionStart).Milliseconds()

	// 会话存在时记录函数调用延迟；未知会话静默跳过，不返回404
	if req.SessionID != "" && s.store.Has(req.SessionID) {
		event := latency.NewFunctionCallEvent(req.Name, functionLatency, time.Now())
		if record, err := s.store.AppendFunctionCall(req.SessionID, event); err == nil {
			s.publishEvent(req.SessionID, event, record)
		}
	}

	log.Printf("⚡ Function execution latency: %dms", functionLatency)

	output, err := json.Marshal(result)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Function call failed")
		return
	}

	s.writeJSON(w, http.StatusOK, functionCallResponse{
		CallID:          req.CallID,
		Output:          string(output),
		FunctionLatency: functionLatency,
	})
}

// trackLatencyRequest POST /track-latency 请求体
type trackLatencyRequest struct {
	SessionID string `json:"session_id"`
	EventType string `json:"event_type"`
	latency.TimingReport
}

// sessionStatsSummary 上报响应内嵌的会话概要
type sessionStatsSummary struct {
	TotalInteractions   int64 `json:"total_interactions"`
	AverageResponseTime int64 `json:"average_response_time"`
}

// trackLatencyResponse POST /track-latency 响应体
type trackLatencyResponse struct {
	Success        bool                   `json:"success"`
	LatencyMetrics latency.DerivedMetrics `json:"latency_metrics"`
	SessionStats   sessionStatsSummary    `json:"session_stats"`
}

// trackLatencyHandler 接收语音交互的原始时间戳并归一化入库
func (s *APIServer) trackLatencyHandler(w http.ResponseWriter, r *http.Request) {
	var req trackLatencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	metrics := latency.Normalize(req.TimingReport, time.Now())
	event := latency.NewTimingEvent(req.EventType, metrics)

	record, err := s.store.AppendTimingEvent(req.SessionID, event)
	if err != nil {
		if errors.Is(err, latency.ErrSessionNotFound) {
			s.writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		log.Printf("Latency tracking error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to track latency")
		return
	}

	if metrics.ProcessingLatency != nil {
		log.Printf("📊 Latency Metrics for Session %s:", req.SessionID)
		log.Printf("   Speech Duration: %dms", *metrics.SpeechDuration)
		log.Printf("   Processing Latency: %dms", *metrics.ProcessingLatency)
		if metrics.TimeToFirstAudio != nil {
			log.Printf("   Time to First Audio: %dms", *metrics.TimeToFirstAudio)
		}
		log.Printf("   Average Response Time: %dms", record.RoundedAverage())
	}

	s.publishEvent(req.SessionID, event, record)

	s.writeJSON(w, http.StatusOK, trackLatencyResponse{
		Success:        true,
		LatencyMetrics: metrics,
		SessionStats: sessionStatsSummary{
			TotalInteractions:   record.TotalInteractions,
			AverageResponseTime: record.RoundedAverage(),
		},
	})
}

// latencyStatsHandler 查询会话的完整延迟统计
func (s *APIServer) latencyStatsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["session_id"]

	stats, err := s.store.Stats(sessionID)
	if err != nil {
		if errors.Is(err, latency.ErrSessionNotFound) {
			s.writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// healthHandler 健康检查
func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}

// metricsHandler 服务器级请求指标
func (s *APIServer) metricsHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	var avgResponseTime float64
	if len(s.responseTime) > 0 {
		var total time.Duration
		for _, rt := range s.responseTime {
			total += rt
		}
		avgResponseTime = float64(total.Nanoseconds()) / float64(len(s.responseTime)) / 1e6
	}
	requestCount := s.requestCount
	errorCount := s.errorCount
	s.mu.RUnlock()

	metrics := map[string]interface{}{
		"uptime_seconds":       time.Since(s.startTime).Seconds(),
		"total_requests":       requestCount,
		"error_count":          errorCount,
		"avg_response_time_ms": avgResponseTime,
		"active_sessions":      s.store.Count(),
	}
	if s.feed != nil {
		metrics["live_subscribers"] = s.feed.ClientCount()
	}

	s.writeJSON(w, http.StatusOK, metrics)
}

// publishEvent 向实时推送广播一条已落库的事件
func (s *APIServer) publishEvent(sessionID string, event latency.InteractionEvent, record *latency.SessionRecord) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(livefeed.EventMessage{
		SessionID:           sessionID,
		Event:               event,
		TotalInteractions:   record.TotalInteractions,
		AverageResponseTime: record.RoundedAverage(),
		Timestamp:           time.Now(),
	})
}

// 辅助方法
func (s *APIServer) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *APIServer) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.mu.Lock()
	s.errorCount++
	s.mu.Unlock()

	s.writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeErrorPayload 错误体为任意JSON负载（用于上游错误透传）
func (s *APIServer) writeErrorPayload(w http.ResponseWriter, statusCode int, payload json.RawMessage) {
	s.mu.Lock()
	s.errorCount++
	s.mu.Unlock()

	s.writeJSON(w, statusCode, map[string]json.RawMessage{"error": payload})
}

// Handler 返回完整的HTTP处理链（含CORS），供测试挂载
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

// Start 启动服务器
func (s *APIServer) Start() error {
	log.Printf("🚀 Server with document lookup and latency tracking running at http://%s", s.server.Addr)
	log.Printf("📊 Latency tracking endpoints:")
	log.Printf("   POST /track-latency - Track speech interaction latencies")
	log.Printf("   GET /latency-stats/{session_id} - Get session latency statistics")
	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭服务器
func (s *APIServer) Shutdown(ctx context.Context) error {
	log.Printf("Stopping HTTP API server")
	return s.server.Shutdown(ctx)
}
