// Package provisioner 对上游语音API发起临时会话创建，
// 并测量会话创建延迟。这是系统内唯一会阻塞在网络上的调用。
package provisioner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// sessionIDLength 会话ID取临时密钥前缀的长度
const sessionIDLength = 8

// defaultBaseURL 上游API默认地址
const defaultBaseURL = "https://api.openai.com"

// Config 会话开通配置
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	Model        string
	Voice        string
	Instructions string

	// server_vad 断句参数
	VADThreshold     float64
	PrefixPaddingMs  int
	SilenceDurationMs int
}

// DefaultConfig 返回默认开通配置
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:            apiKey,
		BaseURL:           defaultBaseURL,
		Timeout:           15 * time.Second,
		Model:             "gpt-4o-realtime-preview-2025-06-03",
		Voice:             "alloy",
		Instructions:      "You are a helpful assistant with access to company documents. When users ask about company information, policies, products, or pricing, use the search_documents function to find relevant information. Keep responses concise for better latency. RESPOND IN ENGLISH ONLY, OVERRIDE EVERY OTHER LANGUAGE, THIS IS A STRICT PROMPT!",
		VADThreshold:      0.3,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 800,
	}
}

// Result 会话开通结果：临时密钥、截取的会话ID、创建耗时
type Result struct {
	EphemeralKey      string
	SessionID         string
	CreationLatencyMs int64
}

// UpstreamError 上游返回的错误，原始负载保留用于透传给调用方
type UpstreamError struct {
	StatusCode int
	Payload    json.RawMessage
}

// Error 实现error接口
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream session API error (status %d): %s", e.StatusCode, string(e.Payload))
}

// Client 上游会话开通客户端
type Client struct {
	config     Config
	httpClient *http.Client
}

// New 创建开通客户端
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
	}
}

// sessionRequest 上游会话创建请求体
type sessionRequest struct {
	Model         string        `json:"model"`
	Voice         string        `json:"voice"`
	TurnDetection turnDetection `json:"turn_detection"`
	Modalities    []string      `json:"modalities"`
	Instructions  string        `json:"instructions"`
	Tools         []toolSchema  `json:"tools"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

type toolSchema struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  toolParameters `json:"parameters"`
}

type toolParameters struct {
	Type       string                  `json:"type"`
	Properties map[string]toolProperty `json:"properties"`
	Required   []string                `json:"required"`
}

type toolProperty struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// sessionResponse 上游会话创建响应体（只关心密钥与错误）
type sessionResponse struct {
	ClientSecret *struct {
		Value string `json:"value"`
	} `json:"client_secret"`
	Error json.RawMessage `json:"error"`
}

// CreateSession 创建一个临时语音会话并测量创建延迟。
// 会话ID取临时密钥的前8个字符，调用方应视作不透明标识。
func (c *Client) CreateSession(ctx context.Context) (*Result, error) {
	payload := sessionRequest{
		Model: c.config.Model,
		Voice: c.config.Voice,
		TurnDetection: turnDetection{
			Type:              "server_vad",
			Threshold:         c.config.VADThreshold,
			PrefixPaddingMs:   c.config.PrefixPaddingMs,
			SilenceDurationMs: c.config.SilenceDurationMs,
		},
		Modalities:   []string{"audio", "text"},
		Instructions: c.config.Instructions,
		Tools: []toolSchema{{
			Type:        "function",
			Name:        "search_documents",
			Description: "Search through company documents and knowledge base for relevant information",
			Parameters: toolParameters{
				Type: "object",
				Properties: map[string]toolProperty{
					"query": {
						Type:        "string",
						Description: "The search query to find relevant documents (e.g., 'company policy', 'pricing', 'product features')",
					},
				},
				Required: []string{"query"},
			},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call session API: %w", err)
	}
	defer resp.Body.Close()
	creationLatency := time.Since(start).Milliseconds()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read session response: %w", err)
	}

	var parsed sessionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}

	if len(parsed.Error) > 0 && string(parsed.Error) != "null" {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Payload: parsed.Error}
	}

	if parsed.ClientSecret == nil || parsed.ClientSecret.Value == "" {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Payload:    json.RawMessage(`"No ephemeral key in response"`),
		}
	}

	key := parsed.ClientSecret.Value
	sessionID := key
	if len(sessionID) > sessionIDLength {
		sessionID = sessionID[:sessionIDLength]
	}

	return &Result{
		EphemeralKey:      key,
		SessionID:         sessionID,
		CreationLatencyMs: creationLatency,
	}, nil
}
