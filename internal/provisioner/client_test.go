package provisioner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient 指向假上游的开通客户端
func newTestClient(baseURL string) *Client {
	config := DefaultConfig("test-key")
	config.BaseURL = baseURL
	config.Timeout = 5 * time.Second
	return New(config)
}

// TestCreateSessionSuccess 测试成功开通会话
func TestCreateSessionSuccess(t *testing.T) {
	var captured sessionRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/realtime/sessions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"client_secret": map[string]string{"value": "ek_abc12345xyz"},
		})
	}))
	defer upstream.Close()

	client := newTestClient(upstream.URL)
	result, err := client.CreateSession(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ek_abc12345xyz", result.EphemeralKey)
	assert.Equal(t, "ek_abc12", result.SessionID)
	assert.GreaterOrEqual(t, result.CreationLatencyMs, int64(0))

	// 请求体应携带断句参数与文档检索工具
	assert.Equal(t, "server_vad", captured.TurnDetection.Type)
	assert.InDelta(t, 0.3, captured.TurnDetection.Threshold, 0.0001)
	assert.Equal(t, []string{"audio", "text"}, captured.Modalities)
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "search_documents", captured.Tools[0].Name)
	assert.Equal(t, []string{"query"}, captured.Tools[0].Parameters.Required)
}

// TestCreateSessionUpstreamError 测试上游错误负载原样保留
func TestCreateSessionUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer upstream.Close()

	client := newTestClient(upstream.URL)
	_, err := client.CreateSession(context.Background())
	require.Error(t, err)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusUnauthorized, upstreamErr.StatusCode)
	assert.Contains(t, string(upstreamErr.Payload), "Incorrect API key provided")
}

// TestCreateSessionMissingKey 测试响应缺少临时密钥时报上游错误
func TestCreateSessionMissingKey(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	client := newTestClient(upstream.URL)
	_, err := client.CreateSession(context.Background())

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Contains(t, string(upstreamErr.Payload), "No ephemeral key")
}

// TestCreateSessionContextCancel 测试上下文取消立即返回
func TestCreateSessionContextCancel(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer upstream.Close()

	client := newTestClient(upstream.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.CreateSession(ctx)
	require.Error(t, err)
}

// TestShortEphemeralKey 测试短密钥不截断
func TestShortEphemeralKey(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"client_secret": map[string]string{"value": "ek_1"},
		})
	}))
	defer upstream.Close()

	client := newTestClient(upstream.URL)
	result, err := client.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ek_1", result.SessionID)
}
