package livefeed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RealtimeVoiceKB/internal/latency"
)

// dialFeed 建立一个到广播器的WebSocket订阅
func dialFeed(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

// TestFeedBroadcast 测试事件广播到达订阅端
func TestFeedBroadcast(t *testing.T) {
	feed := NewFeed(16)
	go feed.Run()
	defer feed.Stop()

	server := httptest.NewServer(http.HandlerFunc(feed.HandleWS))
	defer server.Close()

	conn := dialFeed(t, server)
	defer conn.Close()

	// 等待注册完成
	require.Eventually(t, func() bool {
		return feed.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	pl := int64(100)
	feed.Publish(EventMessage{
		SessionID: "abc12345",
		Event: latency.InteractionEvent{
			Type:              "speech_turn",
			ProcessingLatency: &pl,
			Timestamp:         time.Now(),
		},
		TotalInteractions:   1,
		AverageResponseTime: 100,
		Timestamp:           time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received EventMessage
	require.NoError(t, conn.ReadJSON(&received))

	assert.Equal(t, "abc12345", received.SessionID)
	assert.Equal(t, "speech_turn", received.Event.Type)
	require.NotNil(t, received.Event.ProcessingLatency)
	assert.Equal(t, int64(100), *received.Event.ProcessingLatency)
	assert.Equal(t, int64(1), received.TotalInteractions)
}

// TestFeedUnregisterOnClose 测试订阅端断开后被清理
func TestFeedUnregisterOnClose(t *testing.T) {
	feed := NewFeed(16)
	go feed.Run()
	defer feed.Stop()

	server := httptest.NewServer(http.HandlerFunc(feed.HandleWS))
	defer server.Close()

	conn := dialFeed(t, server)
	require.Eventually(t, func() bool {
		return feed.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return feed.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// TestFeedPublishWithoutSubscribers 测试无订阅端时投递不阻塞
func TestFeedPublishWithoutSubscribers(t *testing.T) {
	feed := NewFeed(1)
	go feed.Run()
	defer feed.Stop()

	for i := 0; i < 10; i++ {
		feed.Publish(EventMessage{SessionID: "abc12345", Timestamp: time.Now()})
	}
	assert.Equal(t, 0, feed.ClientCount())
}
