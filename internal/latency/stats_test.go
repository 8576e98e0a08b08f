package latency

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSummarizeEmptySession 测试零交互会话返回全零统计与空列表
func TestSummarizeEmptySession(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Create("sess0001", 120))

	stats, err := store.Stats("sess0001")
	require.NoError(t, err)

	assert.Equal(t, int64(120), stats.SessionCreationLatency)
	assert.Equal(t, int64(0), stats.TotalInteractions)
	assert.Equal(t, int64(0), stats.AverageResponseTime)
	assert.Equal(t, SeriesStats{}, stats.ProcessingLatencies)
	assert.Equal(t, SeriesStats{}, stats.FunctionCallLatencies)
	assert.Empty(t, stats.RecentInteractions)
}

// TestSummarizeSeries 测试两类延迟序列分别汇总
func TestSummarizeSeries(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Create("sess0001", 80))

	for _, v := range []int64{100, 300, 200} {
		event := NewTimingEvent("speech_turn", DerivedMetrics{ProcessingLatency: ms(v), Timestamp: time.Now()})
		_, err := store.AppendTimingEvent("sess0001", event)
		require.NoError(t, err)
	}
	for _, v := range []int64{3, 9} {
		_, err := store.AppendFunctionCall("sess0001", NewFunctionCallEvent("search_documents", v, time.Now()))
		require.NoError(t, err)
	}

	stats, err := store.Stats("sess0001")
	require.NoError(t, err)

	assert.Equal(t, SeriesStats{Count: 3, Min: 100, Max: 300, Average: 200}, stats.ProcessingLatencies)
	assert.Equal(t, SeriesStats{Count: 2, Min: 3, Max: 9, Average: 6}, stats.FunctionCallLatencies)
	assert.Equal(t, int64(3), stats.TotalInteractions)
	assert.Equal(t, int64(200), stats.AverageResponseTime)
}

// TestSummarizeRecentWindow 测试最近交互窗口不超过5条且保持到达顺序
func TestSummarizeRecentWindow(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Create("sess0001", 80))

	for i := 0; i < 8; i++ {
		event := NewTimingEvent(fmt.Sprintf("turn_%d", i), DerivedMetrics{ProcessingLatency: ms(int64(i)), Timestamp: time.Now()})
		_, err := store.AppendTimingEvent("sess0001", event)
		require.NoError(t, err)
	}

	stats, err := store.Stats("sess0001")
	require.NoError(t, err)

	require.Len(t, stats.RecentInteractions, 5)
	for i, event := range stats.RecentInteractions {
		assert.Equal(t, fmt.Sprintf("turn_%d", i+3), event.Type)
	}
}

// TestSummarizeRounding 测试展示均值四舍五入而内部保留全精度
func TestSummarizeRounding(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Create("sess0001", 80))

	var record *SessionRecord
	var err error
	for _, v := range []int64{100, 101, 101} {
		event := NewTimingEvent("speech_turn", DerivedMetrics{ProcessingLatency: ms(v), Timestamp: time.Now()})
		record, err = store.AppendTimingEvent("sess0001", event)
		require.NoError(t, err)
	}

	assert.InDelta(t, 100.6667, record.AverageResponseTime, 0.001)

	stats, err := store.Stats("sess0001")
	require.NoError(t, err)
	assert.Equal(t, int64(101), stats.AverageResponseTime)
}

// TestSummarizeNegativeValues 测试负延迟参与统计不被钳制
func TestSummarizeNegativeValues(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Create("sess0001", 80))

	for _, v := range []int64{-50, 150} {
		event := NewTimingEvent("speech_turn", DerivedMetrics{ProcessingLatency: ms(v), Timestamp: time.Now()})
		_, err := store.AppendTimingEvent("sess0001", event)
		require.NoError(t, err)
	}

	stats, err := store.Stats("sess0001")
	require.NoError(t, err)
	assert.Equal(t, SeriesStats{Count: 2, Min: -50, Max: 150, Average: 50}, stats.ProcessingLatencies)
}
