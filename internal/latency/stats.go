package latency

import (
	"math"
)

// recentWindow 汇总中保留的最近交互条数
const recentWindow = 5

// SeriesStats 一组延迟序列的汇总统计（毫秒）。
// 空序列得到全零值而不是错误。
type SeriesStats struct {
	Count   int   `json:"count"`
	Min     int64 `json:"min"`
	Max     int64 `json:"max"`
	Average int64 `json:"average"`
}

// SessionStats 会话维度的完整统计视图。
// 均值在此处四舍五入到整数毫秒，内部存储保留全精度。
type SessionStats struct {
	SessionCreationLatency int64              `json:"session_creation_latency"`
	TotalInteractions      int64              `json:"total_interactions"`
	AverageResponseTime    int64              `json:"average_response_time"`
	ProcessingLatencies    SeriesStats        `json:"processing_latencies"`
	FunctionCallLatencies  SeriesStats        `json:"function_call_latencies"`
	RecentInteractions     []InteractionEvent `json:"recent_interactions"`
}

// Summarize 对会话的完整交互历史计算汇总统计，只读不修改
func Summarize(record *SessionRecord) *SessionStats {
	var processingLatencies []int64
	var functionLatencies []int64

	for _, event := range record.Interactions {
		if event.ProcessingLatency != nil {
			processingLatencies = append(processingLatencies, *event.ProcessingLatency)
		}
		if event.Type == EventTypeFunctionCall && event.Latency != nil {
			functionLatencies = append(functionLatencies, *event.Latency)
		}
	}

	recent := record.Interactions
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}

	return &SessionStats{
		SessionCreationLatency: record.SessionCreationLatency,
		TotalInteractions:      record.TotalInteractions,
		AverageResponseTime:    roundMs(record.AverageResponseTime),
		ProcessingLatencies:    summarizeSeries(processingLatencies),
		FunctionCallLatencies:  summarizeSeries(functionLatencies),
		RecentInteractions:     append([]InteractionEvent{}, recent...),
	}
}

// summarizeSeries 计算单个序列的count/min/max/average
func summarizeSeries(values []int64) SeriesStats {
	if len(values) == 0 {
		return SeriesStats{}
	}

	stats := SeriesStats{
		Count: len(values),
		Min:   values[0],
		Max:   values[0],
	}

	var sum int64
	for _, v := range values {
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		sum += v
	}
	stats.Average = roundMs(float64(sum) / float64(len(values)))

	return stats
}

// roundMs 展示层四舍五入到整数毫秒
func roundMs(v float64) int64 {
	return int64(math.Round(v))
}

// RoundedAverage 展示用的整数毫秒响应均值，内部全精度不受影响
func (r *SessionRecord) RoundedAverage() int64 {
	return roundMs(r.AverageResponseTime)
}
