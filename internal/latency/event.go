package latency

import (
	"time"
)

// EventTypeFunctionCall 函数调用交互事件的固定类型标签，
// 其余事件类型由调用方自由指定（例如 "speech_turn"）。
const EventTypeFunctionCall = "function_call"

// InteractionEvent 单条交互事件，按 Type 区分变体：
//   - function_call: FunctionName/Latency/Timestamp
//   - 其他（语音轮次）: 各派生指标字段，仅在对应原始时间戳齐全时出现
type InteractionEvent struct {
	Type string `json:"type"`

	// function_call 变体字段
	FunctionName string `json:"function_name,omitempty"`
	Latency      *int64 `json:"latency,omitempty"`

	// 语音轮次变体字段（毫秒，可能为负，不做钳制）
	SpeechDuration    *int64 `json:"speech_duration,omitempty"`
	ProcessingLatency *int64 `json:"processing_latency,omitempty"`
	TimeToFirstAudio  *int64 `json:"time_to_first_audio,omitempty"`
	TotalResponseTime *int64 `json:"total_response_time,omitempty"`

	Timestamp time.Time `json:"timestamp,omitzero"`
}

// NewFunctionCallEvent 构造函数调用事件
func NewFunctionCallEvent(functionName string, latencyMs int64, now time.Time) InteractionEvent {
	return InteractionEvent{
		Type:         EventTypeFunctionCall,
		FunctionName: functionName,
		Latency:      &latencyMs,
		Timestamp:    now,
	}
}

// NewTimingEvent 由派生指标构造语音轮次事件。
// 指标为空时事件只携带类型标签，与指标未达标的原始上报保持一致。
func NewTimingEvent(eventType string, metrics DerivedMetrics) InteractionEvent {
	return InteractionEvent{
		Type:              eventType,
		SpeechDuration:    metrics.SpeechDuration,
		ProcessingLatency: metrics.ProcessingLatency,
		TimeToFirstAudio:  metrics.TimeToFirstAudio,
		TotalResponseTime: metrics.TotalResponseTime,
		Timestamp:         metrics.Timestamp,
	}
}

// SessionRecord 单个会话的延迟遥测记录
type SessionRecord struct {
	SessionID              string             `json:"session_id"`
	SessionCreationLatency int64              `json:"session_creation_latency"`
	Interactions           []InteractionEvent `json:"interactions"`
	TotalInteractions      int64              `json:"total_interactions"`
	AverageResponseTime    float64            `json:"average_response_time"`
}

// Clone 返回记录的深拷贝快照，交互列表独立于原记录
func (r *SessionRecord) Clone() *SessionRecord {
	snapshot := *r
	snapshot.Interactions = append([]InteractionEvent(nil), r.Interactions...)
	return &snapshot
}
