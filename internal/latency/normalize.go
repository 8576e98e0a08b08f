package latency

import (
	"time"
)

// TimingReport 一次交互的原始时间戳上报，全部字段可选（epoch毫秒）
type TimingReport struct {
	SpeechStartTime     *int64 `json:"speech_start_time,omitempty"`
	SpeechEndTime       *int64 `json:"speech_end_time,omitempty"`
	ResponseStartTime   *int64 `json:"response_start_time,omitempty"`
	ResponseEndTime     *int64 `json:"response_end_time,omitempty"`
	FirstAudioChunkTime *int64 `json:"first_audio_chunk_time,omitempty"`
}

// DerivedMetrics 由原始时间戳推导出的延迟指标。
// 未能推导的字段保持为nil，序列化时整体省略。
type DerivedMetrics struct {
	SpeechDuration    *int64    `json:"speech_duration,omitempty"`
	ProcessingLatency *int64    `json:"processing_latency,omitempty"`
	TimeToFirstAudio  *int64    `json:"time_to_first_audio,omitempty"`
	TotalResponseTime *int64    `json:"total_response_time,omitempty"`
	Timestamp         time.Time `json:"timestamp,omitzero"`
}

// Empty 是否未产生任何指标
func (m DerivedMetrics) Empty() bool {
	return m.SpeechDuration == nil && m.ProcessingLatency == nil &&
		m.TimeToFirstAudio == nil && m.TotalResponseTime == nil
}

// Normalize 将原始时间戳上报归一化为派生指标，纯函数。
//
// 门控规则：speech_start_time、speech_end_time、response_start_time
// 三者必须同时存在，否则不产生任何指标——包括 time_to_first_audio 和
// total_response_time，即使它们的公式并不使用 response_start_time。
// 时间戳乱序产生的负值原样透传，这里不是校验边界。
func Normalize(report TimingReport, now time.Time) DerivedMetrics {
	if report.SpeechStartTime == nil || report.SpeechEndTime == nil || report.ResponseStartTime == nil {
		return DerivedMetrics{}
	}

	speechDuration := *report.SpeechEndTime - *report.SpeechStartTime
	processingLatency := *report.ResponseStartTime - *report.SpeechEndTime

	metrics := DerivedMetrics{
		SpeechDuration:    &speechDuration,
		ProcessingLatency: &processingLatency,
		Timestamp:         now,
	}

	if report.FirstAudioChunkTime != nil {
		timeToFirstAudio := *report.FirstAudioChunkTime - *report.SpeechEndTime
		metrics.TimeToFirstAudio = &timeToFirstAudio
	}

	if report.ResponseEndTime != nil {
		totalResponseTime := *report.ResponseEndTime - *report.SpeechEndTime
		metrics.TotalResponseTime = &totalResponseTime
	}

	return metrics
}
