package latency

import (
	"fmt"
	"sync"
)

// sessionEntry 带独立锁的会话条目，保证同会话追加串行、跨会话追加并行
type sessionEntry struct {
	mu     sync.Mutex
	record SessionRecord
}

// Store 会话延迟存储，进程生命周期内只增不减。
// 不提供删除与过期：无界增长是既定行为，容量策略留给上层扩展。
type Store struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
}

// NewStore 创建空的延迟存储
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*sessionEntry),
	}
}

// Create 为新会话插入记录，会话ID已存在时返回ErrSessionExists
func (s *Store) Create(sessionID string, creationLatencyMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[sessionID]; ok {
		return fmt.Errorf("create session %q: %w", sessionID, ErrSessionExists)
	}

	s.entries[sessionID] = &sessionEntry{
		record: SessionRecord{
			SessionID:              sessionID,
			SessionCreationLatency: creationLatencyMs,
			Interactions:           []InteractionEvent{},
		},
	}
	return nil
}

// Get 返回会话记录的快照，不存在时返回ErrSessionNotFound
func (s *Store) Get(sessionID string) (*SessionRecord, error) {
	entry, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.record.Clone(), nil
}

// Has 会话是否存在
func (s *Store) Has(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[sessionID]
	return ok
}

// Count 当前会话数量
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// AppendTimingEvent 追加一条语音轮次事件并返回更新后的记录快照。
// 每次调用都使TotalInteractions加一（指标是否达标不影响计数）；
// 事件携带processing_latency时全量重算AverageResponseTime。
func (s *Store) AppendTimingEvent(sessionID string, event InteractionEvent) (*SessionRecord, error) {
	entry, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.record.Interactions = append(entry.record.Interactions, event)
	entry.record.TotalInteractions++

	if event.ProcessingLatency != nil {
		entry.record.AverageResponseTime = meanProcessingLatency(entry.record.Interactions)
	}

	return entry.record.Clone(), nil
}

// AppendFunctionCall 追加一条函数调用事件并返回更新后的记录快照。
// 函数调用只进交互列表，不计入TotalInteractions，也不参与响应均值。
func (s *Store) AppendFunctionCall(sessionID string, event InteractionEvent) (*SessionRecord, error) {
	entry, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.record.Interactions = append(entry.record.Interactions, event)
	return entry.record.Clone(), nil
}

// Stats 计算会话的汇总统计，不存在时返回ErrSessionNotFound
func (s *Store) Stats(sessionID string) (*SessionStats, error) {
	record, err := s.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return Summarize(record), nil
}

// lookup 查找会话条目
func (s *Store) lookup(sessionID string) (*sessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrSessionNotFound)
	}
	return entry, nil
}

// meanProcessingLatency 对携带processing_latency的事件全量求均值，
// 每次重算避免增量误差累积
func meanProcessingLatency(interactions []InteractionEvent) float64 {
	var sum int64
	var count int
	for _, event := range interactions {
		if event.ProcessingLatency != nil {
			sum += *event.ProcessingLatency
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}
