package latency

import "errors"

var (
	// ErrSessionExists 会话ID已存在，拒绝覆盖
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound 会话ID不存在
	ErrSessionNotFound = errors.New("session not found")
)
