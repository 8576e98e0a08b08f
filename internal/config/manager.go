package config

import (
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeHandler 配置变更回调
type ChangeHandler func(*Config)

// Manager 配置管理器：持有当前配置并支持文件热更新
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	handlers []ChangeHandler
}

// NewManager 加载配置并创建管理器
func NewManager() (*Manager, error) {
	config, v, err := Load()
	if err != nil {
		return nil, err
	}

	return &Manager{
		config: config,
		viper:  v,
	}, nil
}

// Current 返回当前配置
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnChange 注册配置变更回调
func (m *Manager) OnChange(handler ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Watch 启用配置文件监控，文件变更时重新解析并通知回调
func (m *Manager) Watch() {
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("🔄 配置文件变更: %s", e.Name)

		var updated Config
		if err := m.viper.Unmarshal(&updated); err != nil {
			log.Printf("配置热更新解析失败，保留旧配置: %v", err)
			return
		}

		m.mu.Lock()
		m.config = &updated
		handlers := append([]ChangeHandler(nil), m.handlers...)
		m.mu.Unlock()

		for _, handler := range handlers {
			handler(&updated)
		}
	})
	m.viper.WatchConfig()
}
