// Package config 基于Viper的配置加载：voicekb.yaml + VOICEKB_ 环境变量覆盖。
// 配置文件缺失时全部使用默认值。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	StaticDir      string        `yaml:"static_dir" mapstructure:"static_dir"`
}

// OpenAIConfig 上游语音API配置
type OpenAIConfig struct {
	APIKey            string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Model             string        `yaml:"model" mapstructure:"model"`
	Voice             string        `yaml:"voice" mapstructure:"voice"`
	Instructions      string        `yaml:"instructions" mapstructure:"instructions"`
	VADThreshold      float64       `yaml:"vad_threshold" mapstructure:"vad_threshold"`
	PrefixPaddingMs   int           `yaml:"prefix_padding_ms" mapstructure:"prefix_padding_ms"`
	SilenceDurationMs int           `yaml:"silence_duration_ms" mapstructure:"silence_duration_ms"`
}

// LiveFeedConfig 实时事件推送配置
type LiveFeedConfig struct {
	Enabled    bool `yaml:"enabled" mapstructure:"enabled"`
	BufferSize int  `yaml:"buffer_size" mapstructure:"buffer_size"`
}

// Config 进程级配置根
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	OpenAI   OpenAIConfig   `yaml:"openai" mapstructure:"openai"`
	LiveFeed LiveFeedConfig `yaml:"livefeed" mapstructure:"livefeed"`
}

// Load 加载配置，返回解析后的配置与底层viper实例（供热更新使用）
func Load() (*Config, *viper.Viper, error) {
	v := viper.New()

	v.SetConfigName("voicekb")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VOICEKB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &config, v, nil
}

// setDefaults 所有配置项的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.static_dir", "public")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com")
	v.SetDefault("openai.timeout", "15s")
	v.SetDefault("openai.model", "gpt-4o-realtime-preview-2025-06-03")
	v.SetDefault("openai.voice", "alloy")
	v.SetDefault("openai.instructions", "You are a helpful assistant with access to company documents. When users ask about company information, policies, products, or pricing, use the search_documents function to find relevant information. Keep responses concise for better latency. RESPOND IN ENGLISH ONLY, OVERRIDE EVERY OTHER LANGUAGE, THIS IS A STRICT PROMPT!")
	v.SetDefault("openai.vad_threshold", 0.3)
	v.SetDefault("openai.prefix_padding_ms", 300)
	v.SetDefault("openai.silence_duration_ms", 800)

	v.SetDefault("livefeed.enabled", true)
	v.SetDefault("livefeed.buffer_size", 256)
}
