package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RealtimeVoiceKB/internal/config"
	"RealtimeVoiceKB/internal/httpserver"
	"RealtimeVoiceKB/internal/kb"
	"RealtimeVoiceKB/internal/latency"
	"RealtimeVoiceKB/internal/livefeed"
	"RealtimeVoiceKB/internal/loadtest"
	"RealtimeVoiceKB/internal/logger"
	"RealtimeVoiceKB/internal/provisioner"
)

func main() {
	var (
		mode         = flag.String("mode", "demo", "运行模式: demo, server, bench")
		url          = flag.String("url", "http://localhost:3000", "基准测试目标地址")
		sessions     = flag.Int("sessions", 10, "基准测试并发会话数")
		interactions = flag.Int("interactions", 20, "基准测试每会话交互次数")
	)
	flag.Parse()

	switch *mode {
	case "demo":
		runDemo()
	case "server":
		runServer()
	case "bench":
		runBench(*url, *sessions, *interactions)
	default:
		fmt.Printf("未知模式: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runDemo 运行演示模式
func runDemo() {
	fmt.Println("🚀 RealtimeVoiceKB - 实时语音会话代理+延迟遥测")
	fmt.Println("=================================================")
	fmt.Println()

	fmt.Println("📋 项目特性:")
	fmt.Println("  ✅ 临时语音会话开通（密钥不落地浏览器之外）")
	fmt.Println("  ✅ 文档检索函数调用中继")
	fmt.Println("  ✅ 逐会话延迟遥测（语音时长/处理延迟/首音频）")
	fmt.Println("  ✅ WebSocket实时事件推送")
	fmt.Println("  ✅ 配置热更新 + 优雅关闭")
	fmt.Println("  ✅ 完整测试套件(单元/端到端/基准)")
	fmt.Println()

	fmt.Println("🔧 快速开始:")
	fmt.Println("  # 启动服务器")
	fmt.Println("  VOICEKB_OPENAI_API_KEY=sk-... go run main.go -mode=server")
	fmt.Println()
	fmt.Println("  # 运行负载基准")
	fmt.Println("  go run main.go -mode=bench -sessions=10 -interactions=20")
	fmt.Println()
	fmt.Println("  # 运行所有测试")
	fmt.Println("  go test ./...")
	fmt.Println()

	fmt.Printf("📚 内置知识库: %d 篇文档\n", kb.Size())
}

// runServer 运行语音会话代理服务器
func runServer() {
	logger.InitLogger()

	manager, err := config.NewManager()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	cfg := manager.Current()

	if cfg.OpenAI.APIKey == "" {
		log.Printf("⚠️  未配置 VOICEKB_OPENAI_API_KEY，会话开通将被上游拒绝")
	}

	manager.OnChange(func(updated *config.Config) {
		log.Printf("🔄 配置已热更新（服务器地址与已建连接不受影响）")
	})
	manager.Watch()

	store := latency.NewStore()

	var feed *livefeed.Feed
	if cfg.LiveFeed.Enabled {
		feed = livefeed.NewFeed(cfg.LiveFeed.BufferSize)
		go feed.Run()
	}

	prov := provisioner.New(provisioner.Config{
		APIKey:            cfg.OpenAI.APIKey,
		BaseURL:           cfg.OpenAI.BaseURL,
		Timeout:           cfg.OpenAI.Timeout,
		Model:             cfg.OpenAI.Model,
		Voice:             cfg.OpenAI.Voice,
		Instructions:      cfg.OpenAI.Instructions,
		VADThreshold:      cfg.OpenAI.VADThreshold,
		PrefixPaddingMs:   cfg.OpenAI.PrefixPaddingMs,
		SilenceDurationMs: cfg.OpenAI.SilenceDurationMs,
	})

	server := httpserver.NewAPIServer(cfg.Server, prov, store, feed)

	go func() {
		if err := server.Start(); err != nil {
			log.Printf("服务器停止: %v", err)
		}
	}()

	// 优雅关闭
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c
	fmt.Println("\n🔄 正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("服务器关闭错误: %v", err)
	}
	if feed != nil {
		feed.Stop()
	}

	fmt.Println("✅ 服务器已关闭")
}

// runBench 对运行中的服务器执行负载基准
func runBench(url string, sessions, interactions int) {
	logger.InitLogger()

	benchConfig := loadtest.DefaultBenchConfig(url)
	benchConfig.Sessions = sessions
	benchConfig.Interactions = interactions

	bench := loadtest.NewBench(benchConfig)

	// Ctrl+C 时中止
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		bench.Stop()
	}()

	result, err := bench.Run()
	if err != nil {
		log.Fatalf("基准测试失败: %v", err)
	}
	result.PrintSummary()
}
