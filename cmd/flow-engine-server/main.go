package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/LENAX/flow-engine/internal/storage"
	"github.com/LENAX/flow-engine/pkg/api"
	"github.com/LENAX/flow-engine/pkg/config"
	"github.com/LENAX/flow-engine/pkg/core/engine"
	"github.com/LENAX/flow-engine/pkg/core/executor"
	"github.com/LENAX/flow-engine/pkg/events"
	"github.com/LENAX/flow-engine/pkg/queue"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "./configs/engine.yaml", "引擎配置文件路径")
	host := flag.String("host", "0.0.0.0", "监听地址")
	flag.Parse()

	log.Printf("Flow Engine Server v%s", Version)
	log.Printf("配置文件: %s", *configPath)

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 2. 装配存储
	repo, err := storage.NewRepositoryFromConfig(cfg)
	if err != nil {
		log.Fatalf("初始化存储失败: %v", err)
	}
	defer repo.Close()

	// 3. 装配队列与事件总线
	q := queue.NewWatermillQueue(nil)
	defer q.Close()
	bus := events.NewBus(nil)
	defer bus.Close()

	// 4. 注册Step操作并创建引擎
	registry := executor.NewOperationRegistry()
	if err := executor.RegisterBuiltins(registry); err != nil {
		log.Fatalf("注册内置Step操作失败: %v", err)
	}
	stepExecutor := executor.NewStepExecutor(registry, cfg.FlowEngine.Execution.DefaultStepTimeout)
	eng := engine.NewEngine(repo, q, bus, stepExecutor, cfg.FlowEngine.Execution.MaxRetries)

	// 5. 启动队列worker
	worker, err := queue.NewWorker(q, eng, queue.WorkerConfig{
		WorkflowConcurrency: cfg.FlowEngine.Queue.WorkflowConcurrency,
		StepConcurrency:     cfg.FlowEngine.Queue.StepConcurrency,
		RetryConcurrency:    cfg.FlowEngine.Queue.RetryConcurrency,
	}, nil)
	if err != nil {
		log.Fatalf("创建队列worker失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := worker.Run(ctx); err != nil {
			log.Printf("队列worker错误: %v", err)
		}
	}()
	<-worker.Running()

	// 6. 重启恢复：worker就绪后重新投递未完成的Execution
	if err := eng.Restore(ctx); err != nil {
		log.Printf("⚠️ 重启恢复失败: %v", err)
	}

	// 7. 启动API服务器
	serverConfig := api.ServerConfig{
		Host:         *host,
		Port:         cfg.GetHTTPPort(),
		ReadTimeout:  api.DefaultServerConfig().ReadTimeout,
		WriteTimeout: api.DefaultServerConfig().WriteTimeout,
	}
	apiServer := api.NewServer(eng, repo, q, bus, serverConfig, Version)

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("API服务器错误: %v", err)
		}
	}()

	log.Printf("✅ Flow Engine Server started on %s:%d", *host, cfg.GetHTTPPort())

	// 8. 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 9. 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), api.DefaultServerConfig().WriteTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("关闭API服务器失败: %v", err)
	}
	cancel()
	if err := worker.Close(); err != nil {
		log.Printf("关闭队列worker失败: %v", err)
	}
	log.Println("✅ 服务已停止")
}
