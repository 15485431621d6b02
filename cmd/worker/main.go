package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/internal/service/document"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/worker"
)

func main() {
	serverCfg := config.GetServerConfig()
	outputs := serverCfg.Log.OutputPaths
	if len(outputs) > 0 && outputs[len(outputs)-1] == "logs/app.log" {
		outputs = append(append([]string(nil), outputs[:len(outputs)-1]...), "logs/worker.log")
	}

	// 初始化日志
	log, err := logger.NewLogger(
		logger.WithLevel(serverCfg.Log.Level),
		logger.WithEncoding(serverCfg.Log.Encoding),
		logger.WithOutputPaths(outputs),
		logger.WithErrorPaths(serverCfg.Log.ErrorPaths),
		logger.WithDevelopment(serverCfg.Log.Development),
		logger.WithInitialFields(map[string]interface{}{"service": "document-worker"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 创建文档服务
	docService, err := document.GetService(ctx, log)
	if err != nil {
		log.Error("Failed to create document service", logger.Error(err))
		os.Exit(1)
	}
	defer docService.Close()

	if !docService.AsyncEnabled() {
		log.Error("Worker requires STORAGE_TYPE to be set", logger.Error(document.ErrAsyncDisabled))
		os.Exit(1)
	}

	documentWorker, err := worker.NewDocumentWorker(
		worker.ConfigFromRedis(config.GetRedisConfig()),
		docService,
		log.Named("worker"),
	)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		os.Exit(1)
	}

	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	// 等待中断信号
	<-ctx.Done()

	// 优雅关闭
	log.Info("Shutting down worker...")
	documentWorker.Stop()
	log.Info("Worker stopped")
}
