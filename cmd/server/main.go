package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-converter/api/handlers"
	"github.com/feichai0017/document-converter/api/routes"
	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/internal/service/document"
	"github.com/feichai0017/document-converter/pkg/logger"
)

func main() {
	cfg := config.GetServerConfig()

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(cfg.Log.OutputPaths),
		logger.WithErrorPaths(cfg.Log.ErrorPaths),
		logger.WithDevelopment(cfg.Log.Development),
		logger.WithInitialFields(map[string]interface{}{"service": "document-converter"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// init document service
	docService, err := document.GetService(ctx, log)
	if err != nil {
		log.Error("Failed to create document service", logger.Error(err))
		os.Exit(1)
	}
	defer docService.Close()

	// init handlers
	h := handlers.NewHandlers(docService, log.Named("api"), cfg.MaxFileSize)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = cfg.MaxFileSize
	routes.SetupRoutes(r, h, cfg.APIKey, log.Named("http"))

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}

	// start server
	go func() {
		log.Info("Server starting",
			logger.String("addr", srv.Addr),
			logger.Bool("auth", cfg.AuthEnabled()),
			logger.Bool("async", docService.AsyncEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
