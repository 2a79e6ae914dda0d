package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tileview/internal/cache"
	"tileview/internal/config"
	"tileview/internal/device"
	httphandlers "tileview/internal/http"
	"tileview/internal/logger"
	"tileview/internal/pyramid_list"
	"tileview/internal/tile_renderer"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting Tileview server",
		zap.Int("port", cfg.Port),
		zap.String("data_dir", cfg.DataDir),
		zap.Int64("resident_limit_mb", cfg.ResidentLimitMB),
	)

	scanner := pyramid_list.New(cfg.DataDir, cfg.DecodeCacheTiles, log)
	if err := scanner.Scan(); err != nil {
		log.Warn("Initial scan failed", zap.Error(err))
	}
	defer scanner.Close()

	log.Info("Pyramids discovered", zap.Int("count", len(scanner.GetPyramids())))

	tileCache := cache.New(device.NewSoftwareAllocator(), cfg.ResidentLimitBytes(), log)
	defer tileCache.Close()

	renderer := tile_renderer.New(scanner, tileCache, log)

	handlers := httphandlers.New(cfg, log, scanner, renderer)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/pyramids", handlers.HandlePyramids)
	mux.HandleFunc("/api/pyramids/", handlers.HandlePyramidRoutes)
	mux.HandleFunc("/healthz", handlers.HandleHealthz)

	handler := handlers.CORSMiddleware(handlers.RequestLoggingMiddleware(mux))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}
