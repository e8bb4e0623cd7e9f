package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/ImageHub/internal/api"
	"github.com/LJTian/ImageHub/internal/collector"
	"github.com/LJTian/ImageHub/internal/config"
	"github.com/LJTian/ImageHub/internal/gallery"
	"github.com/LJTian/ImageHub/internal/scheduler"
	"github.com/LJTian/ImageHub/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	// 单次预热的超时：每条链接一次页面抓取，数据源较多时需要留足时间
	warmupTimeout   = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	_ = godotenv.Load()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.Load()

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("init store failed: %w", err)
	}
	defer store.Close()

	fetcher := collector.NewHTTPFetcher(cfg.HTTPTimeout)
	svc := gallery.NewService(cfg.Sources, fetcher, collector.NewImageExtractor(fetcher), store.Cache())
	svc.TTL = cfg.CacheTTL
	svc.Concurrency = cfg.FetchConcurrency
	svc.Snapshots = store

	// 定时重建图片列表缓存，用户请求基本都能命中
	if cfg.CronSpec != "" {
		s, err := scheduler.New(cfg.CronSpec, svc, warmupTimeout)
		if err != nil {
			return fmt.Errorf("init scheduler failed: %w", err)
		}
		s.Start()
		defer s.Stop()
	}

	r := gin.Default()
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, "/health", "/metrics"))
	}

	apiServer := api.NewServer(svc, store, store)
	apiServer.RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting api server at %s ...", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server exit: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("shutting down api server ...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
