package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"icepos/backend/internal/cache"
	"icepos/backend/internal/config"
	"icepos/backend/internal/httpapi"
	"icepos/backend/internal/service"
	"icepos/backend/internal/store"
	"icepos/backend/internal/store/memory"
	pgstore "icepos/backend/internal/store/postgres"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration error")
	}
	if err := validateSecurityConfig(cfg); err != nil {
		log.WithError(err).Fatal("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	statusCache := cache.StatusCache(cache.NoopStatusCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisStatusCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unavailable, using noop cache")
		} else {
			statusCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis")
		}
	} else {
		log.Info("cache: noop")
	}

	svc := service.New(repo, statusCache, cfg.LiveStatusTTL, log)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, cfg.ReportTimeout, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Address()).Info("POS backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.WithError(err).Warn("close error")
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
