package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"kawah-task/internal/apiclient"
	"kawah-task/internal/bot"
	"kawah-task/internal/config"
	"kawah-task/internal/repository"
	"kawah-task/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log, err := config.NewLogger(cfg)
	if err != nil {
		logrus.Fatalf("logger: %v", err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	var store repository.CredentialStore
	switch cfg.StoreDriver {
	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		store = repository.NewRedisCredentialRepository(rdb, "")
	default:
		store = repository.NewCredentialRepository(db)
	}
	log.WithField("driver", cfg.StoreDriver).Info("credential store ready")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := apiclient.NewMetrics(reg)
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			log.WithField("addr", cfg.MetricsAddr).Info("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server")
			}
		}()
		defer srv.Close()
	}

	telegramBot, err := bot.New(cfg.TelegramToken, bot.Deps{
		Store:   store,
		Chats:   repository.NewChatRepository(db),
		Digest:  service.NewDigestService(),
		Metrics: metrics,
		Log:     log,
		API: apiclient.Config{
			BaseURL:         cfg.APIURL,
			WithCredentials: cfg.WithCredentials,
			Timeout:         cfg.APITimeout,
			RateLimit:       cfg.RateLimit,
			RateBurst:       cfg.RateBurst,
		},
	})
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	scheduler := service.NewSchedulerService(time.Local, log)
	if cfg.DigestAt != "" {
		_, err = scheduler.ScheduleDaily(cfg.DigestAt, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := telegramBot.SendDigests(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("digest")
			}
		})
	} else {
		_, err = scheduler.ScheduleInterval("digest", cfg.DigestInterval, 2*time.Minute, telegramBot.SendDigests)
	}
	if err != nil {
		log.Fatalf("schedule digest: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.WithField("api", cfg.APIURL).Info("kawah task bot started")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Info("shutdown complete")
}
