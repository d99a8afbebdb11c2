package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"kawah-task/internal/config"
	"kawah-task/internal/fakeapi"
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

	api := fakeapi.New(
		fakeapi.WithLogger(log),
		fakeapi.WithLegacyFields(cfg.MockLegacyFields),
	)
	srv := &http.Server{Addr: cfg.MockAddr, Handler: api, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithFields(logrus.Fields{
		"addr":   cfg.MockAddr,
		"prefix": fakeapi.Prefix,
		"legacy": cfg.MockLegacyFields,
	}).Info("mock task api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("serve: %v", err)
	}
	log.Info("shutdown complete")
}
