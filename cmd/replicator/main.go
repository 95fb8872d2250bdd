package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/filebackup/internal/app"
	"github.com/your-org/filebackup/internal/backup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(ctx)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	logr := a.Logger
	cfg := a.Config

	handler := backup.NewHTTPHandler(a.Dispatcher, logr, backup.HTTPOptions{
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		AuthToken:    cfg.HTTP.AuthToken,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	consumerDone := make(chan struct{})
	if consumer := a.NewConsumer(); consumer != nil {
		stream := backup.NewStreamHandler(a.Dispatcher, logr)
		go func() {
			defer close(consumerDone)
			logr.Info("bucket event consumer starting", zap.String("topic", cfg.Kafka.EventsTopic))
			if err := consumer.Run(ctx, stream.HandleMessage); err != nil {
				logr.Error("bucket event consumer stopped", zap.Error(err))
				stop()
			}
		}()
	} else {
		close(consumerDone)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("replicator starting", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Error("http server failed", zap.Error(err))
		stop()
	}

	<-consumerDone
	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logr.Error("shutdown failed", zap.Error(err))
	}
}
