package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookshop/internal/app"
)

// run читает конфигурацию из окружения и запускает сервис до отмены ctx.
func run(ctx context.Context, environ map[string]string) error {
	cfg, err := app.LoadConfig(environ)
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg)
	log.SetFormatter(logger.Formatter)
	log.SetLevel(logger.GetLevel())

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
	}).Info("starting book-shop order service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, nil); err != nil {
		log.WithError(err).Fatal("service stopped with error")
	}
	log.Info("book-shop order service stopped")
}
