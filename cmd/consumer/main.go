package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iliyamo/kart-rental/internal/config"
	"github.com/iliyamo/kart-rental/internal/logging"
	"github.com/iliyamo/kart-rental/internal/queue"
)

func main() {
	cfg, err := config.LoadConsumer()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &queue.Consumer{
		URL:      cfg.AMQP.URL,
		Exchange: cfg.AMQP.Exchange,
		Queue:    cfg.AMQP.Queue,
		LogPath:  cfg.AMQP.LogPath,
		Log:      log,
	}
	log.Info("booking audit consumer started",
		zap.String("exchange", c.Exchange),
		zap.String("queue", c.Queue),
		zap.String("log_path", c.LogPath))
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("consumer stopped", zap.Error(err))
	}
	log.Info("consumer exiting")
}
