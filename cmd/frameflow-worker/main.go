// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/frameflow-dev/frameflow/internal/config"
	"github.com/frameflow-dev/frameflow/internal/logging"
	"github.com/frameflow-dev/frameflow/internal/queue"
	"github.com/frameflow-dev/frameflow/internal/worker"
)

func main() {
	configPath := flag.String("config", "/etc/frameflow/worker.yaml", "path to worker config file")
	queueName := flag.String("queue", "", "work queue name override")
	concurrency := flag.Int("concurrency", 0, "concurrent frame slots override")
	flag.Parse()

	cfg, err := config.LoadWorkerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Flags têm precedência sobre o YAML
	if *queueName != "" {
		cfg.Queue.Name = *queueName
	}
	if *concurrency != 0 {
		cfg.Concurrency = *concurrency
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		logger.Error("creating data directory", "error", err)
		os.Exit(1)
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("parsing redis url", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	consumer := queue.NewConsumer(rdb, cfg.Queue.Name)
	w := worker.New(consumer, cfg.Storage.DataDir, cfg.Concurrency, cfg.Retry.Attempts, cfg.Retry.DelayRaw, logger)

	if err := w.Run(ctx); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}
}
