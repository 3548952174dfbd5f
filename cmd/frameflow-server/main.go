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
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/frameflow-dev/frameflow/internal/archive"
	"github.com/frameflow-dev/frameflow/internal/config"
	"github.com/frameflow-dev/frameflow/internal/logging"
	"github.com/frameflow-dev/frameflow/internal/preview"
	"github.com/frameflow-dev/frameflow/internal/queue"
	"github.com/frameflow-dev/frameflow/internal/server"
	"github.com/frameflow-dev/frameflow/internal/state"
	"github.com/frameflow-dev/frameflow/internal/video"
)

func main() {
	configPath := flag.String("config", "/etc/frameflow/server.yaml", "path to server config file")
	bind := flag.String("bind", "", "listen address override (\"::\" for dual-stack)")
	port := flag.Int("port", 0, "protocol port override")
	previewPort := flag.Int("preview-port", 0, "preview HTTP port override")
	codec := flag.String("codec", "", "default output codec override (mp4v, avc1)")
	dataDir := flag.String("data-dir", "", "data directory override")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Flags têm precedência sobre o YAML
	if *bind != "" {
		cfg.Listen.Bind = *bind
	}
	if *port != 0 {
		cfg.Listen.Port = *port
	}
	if *previewPort != 0 {
		cfg.Listen.PreviewPort = *previewPort
	}
	if *codec != "" {
		cfg.Video.Codec = *codec
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
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

	journalPath := cfg.Journal.Path
	if journalPath == "" {
		journalPath = filepath.Join(cfg.Storage.DataDir, "journal", "events.jsonl")
	}
	journal, err := preview.NewJournal(journalPath, cfg.Journal.RingCap, cfg.Journal.MaxLines)
	if err != nil {
		logger.Error("opening session journal", "error", err)
		os.Exit(1)
	}
	defer journal.Close()

	engine := server.EngineAdapter{Engine: video.NewEngine(cfg.Video.FFmpeg, cfg.Video.FFprobe)}
	qpub := queue.NewPublisher(rdb, cfg.Queue.Name, logger)
	spub := state.NewPublisher(rdb, logger)

	handler := server.NewHandler(cfg, engine, qpub, spub, journal, logger)
	go handler.StartStatsReporter(ctx)

	previewSrv := preview.NewServer(state.NewReader(rdb), journal, cfg.Storage.DataDir, logger)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Listen.PreviewPort)
		if err := previewSrv.Run(ctx, addr); err != nil {
			logger.Error("preview server error", "error", err)
		}
	}()

	janitor, err := archive.NewJanitor(cfg.Storage.SweepSchedule, cfg.Storage.DataDir, cfg.Storage.RetentionRaw, logger)
	if err != nil {
		logger.Error("configuring janitor", "error", err)
		os.Exit(1)
	}
	janitor.Start()
	defer janitor.Stop(context.Background())

	if cfg.Archive.Enabled {
		uploader, err := archive.NewUploader(ctx, cfg.Archive, logger)
		if err != nil {
			logger.Error("configuring archive uploader", "error", err)
			os.Exit(1)
		}
		handler.SetArchiver(uploader)
	}

	if err := server.Run(ctx, handler, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
