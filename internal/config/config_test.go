// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	cfg, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}

	if cfg.Listen.Bind != "::" {
		t.Errorf("bind: got %q, want \"::\"", cfg.Listen.Bind)
	}
	if cfg.Listen.Port != 9090 {
		t.Errorf("port: got %d, want 9090", cfg.Listen.Port)
	}
	if cfg.Listen.PreviewPort != 8080 {
		t.Errorf("preview port: got %d, want 8080", cfg.Listen.PreviewPort)
	}
	if cfg.Redis.URL != DefaultRedisURL {
		t.Errorf("redis url: got %q", cfg.Redis.URL)
	}
	if cfg.Video.Codec != "mp4v" {
		t.Errorf("codec: got %q, want mp4v", cfg.Video.Codec)
	}
	if cfg.Timeouts.HandshakeRaw != 30*time.Second {
		t.Errorf("handshake timeout: got %v", cfg.Timeouts.HandshakeRaw)
	}
	if cfg.Timeouts.FrameCollectRaw != 300*time.Second {
		t.Errorf("frame collect timeout: got %v", cfg.Timeouts.FrameCollectRaw)
	}
	if cfg.Collector.Concurrency != 8 {
		t.Errorf("collector concurrency: got %d", cfg.Collector.Concurrency)
	}
	if cfg.Collector.BatchSize != 50 {
		t.Errorf("collector batch size: got %d", cfg.Collector.BatchSize)
	}
	if cfg.Queue.Name != "frames" {
		t.Errorf("queue name: got %q", cfg.Queue.Name)
	}
	if cfg.Storage.RetentionRaw != 24*time.Hour {
		t.Errorf("retention: got %v", cfg.Storage.RetentionRaw)
	}
	if cfg.Storage.SweepSchedule != "0 * * * *" {
		t.Errorf("sweep schedule: got %q", cfg.Storage.SweepSchedule)
	}
}

func TestLoadServerConfig_FromYAML(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	path := writeConfig(t, `
listen:
  bind: "127.0.0.1"
  port: 9999
  preview_port: 8888
redis:
  url: "redis://broker:6379/1"
video:
  codec: avc1
  ffmpeg: /opt/ffmpeg/bin/ffmpeg
timeouts:
  handshake: 5s
  receive_idle: 2m
collector:
  concurrency: 4
  poll_interval: 250ms
  batch_size: 10
storage:
  data_dir: /var/lib/frameflow
  retention: 48h
`)

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}

	if cfg.Listen.Bind != "127.0.0.1" || cfg.Listen.Port != 9999 {
		t.Errorf("listen: got %s:%d", cfg.Listen.Bind, cfg.Listen.Port)
	}
	if cfg.Redis.URL != "redis://broker:6379/1" {
		t.Errorf("redis url: got %q", cfg.Redis.URL)
	}
	if cfg.Video.Codec != "avc1" {
		t.Errorf("codec: got %q", cfg.Video.Codec)
	}
	if cfg.Video.FFmpeg != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("ffmpeg: got %q", cfg.Video.FFmpeg)
	}
	if cfg.Timeouts.HandshakeRaw != 5*time.Second {
		t.Errorf("handshake timeout: got %v", cfg.Timeouts.HandshakeRaw)
	}
	if cfg.Timeouts.ReceiveIdleRaw != 2*time.Minute {
		t.Errorf("receive idle: got %v", cfg.Timeouts.ReceiveIdleRaw)
	}
	if cfg.Collector.PollIntervalRaw != 250*time.Millisecond {
		t.Errorf("poll interval: got %v", cfg.Collector.PollIntervalRaw)
	}
	if cfg.Storage.RetentionRaw != 48*time.Hour {
		t.Errorf("retention: got %v", cfg.Storage.RetentionRaw)
	}
}

func TestLoadServerConfig_RedisURLEnvPrecedence(t *testing.T) {
	path := writeConfig(t, "redis:\n  url: redis://from-yaml:6379/0\n")
	t.Setenv("REDIS_URL", "redis://from-env:6379/0")

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Redis.URL != "redis://from-env:6379/0" {
		t.Errorf("redis url: got %q, want env value", cfg.Redis.URL)
	}
}

func TestLoadServerConfig_InvalidValues(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"port out of range", "listen:\n  port: 70000\n", "out of range"},
		{"bad retention", "storage:\n  retention: soon\n", "retention"},
		{"bad timeout", "timeouts:\n  handshake: never\n", "handshake"},
		{"negative timeout", "timeouts:\n  handshake: -5s\n", "positive"},
		{"archive without bucket", "archive:\n  enabled: true\n", "bucket"},
		{"bad yaml", "listen: [\n", "parsing"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadServerConfig(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadWorkerConfig_Defaults(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	cfg, err := LoadWorkerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadWorkerConfig: %v", err)
	}

	if cfg.Redis.URL != DefaultRedisURL {
		t.Errorf("redis url: got %q", cfg.Redis.URL)
	}
	if cfg.Queue.Name != "frames" {
		t.Errorf("queue name: got %q", cfg.Queue.Name)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("concurrency: got %d, want 4", cfg.Concurrency)
	}
	if cfg.Retry.Attempts != 3 {
		t.Errorf("retry attempts: got %d, want 3", cfg.Retry.Attempts)
	}
	if cfg.Retry.DelayRaw != 5*time.Second {
		t.Errorf("retry delay: got %v, want 5s", cfg.Retry.DelayRaw)
	}
}

func TestLoadWorkerConfig_FromYAML(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	path := writeConfig(t, `
concurrency: 2
retry:
  attempts: 5
  delay: 1s
queue:
  name: frames-test
storage:
  data_dir: /tmp/frameflow
`)

	cfg, err := LoadWorkerConfig(path)
	if err != nil {
		t.Fatalf("LoadWorkerConfig: %v", err)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("concurrency: got %d", cfg.Concurrency)
	}
	if cfg.Retry.Attempts != 5 || cfg.Retry.DelayRaw != time.Second {
		t.Errorf("retry: got %d/%v", cfg.Retry.Attempts, cfg.Retry.DelayRaw)
	}
	if cfg.Queue.Name != "frames-test" {
		t.Errorf("queue name: got %q", cfg.Queue.Name)
	}
}

func TestLoadWorkerConfig_InvalidValues(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"negative concurrency", "concurrency: -1\n", "concurrency"},
		{"negative attempts", "retry:\n  attempts: -2\n", "attempts"},
		{"bad delay", "retry:\n  delay: soon\n", "delay"},
		{"negative delay", "retry:\n  delay: -1s\n", "delay"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadWorkerConfig(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected error")
			} else if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
