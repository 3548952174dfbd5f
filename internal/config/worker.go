// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WorkerConfig representa a configuração do frameflow-worker.
type WorkerConfig struct {
	Redis       RedisInfo   `yaml:"redis"`
	Queue       QueueInfo   `yaml:"queue"`
	Storage     StorageInfo `yaml:"storage"`
	Concurrency int         `yaml:"concurrency"`
	Retry       RetryInfo   `yaml:"retry"`
	Logging     LoggingInfo `yaml:"logging"`
}

// RetryInfo controla as tentativas de processamento por frame.
type RetryInfo struct {
	Attempts int           `yaml:"attempts"`
	Delay    string        `yaml:"delay"`
	DelayRaw time.Duration `yaml:"-"`
}

// LoadWorkerConfig lê e valida o YAML de configuração do worker.
// Arquivo inexistente não é erro; REDIS_URL no ambiente tem precedência.
func LoadWorkerConfig(path string) (*WorkerConfig, error) {
	var cfg WorkerConfig

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing worker config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// segue com defaults
	default:
		return nil, fmt.Errorf("reading worker config: %w", err)
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating worker config: %w", err)
	}

	return &cfg, nil
}

func (c *WorkerConfig) validate() error {
	if c.Redis.URL == "" {
		c.Redis.URL = DefaultRedisURL
	}
	if c.Queue.Name == "" {
		c.Queue.Name = "frames"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}

	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive")
	}

	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be positive")
	}
	if c.Retry.Delay == "" {
		c.Retry.Delay = "5s"
	}
	delay, err := time.ParseDuration(c.Retry.Delay)
	if err != nil {
		return fmt.Errorf("parsing retry.delay: %w", err)
	}
	if delay < 0 {
		return fmt.Errorf("retry.delay must not be negative")
	}
	c.Retry.DelayRaw = delay

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}
