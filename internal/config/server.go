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

// DefaultRedisURL é usado quando nem o YAML nem REDIS_URL definem o broker.
const DefaultRedisURL = "redis://redis:6379/0"

// ServerConfig representa a configuração completa do frameflow-server.
// Todos os campos têm default; um arquivo ausente no path padrão equivale
// a uma configuração vazia (operação só com flags).
type ServerConfig struct {
	Listen      ListenInfo    `yaml:"listen"`
	Redis       RedisInfo     `yaml:"redis"`
	Storage     StorageInfo   `yaml:"storage"`
	Video       VideoInfo     `yaml:"video"`
	Timeouts    TimeoutInfo   `yaml:"timeouts"`
	Collector   CollectorInfo `yaml:"collector"`
	Queue       QueueInfo     `yaml:"queue"`
	Archive     ArchiveInfo   `yaml:"archive"`
	Journal     JournalInfo   `yaml:"journal"`
	SessionLogs SessionLogs   `yaml:"session_logs"`
	Logging     LoggingInfo   `yaml:"logging"`
}

// ListenInfo define os endereços de escuta do protocolo e do preview HTTP.
type ListenInfo struct {
	Bind        string `yaml:"bind"`
	Port        int    `yaml:"port"`
	PreviewPort int    `yaml:"preview_port"`
}

// RedisInfo aponta o broker e state store. REDIS_URL tem precedência.
type RedisInfo struct {
	URL string `yaml:"url"`
}

// StorageInfo define o layout em disco e a retenção para o janitor.
type StorageInfo struct {
	DataDir       string        `yaml:"data_dir"`
	Retention     string        `yaml:"retention"` // ex: "24h"
	RetentionRaw  time.Duration `yaml:"-"`
	SweepSchedule string        `yaml:"sweep_schedule"` // cron expression
}

// VideoInfo configura o codec default e os binários externos.
type VideoInfo struct {
	Codec   string `yaml:"codec"`
	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
}

// TimeoutInfo agrupa os prazos da sessão. Valores em formato Duration
// ("30s", "5m"); os campos *Raw carregam o valor parseado.
type TimeoutInfo struct {
	Handshake       string        `yaml:"handshake"`
	HandshakeRaw    time.Duration `yaml:"-"`
	FrameCollect    string        `yaml:"frame_collect"`
	FrameCollectRaw time.Duration `yaml:"-"`
	ReceiveIdle     string        `yaml:"receive_idle"`
	ReceiveIdleRaw  time.Duration `yaml:"-"`
	Drain           string        `yaml:"drain"`
	DrainRaw        time.Duration `yaml:"-"`
}

// CollectorInfo controla o fan-out de coleta de artifacts.
type CollectorInfo struct {
	Concurrency     int           `yaml:"concurrency"`
	PollInterval    string        `yaml:"poll_interval"`
	PollIntervalRaw time.Duration `yaml:"-"`
	BatchSize       int           `yaml:"batch_size"`
}

// QueueInfo nomeia a fila de trabalho no broker.
type QueueInfo struct {
	Name string `yaml:"name"`
}

// ArchiveInfo configura o upload opcional de sessões concluídas para
// storage S3-compatível.
type ArchiveInfo struct {
	Enabled  bool   `yaml:"enabled"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"` // vazio = AWS; URL para MinIO e afins
	Region   string `yaml:"region"`
}

// JournalInfo configura o registro de eventos de sessão.
type JournalInfo struct {
	Path     string `yaml:"path"` // default {data_dir}/journal/events.jsonl
	RingCap  int    `yaml:"ring"`
	MaxLines int    `yaml:"max_lines"`
}

// SessionLogs configura a captura de log por sessão (vazio desabilita).
type SessionLogs struct {
	Dir string `yaml:"dir"`
}

// LoggingInfo contém as configurações de logging do processo.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// LoadServerConfig lê e valida o YAML de configuração do server.
// Arquivo inexistente não é erro: retorna a configuração default, já que
// o server opera apenas com flags. REDIS_URL no ambiente tem precedência
// sobre o YAML.
func LoadServerConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing server config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// segue com defaults
	default:
		return nil, fmt.Errorf("reading server config: %w", err)
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating server config: %w", err)
	}

	return &cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.Listen.Bind == "" {
		c.Listen.Bind = "::"
	}
	if c.Listen.Port == 0 {
		c.Listen.Port = 9090
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if c.Listen.PreviewPort == 0 {
		c.Listen.PreviewPort = 8080
	}
	if c.Listen.PreviewPort < 0 || c.Listen.PreviewPort > 65535 {
		return fmt.Errorf("listen.preview_port %d out of range", c.Listen.PreviewPort)
	}

	if c.Redis.URL == "" {
		c.Redis.URL = DefaultRedisURL
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.Retention == "" {
		c.Storage.Retention = "24h"
	}
	retention, err := time.ParseDuration(c.Storage.Retention)
	if err != nil {
		return fmt.Errorf("parsing storage.retention: %w", err)
	}
	c.Storage.RetentionRaw = retention
	if c.Storage.SweepSchedule == "" {
		c.Storage.SweepSchedule = "0 * * * *" // hora em hora
	}

	if c.Video.Codec == "" {
		c.Video.Codec = "mp4v"
	}
	if c.Video.FFmpeg == "" {
		c.Video.FFmpeg = "ffmpeg"
	}
	if c.Video.FFprobe == "" {
		c.Video.FFprobe = "ffprobe"
	}

	if err := c.Timeouts.validate(); err != nil {
		return err
	}

	if c.Collector.Concurrency == 0 {
		c.Collector.Concurrency = 8
	}
	if c.Collector.Concurrency < 1 {
		return fmt.Errorf("collector.concurrency must be positive")
	}
	if c.Collector.PollInterval == "" {
		c.Collector.PollInterval = "100ms"
	}
	poll, err := time.ParseDuration(c.Collector.PollInterval)
	if err != nil {
		return fmt.Errorf("parsing collector.poll_interval: %w", err)
	}
	c.Collector.PollIntervalRaw = poll
	if c.Collector.BatchSize == 0 {
		c.Collector.BatchSize = 50
	}
	if c.Collector.BatchSize < 1 {
		return fmt.Errorf("collector.batch_size must be positive")
	}

	if c.Queue.Name == "" {
		c.Queue.Name = "frames"
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive.enabled")
	}
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "frameflow"
	}
	if c.Archive.Region == "" {
		c.Archive.Region = "us-east-1"
	}

	if c.Journal.RingCap == 0 {
		c.Journal.RingCap = 256
	}
	if c.Journal.MaxLines == 0 {
		c.Journal.MaxLines = 10000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

func (t *TimeoutInfo) validate() error {
	parse := func(field, value, def string, dst *time.Duration) error {
		if value == "" {
			value = def
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("parsing timeouts.%s: %w", field, err)
		}
		if d <= 0 {
			return fmt.Errorf("timeouts.%s must be positive", field)
		}
		*dst = d
		return nil
	}

	if err := parse("handshake", t.Handshake, "30s", &t.HandshakeRaw); err != nil {
		return err
	}
	if err := parse("frame_collect", t.FrameCollect, "300s", &t.FrameCollectRaw); err != nil {
		return err
	}
	if err := parse("receive_idle", t.ReceiveIdle, "90s", &t.ReceiveIdleRaw); err != nil {
		return err
	}
	if err := parse("drain", t.Drain, "30s", &t.DrainRaw); err != nil {
		return err
	}
	return nil
}
