// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

// Package state publica e lê o estado observável de sessões no Redis.
// Keys: session:{id}:{campo}, TTL de uma hora renovado a cada escrita.
// Escritor único por sessão (o orchestrator); leitores não coordenam.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyTTL é o tempo de vida de cada key de sessão, renovado a cada update.
const KeyTTL = time.Hour

// writeTimeout limita cada operação no Redis para que uma indisponibilidade
// do state store nunca prenda o caminho de dados do orchestrator.
const writeTimeout = 2 * time.Second

// Statuses de ciclo de vida publicados em session:{id}:status.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Publisher grava o estado de uma sessão no Redis. Falhas de storage são
// engolidas e logadas em Warn: o state store nunca afeta o caminho de dados.
type Publisher struct {
	client *redis.Client
	logger *slog.Logger
}

// NewPublisher cria um Publisher sobre um client Redis já configurado.
func NewPublisher(client *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger.With("component", "state"),
	}
}

// set grava um campo com TTL renovado. Nunca retorna erro ao caller.
func (p *Publisher) set(sessionID, field string, value any) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	key := Key(sessionID, field)
	if err := p.client.Set(ctx, key, fmt.Sprint(value), KeyTTL).Err(); err != nil {
		p.logger.Warn("state publish failed", "key", key, "error", err)
	}
}

// PublishAccepted grava os campos iniciais da sessão logo após o handshake.
func (p *Publisher) PublishAccepted(sessionID, processingType, videoName string) {
	p.set(sessionID, "status", StatusProcessing)
	p.set(sessionID, "processing_type", processingType)
	p.set(sessionID, "video_name", videoName)
	p.set(sessionID, "start_time", fmt.Sprintf("%.3f", float64(time.Now().UnixMilli())/1000))
}

// PublishVideoProps grava as propriedades derivadas do vídeo decodificado.
func (p *Publisher) PublishVideoProps(sessionID string, totalFrames int, fps float64, width, height int) {
	p.set(sessionID, "total_frames", totalFrames)
	p.set(sessionID, "fps", fmt.Sprintf("%.2f", fps))
	p.set(sessionID, "resolution", fmt.Sprintf("%dx%d", width, height))
}

// PublishProgress grava os campos reescritos a cada tick de progresso.
func (p *Publisher) PublishProgress(sessionID string, framesProcessed int, currentFPS, etaSeconds float64) {
	p.set(sessionID, "frames_processed", framesProcessed)
	p.set(sessionID, "current_fps", fmt.Sprintf("%.2f", currentFPS))
	p.set(sessionID, "eta_seconds", fmt.Sprintf("%.1f", etaSeconds))
}

// PublishCompleted marca a sessão como concluída com o tempo total.
func (p *Publisher) PublishCompleted(sessionID string, totalTime time.Duration) {
	p.set(sessionID, "status", StatusCompleted)
	p.set(sessionID, "end_time", fmt.Sprintf("%.3f", float64(time.Now().UnixMilli())/1000))
	p.set(sessionID, "total_time_seconds", fmt.Sprintf("%.1f", totalTime.Seconds()))
}

// PublishFailed marca a sessão como falha.
func (p *Publisher) PublishFailed(sessionID string) {
	p.set(sessionID, "status", StatusFailed)
	p.set(sessionID, "end_time", fmt.Sprintf("%.3f", float64(time.Now().UnixMilli())/1000))
}

// Key monta a key Redis de um campo de sessão.
func Key(sessionID, field string) string {
	return fmt.Sprintf("session:%s:%s", sessionID, field)
}
