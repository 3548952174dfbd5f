// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

// Package queue transporta unidades de trabalho de frame pelo broker Redis.
// O orchestrator publica com LPUSH; cada worker consome com BRPOP, então
// cada unidade é entregue a exatamente um worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueue é o nome da lista de trabalho no broker.
const DefaultQueue = "frames"

// publishAttempts é o número de tentativas de publicação antes de desistir.
const publishAttempts = 3

// publishBackoff é a espera entre tentativas de publicação.
const publishBackoff = 200 * time.Millisecond

// ErrDispatchExhausted indica falha de publicação após todas as tentativas.
var ErrDispatchExhausted = errors.New("queue: dispatch retries exhausted")

// WorkUnit é uma unidade de trabalho de frame no broker. O PNG trafega
// em base64 pela serialização padrão de []byte em JSON.
type WorkUnit struct {
	SessionID  string         `json:"session_id"`
	FrameIndex int            `json:"frame_index"`
	PNG        []byte         `json:"png"`
	Processing string         `json:"processing"`
	Params     map[string]any `json:"params,omitempty"`
}

// Handle identifica uma unidade despachada. O dispatcher não espera
// conclusão; o resultado é observado pelo collector via filesystem.
type Handle struct {
	Index int
}

// Publisher publica unidades de trabalho no broker com retry limitado.
type Publisher struct {
	client *redis.Client
	queue  string
	logger *slog.Logger
}

// NewPublisher cria um Publisher para a fila nomeada.
func NewPublisher(client *redis.Client, queueName string, logger *slog.Logger) *Publisher {
	if queueName == "" {
		queueName = DefaultQueue
	}
	return &Publisher{
		client: client,
		queue:  queueName,
		logger: logger.With("component", "queue"),
	}
}

// Dispatch serializa e publica uma unidade de trabalho. Tolera soluços do
// broker com até 3 tentativas e backoff curto; na exaustão retorna erro
// embrulhando ErrDispatchExhausted.
func (p *Publisher) Dispatch(ctx context.Context, unit WorkUnit) (Handle, error) {
	payload, err := json.Marshal(unit)
	if err != nil {
		return Handle{}, fmt.Errorf("encoding work unit for frame %d: %w", unit.FrameIndex, err)
	}

	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if err := p.client.LPush(ctx, p.queue, payload).Err(); err == nil {
			return Handle{Index: unit.FrameIndex}, nil
		} else {
			lastErr = err
		}

		p.logger.Warn("dispatch attempt failed",
			"session", unit.SessionID,
			"frame", unit.FrameIndex,
			"attempt", attempt,
			"error", lastErr,
		)

		if attempt < publishAttempts {
			select {
			case <-ctx.Done():
				return Handle{}, ctx.Err()
			case <-time.After(publishBackoff):
			}
		}
	}

	return Handle{}, fmt.Errorf("%w: frame %d: %v", ErrDispatchExhausted, unit.FrameIndex, lastErr)
}

// Consumer drena unidades de trabalho do broker.
type Consumer struct {
	client *redis.Client
	queue  string
}

// NewConsumer cria um Consumer para a fila nomeada.
func NewConsumer(client *redis.Client, queueName string) *Consumer {
	if queueName == "" {
		queueName = DefaultQueue
	}
	return &Consumer{client: client, queue: queueName}
}

// Next bloqueia até a próxima unidade disponível. O BRPOP usa um block
// timeout curto para que o cancelamento do ctx seja honrado; fila vazia
// retorna (nil, nil) e o caller decide repetir.
func (c *Consumer) Next(ctx context.Context) (*WorkUnit, error) {
	res, err := c.client.BRPop(ctx, time.Second, c.queue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("popping work unit: %w", err)
	}
	// BRPOP retorna [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}

	var unit WorkUnit
	if err := json.Unmarshal([]byte(res[1]), &unit); err != nil {
		return nil, fmt.Errorf("decoding work unit: %w", err)
	}
	return &unit, nil
}

// Depth retorna o tamanho corrente da fila (observabilidade).
func (c *Consumer) Depth(ctx context.Context) (int64, error) {
	return c.client.LLen(ctx, c.queue).Result()
}
