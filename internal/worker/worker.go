// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

// Package worker implementa o corpo do frameflow-worker: consome unidades
// de trabalho do broker, aplica o processamento pedido e publica o par
// PNG+sidecar no diretório de artifacts da sessão.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/frameflow-dev/frameflow/internal/artifact"
	"github.com/frameflow-dev/frameflow/internal/queue"
)

// consumeBackoff é a espera após um erro de consumo do broker.
const consumeBackoff = time.Second

// Worker processa frames do broker com N goroutines concorrentes.
type Worker struct {
	id       string
	consumer *queue.Consumer
	dataDir  string
	conc     int
	attempts int
	delay    time.Duration
	filters  *filterBank
	mem      *memSampler
	logger   *slog.Logger
}

// New cria um Worker. O id carrega hostname+pid para os sidecars de stats.
func New(consumer *queue.Consumer, dataDir string, concurrency, attempts int, delay time.Duration, logger *slog.Logger) *Worker {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	id := fmt.Sprintf("%s-%d", host, os.Getpid())

	if concurrency < 1 {
		concurrency = 1
	}
	if attempts < 1 {
		attempts = 1
	}

	return &Worker{
		id:       id,
		consumer: consumer,
		dataDir:  dataDir,
		conc:     concurrency,
		attempts: attempts,
		delay:    delay,
		filters:  newFilterBank(),
		mem:      newMemSampler(),
		logger:   logger.With("worker", id),
	}
}

// ID retorna o identificador do worker.
func (w *Worker) ID() string {
	return w.id
}

// Run consome o broker até o context ser cancelado. Cancelamento é o
// desligamento normal do worker e não é reportado como erro.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "concurrency", w.conc, "data_dir", w.dataDir)

	var wg sync.WaitGroup
	for i := 0; i < w.conc; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}
	wg.Wait()

	w.logger.Info("worker stopped")
	if err := ctx.Err(); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loop é o ciclo de uma goroutine de consumo.
func (w *Worker) loop(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			return
		}

		unit, err := w.consumer.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("consuming work unit", "slot", slot, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(consumeBackoff):
			}
			continue
		}
		if unit == nil {
			continue // fila vazia dentro do block timeout
		}

		if err := w.Process(ctx, unit); err != nil {
			w.logger.Error("publishing frame result",
				"session", unit.SessionID, "frame", unit.FrameIndex, "error", err)
		}
	}
}

// Process aplica o filtro com retry limitado e publica o resultado.
// Falha permanente publica o frame ORIGINAL com filter_applied="error" e
// o campo error preenchido: a sessão nunca trava por um frame ruim.
func (w *Worker) Process(ctx context.Context, unit *queue.WorkUnit) error {
	start := time.Now()
	memBefore := w.mem.RSSMB()

	var (
		out     []byte
		filter  string
		lastErr error
		retries int
	)

	for attempt := 1; attempt <= w.attempts; attempt++ {
		out, filter, lastErr = w.filters.Apply(unit.SessionID, unit.Processing, unit.Params, unit.PNG)
		if lastErr == nil {
			retries = attempt - 1
			break
		}

		w.logger.Warn("processing attempt failed",
			"session", unit.SessionID,
			"frame", unit.FrameIndex,
			"attempt", attempt,
			"error", lastErr,
		)

		if attempt < w.attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.delay):
			}
		}
	}

	stats := artifact.Stats{
		FrameNumber:   unit.FrameIndex,
		FilterApplied: filter,
		WorkerID:      w.id,
		Retries:       retries,
	}

	if lastErr != nil {
		// Falha permanente: devolve o original anotado com o erro
		out = unit.PNG
		stats.FilterApplied = "error"
		stats.Retries = w.attempts - 1
		stats.Error = lastErr.Error()
	}

	memAfter := w.mem.RSSMB()
	stats.ProcessingTimeMS = float64(time.Since(start).Microseconds()) / 1000
	stats.MemoryMB = memAfter
	stats.MemoryDeltaMB = memAfter - memBefore

	sessionDir := artifact.SessionDir(w.dataDir, unit.SessionID)
	if err := artifact.WriteFramePNG(sessionDir, unit.FrameIndex, out); err != nil {
		return err
	}
	if err := artifact.WriteStats(sessionDir, unit.FrameIndex, stats); err != nil {
		return err
	}

	w.logger.Debug("frame published",
		"session", unit.SessionID,
		"frame", unit.FrameIndex,
		"filter", stats.FilterApplied,
		"ms", fmt.Sprintf("%.1f", stats.ProcessingTimeMS),
	)
	return nil
}
