// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/frameflow-dev/frameflow/internal/artifact"
)

// FrameResult é o desfecho da coleta de um frame: o artifact no disco ou
// a marcação de falha quando o worker nunca publicou dentro do prazo.
type FrameResult struct {
	Index  int
	Path   string
	Stats  artifact.Stats
	Failed bool
	Err    error
}

// Collector observa o diretório de artifacts de uma sessão e libera cada
// frame quando o par PNG+sidecar está completo no disco. A escrita dos
// workers é atômica, então um sidecar legível implica um PNG íntegro.
type Collector struct {
	sessionDir  string
	poll        time.Duration
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewCollector cria um collector para o diretório de artifacts dado.
// Valores não-positivos caem nos defaults (100ms de poll, 300s de prazo
// por frame, fan-out 8).
func NewCollector(sessionDir string, poll, timeout time.Duration, concurrency int, logger *slog.Logger) *Collector {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Collector{
		sessionDir:  sessionDir,
		poll:        poll,
		timeout:     timeout,
		concurrency: concurrency,
		logger:      logger,
	}
}

// WaitOne espera o frame de índice dado aparecer completo no disco.
// Sidecar ilegível ou ainda ausente conta como "não pronto" e o poll
// continua; só o estouro do prazo marca o frame como Failed.
func (c *Collector) WaitOne(ctx context.Context, index int) FrameResult {
	result := FrameResult{Index: index}
	deadline := time.Now().Add(c.timeout)

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		pngPath := artifact.FramePNGPath(c.sessionDir, index)
		if _, err := os.Stat(pngPath); err == nil {
			stats, err := artifact.ReadStats(c.sessionDir, index)
			if err == nil {
				result.Path = pngPath
				result.Stats = stats
				return result
			}
			// Sidecar ausente ou parcial: o worker ainda está publicando
		}

		if time.Now().After(deadline) {
			result.Failed = true
			result.Err = fmt.Errorf("frame %d not collected within %s", index, c.timeout)
			c.logger.Warn("frame collection timed out", "index", index, "timeout", c.timeout)
			return result
		}

		select {
		case <-ctx.Done():
			result.Failed = true
			result.Err = ctx.Err()
			return result
		case <-ticker.C:
		}
	}
}

// collectRange coleta os frames [from, to) com fan-out limitado e
// devolve os resultados em ordem ascendente de índice.
func (c *Collector) collectRange(ctx context.Context, from, to int) []FrameResult {
	results := make([]FrameResult, 0, to-from)

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.concurrency)

	for i := from; i < to; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(index int) {
			defer wg.Done()
			defer func() { <-sem }()

			res := c.WaitOne(ctx, index)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Index < results[b].Index })
	return results
}

// StreamBatches coleta total frames em lotes de batchSize, entregando
// cada lote ordenado ao callback assim que completa. Um erro do callback
// aborta a coleta.
func (c *Collector) StreamBatches(ctx context.Context, total, batchSize int, fn func([]FrameResult) error) error {
	if batchSize <= 0 {
		batchSize = 50
	}

	for from := 0; from < total; from += batchSize {
		to := from + batchSize
		if to > total {
			to = total
		}

		batch := c.collectRange(ctx, from, to)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return fmt.Errorf("processing batch [%d,%d): %w", from, to, err)
		}
	}
	return nil
}

// CollectAll coleta todos os frames de uma vez, ordenados. Conveniência
// para sessões pequenas e para os testes.
func (c *Collector) CollectAll(ctx context.Context, total int) []FrameResult {
	return c.collectRange(ctx, 0, total)
}
