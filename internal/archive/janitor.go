// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package archive

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor varre o data dir periodicamente e remove artifacts de sessões
// mais antigos que a retenção: frames, frames de origem, vídeos de
// entrada/saída e GIFs cacheados.
type Janitor struct {
	cron      *cron.Cron
	dataDir   string
	retention time.Duration
	logger    *slog.Logger
	mu        sync.Mutex // garante apenas uma varredura por vez
	running   bool
}

// NewJanitor cria um Janitor com a expressão cron fornecida.
func NewJanitor(schedule, dataDir string, retention time.Duration, logger *slog.Logger) (*Janitor, error) {
	j := &Janitor{
		dataDir:   dataDir,
		retention: retention,
		logger:    logger.With("component", "janitor"),
	}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(schedule, j.execute); err != nil {
		return nil, err
	}

	j.cron = c
	return j, nil
}

// Start inicia o scheduler do janitor.
func (j *Janitor) Start() {
	j.logger.Info("janitor started", "retention", j.retention)
	j.cron.Start()
}

// Stop para o scheduler e aguarda varreduras em andamento.
func (j *Janitor) Stop(ctx context.Context) {
	j.logger.Info("janitor stopping")
	stopCtx := j.cron.Stop()

	select {
	case <-stopCtx.Done():
		j.logger.Info("janitor stopped gracefully")
	case <-ctx.Done():
		j.logger.Warn("janitor stop timed out")
	}
}

func (j *Janitor) execute() {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.logger.Warn("sweep already running, skipping scheduled execution")
		return
	}
	j.running = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	removed, err := j.Sweep()
	if err != nil {
		j.logger.Error("sweep failed", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info("sweep completed", "removed", removed)
	}
}

// Sweep remove entradas expiradas e retorna quantas foram removidas.
func (j *Janitor) Sweep() (int, error) {
	cutoff := time.Now().Add(-j.retention)
	removed := 0

	// Diretórios por sessão: frames processados, frames de origem
	for _, sub := range []string{"frames", "source"} {
		dirs, err := os.ReadDir(filepath.Join(j.dataDir, sub))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}
		for _, entry := range dirs {
			path := filepath.Join(j.dataDir, sub, entry.Name())
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.RemoveAll(path); err != nil {
					j.logger.Warn("removing expired directory", "path", path, "error", err)
					continue
				}
				removed++
			}
		}
	}

	// Arquivos soltos: vídeos de entrada/saída e GIFs cacheados
	entries, err := os.ReadDir(j.dataDir)
	if err != nil {
		return removed, err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !expirableFile(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(j.dataDir, name)
			if err := os.Remove(path); err != nil {
				j.logger.Warn("removing expired file", "path", path, "error", err)
				continue
			}
			removed++
		}
	}

	gifs, err := os.ReadDir(filepath.Join(j.dataDir, "gifs"))
	if err == nil {
		for _, entry := range gifs {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				path := filepath.Join(j.dataDir, "gifs", entry.Name())
				if err := os.Remove(path); err != nil {
					continue
				}
				removed++
			}
		}
	}

	return removed, nil
}

// expirableFile reconhece os arquivos soltos sujeitos a retenção.
func expirableFile(name string) bool {
	return strings.HasPrefix(name, "input_") ||
		strings.HasPrefix(name, "output_") ||
		strings.HasPrefix(name, "archive_")
}
