// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

// Package artifact define o contrato em disco entre workers, collector e
// preview: o par de arquivos por frame e o layout por sessão.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Stats é o sidecar JSON gravado ao lado de cada frame processado.
type Stats struct {
	FrameNumber      int     `json:"frame_number"`
	ProcessingTimeMS float64 `json:"processing_time_ms"`
	MemoryMB         float64 `json:"memory_mb"`
	MemoryDeltaMB    float64 `json:"memory_delta_mb"`
	FilterApplied    string  `json:"filter_applied"`
	WorkerID         string  `json:"worker_id"`
	Retries          int     `json:"retries,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// SessionDir retorna o diretório de artifacts de uma sessão.
func SessionDir(dataDir, sessionID string) string {
	return filepath.Join(dataDir, "frames", sessionID)
}

// FramePNGPath retorna o caminho do frame processado de índice i.
func FramePNGPath(sessionDir string, i int) string {
	return filepath.Join(sessionDir, fmt.Sprintf("frame_%06d.png", i))
}

// SidecarPath retorna o caminho do sidecar de stats do frame i.
func SidecarPath(sessionDir string, i int) string {
	return filepath.Join(sessionDir, fmt.Sprintf("frame_%06d.json", i))
}

// InputPath retorna o caminho do vídeo de entrada da sessão.
func InputPath(dataDir, sessionID string) string {
	return filepath.Join(dataDir, fmt.Sprintf("input_%s.mp4", sessionID))
}

// OutputPath retorna o caminho do vídeo de saída da sessão.
func OutputPath(dataDir, sessionID string) string {
	return filepath.Join(dataDir, fmt.Sprintf("output_%s.mp4", sessionID))
}

// SourceDir retorna o diretório dos frames originais (pré-processamento),
// usados como fallback quando um worker falha ou expira.
func SourceDir(dataDir, sessionID string) string {
	return filepath.Join(dataDir, "source", sessionID)
}

// GIFPath retorna o caminho do preview GIF cacheado da sessão.
func GIFPath(dataDir, sessionID string) string {
	return filepath.Join(dataDir, "gifs", sessionID+".gif")
}

// WriteFramePNG publica o frame processado de forma atômica (temp + rename).
// Um leitor nunca observa um PNG parcial.
func WriteFramePNG(sessionDir string, index int, png []byte) error {
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	path := FramePNGPath(sessionDir, index)
	if err := renameio.WriteFile(path, png, 0644); err != nil {
		return fmt.Errorf("writing frame %d: %w", index, err)
	}
	return nil
}

// WriteStats publica o sidecar de stats de forma atômica. Deve ser chamado
// DEPOIS de WriteFramePNG: o collector só libera o frame quando ambos os
// arquivos são legíveis, e o sidecar é o segundo a aparecer.
func WriteStats(sessionDir string, index int, stats Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding stats for frame %d: %w", index, err)
	}
	path := SidecarPath(sessionDir, index)
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing stats for frame %d: %w", index, err)
	}
	return nil
}

// ReadStats lê e decodifica o sidecar de stats do frame i.
func ReadStats(sessionDir string, index int) (Stats, error) {
	var stats Stats
	data, err := os.ReadFile(SidecarPath(sessionDir, index))
	if err != nil {
		return stats, err
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, fmt.Errorf("decoding stats for frame %d: %w", index, err)
	}
	return stats, nil
}
