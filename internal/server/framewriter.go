// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package server

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/frameflow-dev/frameflow/internal/video"
)

// FrameSink recebe frames PNG em ordem estrita. Satisfeito por
// *video.Encoder; os testes usam um sink em memória.
type FrameSink interface {
	WriteFrame(png []byte) error
	Close() error
}

// FrameWriter entrega frames ao sink em ordem de índice. Frames que
// chegam adiantados ficam pendentes em memória e são drenados assim que
// a lacuna de sequência é preenchida. Para o caso normal (collector
// entregando em ordem ascendente), o mapa de pendentes fica vazio.
type FrameWriter struct {
	sessionID     string
	sink          FrameSink
	width         int
	height        int
	next          int
	pending       map[int][]byte
	framesWritten int
	framesFilled  int
	writeFailures int
	mu            sync.Mutex
	logger        *slog.Logger
}

// NewFrameWriter cria um writer para uma sessão. width/height são as
// dimensões do vídeo, usadas para sintetizar frames de preenchimento.
func NewFrameWriter(sessionID string, sink FrameSink, width, height int, logger *slog.Logger) *FrameWriter {
	return &FrameWriter{
		sessionID: sessionID,
		sink:      sink,
		width:     width,
		height:    height,
		pending:   make(map[int][]byte),
		logger:    logger,
	}
}

// Add aceita o frame de índice dado e retorna quantos frames foram
// efetivamente escritos no sink nesta chamada (0 quando o frame ficou
// pendente, 1+N quando destravou N pendentes contíguos). Falha de escrita
// no sink não interrompe a sessão: o frame conta como falho, o cursor
// avança e failed reporta a falha do próprio índice desta chamada.
func (fw *FrameWriter) Add(index int, png []byte) (written int, failed bool) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if index < fw.next {
		// Duplicado ou atrasado — ignora
		fw.logger.Warn("ignoring duplicate/late frame",
			"session", fw.sessionID, "index", index, "expected", fw.next)
		return 0, false
	}

	if index > fw.next {
		fw.pending[index] = png
		fw.logger.Debug("frame buffered out-of-order",
			"session", fw.sessionID, "index", index, "pending", len(fw.pending))
		return 0, false
	}

	if fw.writeLocked(png) {
		fw.framesWritten++
		written++
	} else {
		failed = true
	}
	fw.next++

	// Drena pendentes contíguos
	for {
		buf, ok := fw.pending[fw.next]
		if !ok {
			break
		}
		delete(fw.pending, fw.next)
		if fw.writeLocked(buf) {
			fw.framesWritten++
			written++
		}
		fw.next++
	}

	return written, failed
}

// writeLocked entrega o frame de índice fw.next ao sink, com fw.mu já
// adquirido. Erro de escrita é engolido: loga, conta a falha e reporta
// false — o cursor avança no caller de qualquer forma.
func (fw *FrameWriter) writeLocked(png []byte) bool {
	if err := fw.sink.WriteFrame(png); err != nil {
		fw.logger.Error("encoder write failed, frame dropped",
			"session", fw.sessionID, "index", fw.next, "error", err)
		fw.writeFailures++
		return false
	}
	return true
}

// FlushRemaining preenche com frames pretos os índices ainda ausentes
// até total e fecha a sequência. Idempotente: índices já escritos não
// são tocados. Retorna quantos frames foram sintetizados.
func (fw *FrameWriter) FlushRemaining(total int) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	filled := 0
	for fw.next < total {
		if buf, ok := fw.pending[fw.next]; ok {
			delete(fw.pending, fw.next)
			if fw.writeLocked(buf) {
				fw.framesWritten++
			}
			fw.next++
			continue
		}

		zero, err := video.ZeroFrame(fw.width, fw.height)
		if err != nil {
			return filled, fmt.Errorf("synthesizing fill frame %d: %w", fw.next, err)
		}
		if fw.writeLocked(zero) {
			fw.logger.Warn("missing frame filled with black",
				"session", fw.sessionID, "index", fw.next)
			fw.framesFilled++
			filled++
		}
		fw.next++
	}

	return filled, nil
}

// Written retorna quantos frames reais já foram entregues ao sink.
func (fw *FrameWriter) Written() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.framesWritten
}

// Filled retorna quantos frames de preenchimento foram sintetizados.
func (fw *FrameWriter) Filled() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.framesFilled
}

// Pending retorna quantos frames aguardam lacunas de sequência.
func (fw *FrameWriter) Pending() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.pending)
}

// WriteFailures retorna quantas escritas no sink falharam (frames perdidos
// do vídeo final, cursor avançado mesmo assim).
func (fw *FrameWriter) WriteFailures() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.writeFailures
}
