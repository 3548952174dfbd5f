// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/frameflow-dev/frameflow/internal/artifact"
	"github.com/frameflow-dev/frameflow/internal/config"
	"github.com/frameflow-dev/frameflow/internal/logging"
	"github.com/frameflow-dev/frameflow/internal/metrics"
	"github.com/frameflow-dev/frameflow/internal/protocol"
	"github.com/frameflow-dev/frameflow/internal/queue"
	"github.com/frameflow-dev/frameflow/internal/state"
	"github.com/frameflow-dev/frameflow/internal/video"
)

// writeTimeout é o deadline de write para mensagens de controle.
const writeTimeout = 10 * time.Second

// progressEveryFrames define a cadência de progresso por contagem.
const progressEveryFrames = 30

// progressEveryElapsed define a cadência de progresso por tempo.
const progressEveryElapsed = 500 * time.Millisecond

// receiveBufSize é o tamanho do buffer de leitura do stream de vídeo.
const receiveBufSize = 256 * 1024

// VideoEngine é o contrato do orchestrator com o motor de vídeo.
// Satisfeito por EngineAdapter sobre video.Engine; os testes usam um
// motor fake que dispensa ffmpeg.
type VideoEngine interface {
	Probe(ctx context.Context, path string) (video.Meta, error)
	Explode(ctx context.Context, input, dir string) (int, error)
	NewEncoder(ctx context.Context, out string, fps float64, codec string) (FrameSink, error)
}

// EngineAdapter embrulha video.Engine no contrato VideoEngine.
type EngineAdapter struct {
	Engine *video.Engine
}

func (a EngineAdapter) Probe(ctx context.Context, path string) (video.Meta, error) {
	return a.Engine.Probe(ctx, path)
}

func (a EngineAdapter) Explode(ctx context.Context, input, dir string) (int, error) {
	return a.Engine.Explode(ctx, input, dir)
}

func (a EngineAdapter) NewEncoder(ctx context.Context, out string, fps float64, codec string) (FrameSink, error) {
	return a.Engine.NewEncoder(ctx, out, fps, codec)
}

// EventRecorder registra eventos de sessão no journal. Opcional.
type EventRecorder interface {
	Record(sessionID, event, detail string)
}

// SessionArchiver envia sessões concluídas para storage secundário, em
// melhor esforço. Opcional.
type SessionArchiver interface {
	ArchiveSession(ctx context.Context, dataDir, sessionID string)
}

// Session é a entrada de uma sessão ativa no mapa do handler.
type Session struct {
	ID         string
	Processing string
	VideoName  string
	StartedAt  time.Time
}

// Handler processa conexões individuais de sessão de processamento.
type Handler struct {
	cfg      *config.ServerConfig
	logger   *slog.Logger
	engine   VideoEngine
	queue    *queue.Publisher
	state    *state.Publisher
	events   EventRecorder
	archiver SessionArchiver
	sessions *sync.Map // sessionID → *Session

	// Métricas observáveis pelo stats reporter
	TrafficIn   atomic.Int64 // bytes de vídeo recebidos (acumulado desde último reset)
	TrafficOut  atomic.Int64 // bytes de vídeo enviados (acumulado desde último reset)
	FramesDone  atomic.Int64 // frames coletados (acumulado desde último reset)
	ActiveConns atomic.Int32 // conexões ativas no momento
}

// NewHandler cria um Handler com suas dependências. events pode ser nil.
func NewHandler(cfg *config.ServerConfig, engine VideoEngine, qpub *queue.Publisher, spub *state.Publisher, events EventRecorder, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		queue:    qpub,
		state:    spub,
		events:   events,
		sessions: &sync.Map{},
	}
}

// Sessions expõe o mapa de sessões ativas (stats reporter e preview).
func (h *Handler) Sessions() *sync.Map {
	return h.sessions
}

// SetArchiver configura o archiver de sessões concluídas.
func (h *Handler) SetArchiver(a SessionArchiver) {
	h.archiver = a
}

// StartStatsReporter loga métricas agregadas do server a cada 15s:
// conexões ativas, sessões abertas, tráfego e frames do intervalo.
func (h *Handler) StartStatsReporter(ctx context.Context) {
	const interval = 15 * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Swap-and-reset: lê o acumulado e zera
			in := h.TrafficIn.Swap(0)
			out := h.TrafficOut.Swap(0)
			frames := h.FramesDone.Swap(0)
			conns := h.ActiveConns.Load()

			var sessionCount int
			h.sessions.Range(func(_, _ any) bool {
				sessionCount++
				return true
			})

			secs := interval.Seconds()
			h.logger.Info("server stats",
				"conns", conns,
				"sessions", sessionCount,
				"traffic_in_MBps", fmt.Sprintf("%.2f", float64(in)/secs/(1024*1024)),
				"traffic_out_MBps", fmt.Sprintf("%.2f", float64(out)/secs/(1024*1024)),
				"frames_per_sec", fmt.Sprintf("%.1f", float64(frames)/secs),
			)
		}
	}
}

// HandleConnection conduz uma sessão completa: handshake, recepção do
// vídeo, dispatch dos frames, coleta, encode e entrega do resultado.
func (h *Handler) HandleConnection(ctx context.Context, conn net.Conn) {
	h.ActiveConns.Add(1)
	defer h.ActiveConns.Add(-1)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	logger := h.logger.With("remote", remote)

	hs, err := h.awaitHandshake(conn)
	if err != nil {
		logger.Warn("handshake rejected", "error", err)
		h.sendError(conn, protocol.CodeInvalidHandshake, err.Error())
		return
	}

	sessionID := newSessionID()
	logger = logger.With("session", sessionID)

	// Captura DEBUG da sessão em arquivo próprio, independente do nível global
	sessionLogger, logCloser, _, err := logging.NewSessionLogger(logger, h.cfg.SessionLogs.Dir, sessionID)
	if err != nil {
		logger.Warn("session log unavailable", "error", err)
		sessionLogger = logger
		logCloser = io.NopCloser(nil)
	}
	logger = sessionLogger
	defer logCloser.Close()

	logger.Info("session accepted",
		"video", hs.VideoInfo.Filename,
		"size_bytes", hs.VideoInfo.SizeBytes,
		"processing", hs.Processing,
	)

	sess := &Session{
		ID:         sessionID,
		Processing: hs.Processing,
		VideoName:  hs.VideoInfo.Filename,
		StartedAt:  time.Now(),
	}
	h.sessions.Store(sessionID, sess)
	defer h.sessions.Delete(sessionID)

	h.state.PublishAccepted(sessionID, hs.Processing, hs.VideoInfo.Filename)
	h.record(sessionID, "accepted", hs.VideoInfo.Filename)

	previewURL := h.previewURL(conn, sessionID)
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := protocol.Send(conn, protocol.NewHandshakeAck(sessionID, previewURL)); err != nil {
		logger.Error("sending handshake ack", "error", err)
		return
	}
	conn.SetWriteDeadline(time.Time{})

	if err := h.runSession(ctx, conn, hs, sess, logger); err != nil {
		logger.Error("session failed", "error", err)
		h.state.PublishFailed(sessionID)
		h.record(sessionID, "failed", err.Error())
		h.sendError(conn, protocol.CodeProcessingError, err.Error())
		return
	}

	logger.Info("session completed", "elapsed", time.Since(sess.StartedAt).Round(time.Millisecond))
	logging.RemoveSessionLog(h.cfg.SessionLogs.Dir, sessionID)
}

// awaitHandshake lê e valida a primeira mensagem dentro do prazo.
func (h *Handler) awaitHandshake(conn net.Conn) (*protocol.Handshake, error) {
	conn.SetReadDeadline(time.Now().Add(h.cfg.Timeouts.HandshakeRaw))
	defer conn.SetReadDeadline(time.Time{})

	msg, err := protocol.Recv(conn)
	if err != nil {
		return nil, fmt.Errorf("reading handshake: %w", err)
	}

	hs, ok := msg.(*protocol.Handshake)
	if !ok {
		return nil, fmt.Errorf("expected handshake, got %s", msg.Kind())
	}
	if hs.Version != protocol.ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version %d", hs.Version)
	}
	if err := hs.Validate(); err != nil {
		return nil, err
	}
	return hs, nil
}

// runSession executa as fases pós-handshake. Qualquer erro derruba a
// sessão inteira com PROCESSING_ERROR.
func (h *Handler) runSession(ctx context.Context, conn net.Conn, hs *protocol.Handshake, sess *Session, logger *slog.Logger) error {
	dataDir := h.cfg.Storage.DataDir
	inputPath := artifact.InputPath(dataDir, sess.ID)

	if err := h.receiveVideo(conn, inputPath, hs.VideoInfo.SizeBytes, logger); err != nil {
		return fmt.Errorf("receiving video: %w", err)
	}

	meta, err := h.engine.Probe(ctx, inputPath)
	if err != nil {
		return fmt.Errorf("probing input: %w", err)
	}

	sourceDir := artifact.SourceDir(dataDir, sess.ID)
	total, err := h.engine.Explode(ctx, inputPath, sourceDir)
	if err != nil {
		return fmt.Errorf("exploding input: %w", err)
	}
	if total == 0 {
		return fmt.Errorf("input yielded no frames")
	}

	// O total real vem da explosão; o probe pode divergir em containers
	// sem nb_frames
	h.state.PublishVideoProps(sess.ID, total, meta.FPS, meta.Width, meta.Height)
	h.record(sess.ID, "dispatching", fmt.Sprintf("%d frames", total))
	logger.Info("video exploded", "frames", total, "fps", meta.FPS,
		"resolution", fmt.Sprintf("%dx%d", meta.Width, meta.Height))

	if err := h.dispatchFrames(ctx, sess, sourceDir, total, hs); err != nil {
		return err
	}

	return h.assemble(ctx, conn, sess, meta, total, hs, logger)
}

// receiveVideo drena o stream de vídeo cru para o arquivo de entrada.
// O deadline de leitura desliza a cada chunk. O fim do stream é SEMPRE o
// half-close do client (EOF); o total anunciado no handshake é apenas
// informativo e divergência gera warning, nunca truncamento.
func (h *Handler) receiveVideo(conn net.Conn, inputPath string, expected int64, logger *slog.Logger) error {
	out, err := os.Create(inputPath)
	if err != nil {
		return fmt.Errorf("creating input file: %w", err)
	}
	defer out.Close()

	buf := make([]byte, receiveBufSize)
	var received int64

	for {
		conn.SetReadDeadline(time.Now().Add(h.cfg.Timeouts.ReceiveIdleRaw))
		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("writing input file: %w", werr)
			}
			received += int64(n)
			h.TrafficIn.Add(int64(n))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading video stream: %w", err)
		}
	}
	conn.SetReadDeadline(time.Time{})

	if expected > 0 && received != expected {
		logger.Warn("received size differs from announced",
			"expected", expected, "received", received)
	}
	if received == 0 {
		return fmt.Errorf("empty video stream")
	}

	logger.Info("video received", "bytes", received)
	return nil
}

// dispatchFrames publica cada frame de origem como unidade de trabalho.
func (h *Handler) dispatchFrames(ctx context.Context, sess *Session, sourceDir string, total int, hs *protocol.Handshake) error {
	for i := 0; i < total; i++ {
		png, err := os.ReadFile(artifact.FramePNGPath(sourceDir, i))
		if err != nil {
			return fmt.Errorf("reading source frame %d: %w", i, err)
		}

		unit := queue.WorkUnit{
			SessionID:  sess.ID,
			FrameIndex: i,
			PNG:        png,
			Processing: hs.Processing,
			Params:     hs.Filters,
		}
		if _, err := h.queue.Dispatch(ctx, unit); err != nil {
			if errors.Is(err, queue.ErrDispatchExhausted) {
				return fmt.Errorf("broker unavailable: %w", err)
			}
			return fmt.Errorf("dispatching frame %d: %w", i, err)
		}
	}
	return nil
}

// assemble coleta os artifacts processados em lotes, remonta o vídeo em
// ordem e entrega o resultado pelo socket.
func (h *Handler) assemble(ctx context.Context, conn net.Conn, sess *Session, meta video.Meta, total int, hs *protocol.Handshake, logger *slog.Logger) error {
	dataDir := h.cfg.Storage.DataDir
	sessionDir := artifact.SessionDir(dataDir, sess.ID)
	sourceDir := artifact.SourceDir(dataDir, sess.ID)
	outputPath := artifact.OutputPath(dataDir, sess.ID)

	codec := hs.Codec
	if codec == "" {
		codec = h.cfg.Video.Codec
	}

	sink, err := h.engine.NewEncoder(ctx, outputPath, meta.FPS, codec)
	if err != nil {
		return fmt.Errorf("opening encoder: %w", err)
	}

	mc := metrics.NewCollector()
	mc.SetTotal(total)

	fw := NewFrameWriter(sess.ID, sink, meta.Width, meta.Height, logger)
	col := NewCollector(sessionDir,
		h.cfg.Collector.PollIntervalRaw,
		h.cfg.Timeouts.FrameCollectRaw,
		h.cfg.Collector.Concurrency,
		logger)

	lastProgress := time.Now()
	sinceProgress := 0

	err = col.StreamBatches(ctx, total, h.cfg.Collector.BatchSize, func(batch []FrameResult) error {
		for _, res := range batch {
			png, stats, failed := h.resolveFrame(res, sourceDir, logger)
			if png == nil {
				zero, zerr := video.ZeroFrame(meta.Width, meta.Height)
				if zerr != nil {
					return fmt.Errorf("synthesizing frame %d: %w", res.Index, zerr)
				}
				png = zero
			}
			// Falha de escrita no encoder derruba o frame, nunca a sessão
			_, writeFailed := fw.Add(res.Index, png)
			if writeFailed {
				failed = true
			}

			mc.RecordFrame(res.Index, stats.ProcessingTimeMS, stats.WorkerID, stats.FilterApplied, stats.MemoryMB, failed)
			for r := 0; r < stats.Retries; r++ {
				mc.RecordRetry()
			}
			h.FramesDone.Add(1)

			sinceProgress++
			if sinceProgress >= progressEveryFrames || time.Since(lastProgress) >= progressEveryElapsed {
				h.reportProgress(conn, mc, sess.ID)
				sinceProgress = 0
				lastProgress = time.Now()
			}
		}
		return nil
	})
	if err != nil {
		sink.Close()
		return fmt.Errorf("collecting frames: %w", err)
	}

	if _, err := fw.FlushRemaining(total); err != nil {
		sink.Close()
		return fmt.Errorf("finalizing frame sequence: %w", err)
	}
	if err := sink.Close(); err != nil {
		return fmt.Errorf("closing encoder: %w", err)
	}

	output, err := os.ReadFile(outputPath)
	if err != nil {
		return fmt.Errorf("reading output video: %w", err)
	}

	h.reportProgress(conn, mc, sess.ID)
	summary := mc.Summary()
	h.state.PublishCompleted(sess.ID, time.Since(sess.StartedAt))
	h.record(sess.ID, "completed", fmt.Sprintf("%d frames, %d failed", summary.FramesProcessed, summary.FramesFailed))

	if h.archiver != nil {
		// Cópia secundária fora do caminho da resposta
		go h.archiver.ArchiveSession(context.WithoutCancel(ctx), dataDir, sess.ID)
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := protocol.Send(conn, protocol.NewResult(outputPath, int64(len(output)), summary)); err != nil {
		return fmt.Errorf("sending result: %w", err)
	}
	conn.SetWriteDeadline(time.Time{})
	if err := protocol.SendBytes(conn, output); err != nil {
		return fmt.Errorf("sending output video: %w", err)
	}
	h.TrafficOut.Add(int64(len(output)))

	logger.Info("result delivered",
		"output_bytes", len(output),
		"frames_failed", summary.FramesFailed,
		"frames_dropped", fw.WriteFailures(),
		"retries", summary.Retries,
	)
	return nil
}

// resolveFrame decide os bytes finais de um frame: o artifact processado,
// ou o frame original como fallback quando o worker nunca publicou ou
// publicou com erro permanente.
func (h *Handler) resolveFrame(res FrameResult, sourceDir string, logger *slog.Logger) ([]byte, artifact.Stats, bool) {
	if !res.Failed {
		png, err := os.ReadFile(res.Path)
		if err == nil {
			failed := res.Stats.Error != ""
			return png, res.Stats, failed
		}
		logger.Warn("reading collected frame", "index", res.Index, "error", err)
	}

	// Fallback: frame original sem processamento
	png, err := os.ReadFile(artifact.FramePNGPath(sourceDir, res.Index))
	stats := artifact.Stats{FrameNumber: res.Index}
	if err != nil {
		logger.Error("fallback frame unavailable", "index", res.Index, "error", err)
		return nil, stats, true
	}
	return png, stats, true
}

// reportProgress envia o snapshot corrente pelo socket e pelo state store.
func (h *Handler) reportProgress(conn net.Conn, mc *metrics.Collector, sessionID string) {
	snap := mc.Progress()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := protocol.Send(conn, protocol.NewProgress(snap.FramesProcessed, snap.FramesTotal, snap.FPS, snap.ETASeconds)); err != nil {
		h.logger.Warn("sending progress", "session", sessionID, "error", err)
	}
	conn.SetWriteDeadline(time.Time{})

	h.state.PublishProgress(sessionID, snap.FramesProcessed, snap.FPS, snap.ETASeconds)
}

// sendError envia uma mensagem de erro terminal, em melhor esforço.
func (h *Handler) sendError(conn net.Conn, code, msg string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := protocol.Send(conn, protocol.NewError(code, msg, false)); err != nil {
		h.logger.Debug("sending error message", "error", err)
	}
}

// record publica um evento no journal quando há um recorder configurado.
func (h *Handler) record(sessionID, event, detail string) {
	if h.events != nil {
		h.events.Record(sessionID, event, detail)
	}
}

// previewURL monta a URL de status da sessão a partir do endereço local
// da conexão e da porta do preview server.
func (h *Handler) previewURL(conn net.Conn, sessionID string) string {
	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil || host == "" || host == "::" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s/session/%s/status",
		net.JoinHostPort(host, fmt.Sprintf("%d", h.cfg.Listen.PreviewPort)), sessionID)
}

// newSessionID gera um identificador curto de sessão (8 hex de um UUID).
func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
