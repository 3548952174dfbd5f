// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

// Package client implementa o mirror client do frameflow: envia um vídeo
// para o server, acompanha o progresso e recebe o vídeo processado.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/frameflow-dev/frameflow/internal/metrics"
	"github.com/frameflow-dev/frameflow/internal/protocol"
)

// dialTimeout é o prazo para estabelecer a conexão TCP.
const dialTimeout = 10 * time.Second

// uploadBufSize é o tamanho do buffer do stream de upload.
const uploadBufSize = 256 * 1024

// Options parametriza uma sessão do client.
type Options struct {
	Host        string
	Port        int
	Family      string // "tcp" (auto), "tcp4" ou "tcp6"
	VideoPath   string
	OutputPath  string
	Processing  string
	Filters     map[string]any
	Codec       string
	ThrottleBps int64
	Progress    io.Writer // destino da barra; nil desabilita
}

// Report é o desfecho de uma sessão bem-sucedida.
type Report struct {
	SessionID   string
	PreviewURL  string
	OutputPath  string
	OutputBytes int64
	Summary     metrics.Summary
}

// Run conduz uma sessão completa contra o server e retorna o relatório.
func Run(ctx context.Context, opts Options, logger *slog.Logger) (*Report, error) {
	if opts.Family == "" {
		opts.Family = "tcp"
	}
	if opts.OutputPath == "" {
		opts.OutputPath = "output.mp4"
	}

	info, err := os.Stat(opts.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("reading video: %w", err)
	}

	addr := net.JoinHostPort(opts.Host, fmt.Sprintf("%d", opts.Port))
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, opts.Family, addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s (%s): %w", addr, opts.Family, err)
	}
	defer conn.Close()

	logger.Info("connected", "server", addr, "family", opts.Family)

	hs := protocol.NewHandshake(opts.Codec, opts.Processing, opts.Filters,
		filepath.Base(opts.VideoPath), info.Size())
	if err := protocol.Send(conn, hs); err != nil {
		return nil, fmt.Errorf("sending handshake: %w", err)
	}

	ack, err := awaitAck(conn)
	if err != nil {
		return nil, err
	}
	logger.Info("session accepted", "session", ack.SessionID, "preview", ack.PreviewURL)

	if err := streamVideo(ctx, conn, opts, info.Size(), logger); err != nil {
		return nil, fmt.Errorf("uploading video: %w", err)
	}

	return awaitResult(conn, opts, ack, logger)
}

// awaitAck lê a resposta ao handshake.
func awaitAck(conn net.Conn) (*protocol.HandshakeAck, error) {
	msg, err := protocol.Recv(conn)
	if err != nil {
		return nil, fmt.Errorf("reading handshake response: %w", err)
	}

	switch m := msg.(type) {
	case *protocol.HandshakeAck:
		if !m.Accepted {
			return nil, fmt.Errorf("server rejected session")
		}
		return m, nil
	case *protocol.Error:
		return nil, fmt.Errorf("server rejected handshake: %s (%s)", m.Message, m.Code)
	default:
		return nil, fmt.Errorf("unexpected %s message before ack", msg.Kind())
	}
}

// streamVideo envia o vídeo cru e faz half-close do lado de escrita,
// sinalizando o fim do stream sem fechar o caminho de volta.
func streamVideo(ctx context.Context, conn net.Conn, opts Options, size int64, logger *slog.Logger) error {
	f, err := os.Open(opts.VideoPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var dst io.Writer = conn
	dst = NewThrottledWriter(ctx, dst, opts.ThrottleBps)
	bw := bufio.NewWriterSize(dst, uploadBufSize)

	start := time.Now()
	sent, err := io.Copy(bw, f)
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return fmt.Errorf("half-closing upload: %w", err)
		}
	}

	if sent != size {
		logger.Warn("uploaded size differs from stat", "sent", sent, "stat", size)
	}

	elapsed := time.Since(start).Seconds()
	logger.Info("video uploaded",
		"bytes", sent,
		"size", formatBytes(sent),
		"elapsed", fmt.Sprintf("%.1fs", elapsed),
	)
	return nil
}

// awaitResult consome progresso até o desfecho da sessão e grava o vídeo
// processado.
func awaitResult(conn net.Conn, opts Options, ack *protocol.HandshakeAck, logger *slog.Logger) (*Report, error) {
	var bar *ProgressBar
	if opts.Progress != nil {
		bar = NewProgressBar(ack.SessionID, opts.Progress)
	}

	for {
		msg, err := protocol.Recv(conn)
		if err != nil {
			return nil, fmt.Errorf("reading server message: %w", err)
		}

		switch m := msg.(type) {
		case *protocol.Progress:
			if bar != nil {
				bar.Update(m.FramesProcessed, m.FramesTotal, m.FPS, m.ETASeconds)
			}

		case *protocol.Result:
			if bar != nil {
				bar.Update(m.Metrics.FramesProcessed, m.Metrics.TotalFrames, m.Metrics.FPSProcessing, 0)
				bar.Finish()
			}

			output, err := protocol.RecvBytes(conn, int(m.SizeBytes))
			if err != nil {
				return nil, fmt.Errorf("receiving output video: %w", err)
			}
			if err := renameio.WriteFile(opts.OutputPath, output, 0644); err != nil {
				return nil, fmt.Errorf("writing output video: %w", err)
			}

			logger.Info("output received",
				"path", opts.OutputPath,
				"bytes", m.SizeBytes,
				"size", formatBytes(m.SizeBytes),
			)
			return &Report{
				SessionID:   ack.SessionID,
				PreviewURL:  ack.PreviewURL,
				OutputPath:  opts.OutputPath,
				OutputBytes: m.SizeBytes,
				Summary:     m.Metrics,
			}, nil

		case *protocol.Error:
			if bar != nil {
				bar.Finish()
			}
			return nil, fmt.Errorf("session failed: %s (%s)", m.Message, m.Code)

		default:
			logger.Warn("ignoring unexpected message", "kind", msg.Kind())
		}
	}
}

// PrintSummary imprime o relatório final da sessão em formato legível.
func PrintSummary(w io.Writer, r *Report) {
	s := r.Summary
	fmt.Fprintf(w, "\nSessão %s concluída\n", r.SessionID)
	fmt.Fprintf(w, "  output:      %s (%s)\n", r.OutputPath, formatBytes(r.OutputBytes))
	fmt.Fprintf(w, "  frames:      %d processados, %d falhos, %d retries\n",
		s.FramesProcessed, s.FramesFailed, s.Retries)
	fmt.Fprintf(w, "  tempo:       %.1fs (%.1f fps)\n", s.ProcessingTimeSeconds, s.FPSProcessing)
	fmt.Fprintf(w, "  latência:    p50 %.1fms  p95 %.1fms  p99 %.1fms (avg %.1f, min %.1f, max %.1f)\n",
		s.LatencyP50MS, s.LatencyP95MS, s.LatencyP99MS,
		s.LatencyAvgMS, s.LatencyMinMS, s.LatencyMaxMS)
	fmt.Fprintf(w, "  workers:     %d (%v)\n", s.WorkerCount, s.FiltersApplied)
	if s.MemoryPeakMB > 0 {
		fmt.Fprintf(w, "  memória:     pico %.1f MB\n", s.MemoryPeakMB)
	}
	if r.PreviewURL != "" {
		fmt.Fprintf(w, "  preview:     %s\n", r.PreviewURL)
	}
}
