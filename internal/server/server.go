// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

// Package server implementa o servidor de sessões do frameflow: o
// listener dual-stack, o orchestrator por conexão, a coleta de artifacts
// e a remontagem do vídeo final.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Listen abre os listeners do protocolo. bind "::" vira dual-stack
// explícito: um socket tcp4 em 0.0.0.0 e um tcp6 em [::] com IPV6_V6ONLY,
// para que o par cubra as duas famílias de forma determinística em
// qualquer política de bindv6only do host.
func Listen(bind string, port int) ([]net.Listener, error) {
	lc := net.ListenConfig{Control: controlSocket}
	addr := func(host string) string {
		return net.JoinHostPort(host, fmt.Sprintf("%d", port))
	}

	if bind == "::" {
		ln4, err := lc.Listen(context.Background(), "tcp4", addr("0.0.0.0"))
		if err != nil {
			return nil, fmt.Errorf("listening on tcp4: %w", err)
		}
		ln6, err := lc.Listen(context.Background(), "tcp6", addr("::"))
		if err != nil {
			ln4.Close()
			return nil, fmt.Errorf("listening on tcp6: %w", err)
		}
		return []net.Listener{ln4, ln6}, nil
	}

	ln, err := lc.Listen(context.Background(), "tcp", addr(bind))
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr(bind), err)
	}
	return []net.Listener{ln}, nil
}

// controlSocket ajusta as opções do socket antes do bind: SO_REUSEADDR
// sempre, IPV6_V6ONLY no socket tcp6 do par dual-stack.
func controlSocket(network, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			ctrlErr = fmt.Errorf("setting SO_REUSEADDR: %w", err)
			return
		}
		if network == "tcp6" {
			if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
				ctrlErr = fmt.Errorf("setting IPV6_V6ONLY: %w", err)
			}
		}
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

// Run abre os listeners conforme a configuração e serve até o context
// ser cancelado, respeitando a janela de drain para sessões em curso.
func Run(ctx context.Context, handler *Handler, logger *slog.Logger) error {
	cfg := handler.cfg
	listeners, err := Listen(cfg.Listen.Bind, cfg.Listen.Port)
	if err != nil {
		return err
	}
	for _, ln := range listeners {
		logger.Info("server listening", "address", ln.Addr().String())
	}
	return RunWithListeners(ctx, listeners, handler, logger)
}

// RunWithListeners serve conexões nos listeners dados (seam de teste).
// No cancelamento do context os listeners fecham imediatamente e as
// sessões ativas ganham a janela de drain antes do retorno.
func RunWithListeners(ctx context.Context, listeners []net.Listener, handler *Handler, logger *slog.Logger) error {
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		for _, ln := range listeners {
			ln.Close()
		}
	}()

	var conns sync.WaitGroup
	var accepts sync.WaitGroup

	for _, ln := range listeners {
		accepts.Add(1)
		go func(ln net.Listener) {
			defer accepts.Done()
			for {
				conn, err := ln.Accept()
				if err != nil {
					select {
					case <-ctx.Done():
						return
					default:
						logger.Error("accepting connection", "error", err)
						continue
					}
				}

				conns.Add(1)
				go func() {
					defer conns.Done()
					handler.HandleConnection(ctx, conn)
				}()
			}
		}(ln)
	}

	accepts.Wait()

	// Janela de drain para sessões em curso
	done := make(chan struct{})
	go func() {
		conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("server shutdown complete")
	case <-time.After(handler.cfg.Timeouts.DrainRaw):
		logger.Warn("drain window expired with active sessions",
			"active", handler.ActiveConns.Load())
	}
	return nil
}
