// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

// Package preview expõe a superfície HTTP de observação de sessões:
// status, stream SSE, preview GIF, frames individuais e o journal de
// eventos.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/frameflow-dev/frameflow/internal/artifact"
	"github.com/frameflow-dev/frameflow/internal/state"
)

// startTime registra quando o processo iniciou (cálculo de uptime).
var startTime = time.Now()

// Version é preenchida via ldflags no build (-X ...Version=x.y.z).
var Version = "dev"

// sseInterval é a cadência de emissão do stream de status.
const sseInterval = 500 * time.Millisecond

// Server serve a API de preview sobre o state store e o disco.
type Server struct {
	reader  *state.Reader
	journal *Journal
	dataDir string
	logger  *slog.Logger
}

// NewServer cria o preview server. journal pode ser nil (endpoint de
// eventos responde vazio).
func NewServer(reader *state.Reader, journal *Journal, dataDir string, logger *slog.Logger) *Server {
	return &Server{
		reader:  reader,
		journal: journal,
		dataDir: dataDir,
		logger:  logger,
	}
}

// Routes monta o http.Handler com todas as rotas da API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("GET /session/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /session/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /session/{id}/preview.gif", s.handleGIF)
	mux.HandleFunc("GET /session/{id}/frame/{n}", s.handleFrame)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return mux
}

// Run serve a API no endereço dado até o context ser cancelado.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("preview server listening", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("preview server: %w", err)
	}
	return nil
}

// handleSessions lista as sessões conhecidas pelo state store.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.reader.Sessions(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "state store unavailable")
		return
	}
	sort.Strings(ids)

	sessions := make([]SessionStatus, 0, len(ids))
	for _, id := range ids {
		rec, err := s.reader.Session(r.Context(), id)
		if err != nil || !rec.Found {
			continue
		}
		sessions = append(sessions, statusFromRecord(rec, s.framesOnDisk(id)))
	}

	// O contrato é um array puro de resumos, sem envelope
	writeJSON(w, http.StatusOK, sessions)
}

// handleStatus retorna o snapshot corrente de uma sessão.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, ok := s.loadStatus(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleStream emite o status via Server-Sent Events a cada 500ms até a
// sessão atingir um estado terminal.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(sseInterval)
	defer ticker.Stop()

	for {
		status, found := s.loadStatus(r.Context(), id)
		if !found {
			status = SessionStatus{SessionID: id, Status: "unknown"}
		}

		data, err := json.Marshal(status)
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()

		// Estado terminal encerra o stream depois do último evento
		if status.Status == state.StatusCompleted || status.Status == state.StatusFailed {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// handleGIF serve o preview GIF animado da sessão.
func (s *Server) handleGIF(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := BuildGIF(s.dataDir, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "no preview available")
		return
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "max-age=2")
	w.Write(data)
}

// handleFrame serve um frame processado individual.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid frame number")
		return
	}

	sessionDir := artifact.SessionDir(s.dataDir, id)
	path := artifact.FramePNGPath(sessionDir, n)
	if err := validatePathInBaseDir(s.dataDir, path); err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "frame not found")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

// handleEvents retorna os eventos recentes do journal.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	events := []Event{}
	if s.journal != nil {
		events = s.journal.Recent(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleHealth retorna status do processo, uptime e conectividade com o
// state store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	redisStatus := "ok"
	code := http.StatusOK
	if err := s.reader.Ping(r.Context()); err != nil {
		redisStatus = "unreachable"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  redisStatus,
		"uptime":  time.Since(startTime).String(),
		"version": Version,
		"go":      runtime.Version(),
	})
}

// loadStatus carrega o snapshot de uma sessão, com fallback de contagem
// de frames no disco quando o state store ainda não tem progresso.
func (s *Server) loadStatus(ctx context.Context, id string) (SessionStatus, bool) {
	rec, err := s.reader.Session(ctx, id)
	if err != nil || !rec.Found {
		return SessionStatus{}, false
	}
	return statusFromRecord(rec, s.framesOnDisk(id)), true
}

// framesOnDisk conta os frames processados presentes no disco.
func (s *Server) framesOnDisk(id string) int {
	matches, err := filepath.Glob(filepath.Join(artifact.SessionDir(s.dataDir, id), "frame_*.png"))
	if err != nil {
		return 0
	}
	return len(matches)
}

// writeJSON serializa v como JSON indentado.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// writeError responde um erro em JSON.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
