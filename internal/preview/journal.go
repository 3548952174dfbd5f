// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package preview

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/pgzip"
)

// Event é uma entrada do journal de sessões.
type Event struct {
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
}

// eventRing é um ring buffer thread-safe dos eventos mais recentes.
type eventRing struct {
	mu  sync.RWMutex
	buf []Event
	pos int
	cap int
	len int
}

func newEventRing(capacity int) *eventRing {
	if capacity <= 0 {
		capacity = 256
	}
	return &eventRing{
		buf: make([]Event, capacity),
		cap: capacity,
	}
}

func (r *eventRing) push(e Event) {
	r.mu.Lock()
	r.buf[r.pos] = e
	r.pos = (r.pos + 1) % r.cap
	if r.len < r.cap {
		r.len++
	}
	r.mu.Unlock()
}

// recent retorna os últimos N eventos em ordem cronológica (mais antigo
// primeiro). limit <= 0 retorna todos.
func (r *eventRing) recent(limit int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.len
	if limit > 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return []Event{}
	}

	result := make([]Event, n)
	start := (r.pos - n + r.cap) % r.cap
	for i := 0; i < n; i++ {
		result[i] = r.buf[(start+i)%r.cap]
	}
	return result
}

// Journal combina um ring in-memory com persistência em arquivo JSONL.
// Cada Record faz append de uma linha; no startup as últimas entradas
// populam o ring.
//
// Rotação: quando o arquivo excede maxLines, a geração corrente é
// comprimida para {path}.1.gz e o arquivo reescrito mantendo as últimas
// maxLines/2 linhas.
type Journal struct {
	ring      *eventRing
	file      *os.File
	mu        sync.Mutex // protege writes e rotação
	maxLines  int
	lineCount int
	path      string
}

// NewJournal abre (ou cria) o arquivo JSONL e carrega as últimas
// entradas para o ring.
func NewJournal(path string, ringCap, maxLines int) (*Journal, error) {
	if maxLines <= 0 {
		maxLines = 10000
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	ring := newEventRing(ringCap)

	entries, lineCount, err := loadJSONL(path)
	if err != nil {
		return nil, fmt.Errorf("loading journal: %w", err)
	}

	start := 0
	if len(entries) > ringCap {
		start = len(entries) - ringCap
	}
	for _, e := range entries[start:] {
		ring.push(e)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening journal for append: %w", err)
	}

	return &Journal{
		ring:      ring,
		file:      f,
		maxLines:  maxLines,
		lineCount: lineCount,
		path:      path,
	}, nil
}

// loadJSONL lê o arquivo e retorna os eventos válidos. Linhas
// malformadas são ignoradas silenciosamente.
func loadJSONL(path string) ([]Event, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()

	var entries []Event
	lineCount := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		lineCount++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}

	return entries, lineCount, scanner.Err()
}

// Record insere um evento no ring e persiste no arquivo. Satisfaz o
// contrato de recorder do server; falhas de persistência não propagam.
func (j *Journal) Record(sessionID, event, detail string) {
	e := Event{
		Timestamp: time.Now().Format(time.RFC3339),
		SessionID: sessionID,
		Event:     event,
		Detail:    detail,
	}
	j.ring.push(e)

	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if _, err := j.file.Write(append(data, '\n')); err != nil {
		return
	}

	j.lineCount++
	if j.lineCount > j.maxLines {
		j.rotate()
	}
}

// Recent retorna os últimos N eventos em ordem cronológica.
func (j *Journal) Recent(limit int) []Event {
	return j.ring.recent(limit)
}

// Close fecha o arquivo do journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}

// rotate comprime a geração corrente e mantém as últimas maxLines/2
// linhas no arquivo ativo. Deve ser chamada com j.mu travado.
func (j *Journal) rotate() {
	keep := j.maxLines / 2

	entries, _, err := loadJSONL(j.path)
	if err != nil || len(entries) <= keep {
		return
	}

	j.file.Close()

	// Geração anterior vai comprimida para {path}.1.gz; a reescrita
	// segue mesmo se a compressão falhar
	compressFile(j.path, j.path+".1.gz")

	entries = entries[len(entries)-keep:]

	f, err := os.Create(j.path)
	if err != nil {
		j.file, _ = os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		return
	}

	w := bufio.NewWriter(f)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	w.Flush()
	f.Close()

	j.file, err = os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	j.lineCount = len(entries)
}

// compressFile grava uma cópia gzip de src em dst.
func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := pgzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}
