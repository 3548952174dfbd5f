// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package metrics

import (
	"sort"
	"sync"
	"time"
)

// Collector acumula contadores e amostras de latência de uma sessão.
// Seguro para uso concorrente. Invariantes:
// frames_processed é monotônico e igual a frames_failed + len(latencies);
// a lista de latências é append-only durante a vida da sessão.
type Collector struct {
	mu        sync.Mutex
	total     int
	processed int
	failed    int
	retries   int
	latencies []float64
	workers   map[string]int
	filters   map[string]bool
	peakMemMB float64
	start     time.Time
}

// Snapshot é o retrato de progresso usado nas mensagens periódicas.
type Snapshot struct {
	FramesProcessed int
	FramesTotal     int
	FPS             float64
	ETASeconds      float64
}

// Summary é o relatório final da sessão, enviado no result e impresso
// pelo client.
type Summary struct {
	TotalFrames           int      `json:"total_frames"`
	FramesProcessed       int      `json:"frames_processed"`
	FramesFailed          int      `json:"frames_failed"`
	Retries               int      `json:"retries"`
	ProcessingTimeSeconds float64  `json:"processing_time_seconds"`
	FPSProcessing         float64  `json:"fps_processing"`
	LatencyP50MS          float64  `json:"latency_p50_ms"`
	LatencyP95MS          float64  `json:"latency_p95_ms"`
	LatencyP99MS          float64  `json:"latency_p99_ms"`
	LatencyAvgMS          float64  `json:"latency_avg_ms"`
	LatencyMinMS          float64  `json:"latency_min_ms"`
	LatencyMaxMS          float64  `json:"latency_max_ms"`
	WorkerCount           int      `json:"worker_count"`
	FiltersApplied        []string `json:"filters_applied"`
	MemoryPeakMB          float64  `json:"memory_peak_mb"`
}

// NewCollector cria um Collector com o relógio de sessão iniciado agora.
// FPS e ETA derivam sempre do elapsed de parede a partir deste instante.
func NewCollector() *Collector {
	return &Collector{
		workers: make(map[string]int),
		filters: make(map[string]bool),
		start:   time.Now(),
	}
}

// SetTotal define o denominador de progresso (total de frames da sessão).
func (c *Collector) SetTotal(n int) {
	c.mu.Lock()
	c.total = n
	c.mu.Unlock()
}

// RecordFrame registra a conclusão de um frame. Latência só entra na
// amostra quando o frame não falhou; o contador de processados avança
// sempre.
func (c *Collector) RecordFrame(index int, processingMS float64, workerHost, filter string, memoryMB float64, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.processed++
	if failed {
		c.failed++
	} else {
		c.latencies = append(c.latencies, processingMS)
	}
	if workerHost != "" {
		c.workers[workerHost]++
	}
	if filter != "" {
		c.filters[filter] = true
	}
	if memoryMB > c.peakMemMB {
		c.peakMemMB = memoryMB
	}
}

// RecordRetry incrementa o contador de retries reportados pelos workers.
func (c *Collector) RecordRetry() {
	c.mu.Lock()
	c.retries++
	c.mu.Unlock()
}

// Progress calcula o retrato corrente. FPS vem do elapsed de parede;
// ETA de (total-processados)/fps. Ambos zeram quando indefinidos.
func (c *Collector) Progress() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.start).Seconds()
	var fps, eta float64
	if elapsed > 0 && c.processed > 0 {
		fps = float64(c.processed) / elapsed
	}
	if fps > 0 && c.total > c.processed {
		eta = float64(c.total-c.processed) / fps
	}

	return Snapshot{
		FramesProcessed: c.processed,
		FramesTotal:     c.total,
		FPS:             fps,
		ETASeconds:      eta,
	}
}

// Percentile calcula o percentil p (0-100) por interpolação linear sobre
// a amostra ordenada. Amostra vazia retorna 0.
func (c *Collector) Percentile(p float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return percentileLocked(c.latencies, p)
}

func percentileLocked(sample []float64, p float64) float64 {
	n := len(sample)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, sample)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	k := float64(n-1) * p / 100
	f := int(k)
	ceil := f + 1
	if ceil >= n {
		return sorted[n-1]
	}
	d0 := sorted[f] * (float64(ceil) - k)
	d1 := sorted[ceil] * (k - float64(f))
	return d0 + d1
}

// Summary monta o relatório final completo da sessão.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.start).Seconds()

	s := Summary{
		TotalFrames:           c.total,
		FramesProcessed:       c.processed,
		FramesFailed:          c.failed,
		Retries:               c.retries,
		ProcessingTimeSeconds: elapsed,
		WorkerCount:           len(c.workers),
		FiltersApplied:        make([]string, 0, len(c.filters)),
		MemoryPeakMB:          c.peakMemMB,
	}

	if elapsed > 0 && c.processed > 0 {
		s.FPSProcessing = float64(c.processed) / elapsed
	}

	for f := range c.filters {
		s.FiltersApplied = append(s.FiltersApplied, f)
	}
	sort.Strings(s.FiltersApplied)

	if len(c.latencies) > 0 {
		s.LatencyP50MS = percentileLocked(c.latencies, 50)
		s.LatencyP95MS = percentileLocked(c.latencies, 95)
		s.LatencyP99MS = percentileLocked(c.latencies, 99)

		var sum float64
		min := c.latencies[0]
		max := c.latencies[0]
		for _, v := range c.latencies {
			sum += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		s.LatencyAvgMS = sum / float64(len(c.latencies))
		s.LatencyMinMS = min
		s.LatencyMaxMS = max
	}

	return s
}
