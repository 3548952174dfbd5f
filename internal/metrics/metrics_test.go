// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package metrics

import (
	"sync"
	"testing"
)

func TestCollector_ProcessedEqualsFailedPlusLatencies(t *testing.T) {
	c := NewCollector()
	c.SetTotal(10)

	for i := 0; i < 7; i++ {
		c.RecordFrame(i, float64(10+i), "worker-a", "blur", 50, false)
	}
	for i := 7; i < 10; i++ {
		c.RecordFrame(i, 0, "worker-b", "blur", 50, true)
	}

	s := c.Summary()
	if s.FramesProcessed != 10 {
		t.Errorf("expected frames_processed=10, got %d", s.FramesProcessed)
	}
	if s.FramesFailed != 3 {
		t.Errorf("expected frames_failed=3, got %d", s.FramesFailed)
	}
	// processed == failed + len(latencies)
	latencyCount := s.FramesProcessed - s.FramesFailed
	if latencyCount != 7 {
		t.Errorf("expected 7 latency samples, got %d", latencyCount)
	}
}

func TestCollector_PercentileEmpty(t *testing.T) {
	c := NewCollector()
	if p := c.Percentile(95); p != 0 {
		t.Errorf("expected 0 for empty sample, got %f", p)
	}
}

func TestCollector_PercentileBoundedByMinMax(t *testing.T) {
	c := NewCollector()
	samples := []float64{42, 7, 99, 13, 56, 71, 28}
	for i, ms := range samples {
		c.RecordFrame(i, ms, "w", "edges", 0, false)
	}

	min, max := 7.0, 99.0
	for _, p := range []float64{0, 25, 50, 75, 95, 99, 100} {
		v := c.Percentile(p)
		if v < min || v > max {
			t.Errorf("percentile(%f)=%f out of bounds [%f, %f]", p, v, min, max)
		}
	}
}

func TestCollector_PercentileLinearInterpolation(t *testing.T) {
	c := NewCollector()
	// Amostra 1..5: p50 deve cair exatamente no elemento do meio
	for i, ms := range []float64{1, 2, 3, 4, 5} {
		c.RecordFrame(i, ms, "w", "blur", 0, false)
	}

	if v := c.Percentile(50); v != 3 {
		t.Errorf("expected p50=3, got %f", v)
	}
	// k=(5-1)*25/100=1.0 → exatamente sorted[1]=2
	if v := c.Percentile(25); v != 2 {
		t.Errorf("expected p25=2, got %f", v)
	}
	// k=(5-1)*62.5/100=2.5 → entre 3 e 4
	if v := c.Percentile(62.5); v != 3.5 {
		t.Errorf("expected p62.5=3.5, got %f", v)
	}
}

func TestCollector_ProgressZeroWhenUndefined(t *testing.T) {
	c := NewCollector()
	c.SetTotal(100)

	snap := c.Progress()
	if snap.FPS != 0 {
		t.Errorf("expected fps=0 with no frames, got %f", snap.FPS)
	}
	if snap.ETASeconds != 0 {
		t.Errorf("expected eta=0 with no frames, got %f", snap.ETASeconds)
	}
	if snap.FramesTotal != 100 {
		t.Errorf("expected total=100, got %d", snap.FramesTotal)
	}
}

func TestCollector_ProgressAdvances(t *testing.T) {
	c := NewCollector()
	c.SetTotal(100)

	var last int
	for i := 0; i < 50; i++ {
		c.RecordFrame(i, 5, "w", "blur", 0, false)
		snap := c.Progress()
		if snap.FramesProcessed < last {
			t.Fatalf("frames_processed regressed: %d < %d", snap.FramesProcessed, last)
		}
		last = snap.FramesProcessed
	}

	snap := c.Progress()
	if snap.FramesProcessed != 50 {
		t.Errorf("expected 50 processed, got %d", snap.FramesProcessed)
	}
	if snap.FPS <= 0 {
		t.Errorf("expected positive fps, got %f", snap.FPS)
	}
}

func TestCollector_Summary(t *testing.T) {
	c := NewCollector()
	c.SetTotal(4)

	c.RecordFrame(0, 10, "host-a", "blur", 100, false)
	c.RecordFrame(1, 20, "host-a", "blur", 120, false)
	c.RecordFrame(2, 30, "host-b", "blur", 90, false)
	c.RecordFrame(3, 0, "host-b", "blur", 0, true)
	c.RecordRetry()
	c.RecordRetry()

	s := c.Summary()
	if s.TotalFrames != 4 {
		t.Errorf("expected total_frames=4, got %d", s.TotalFrames)
	}
	if s.Retries != 2 {
		t.Errorf("expected retries=2, got %d", s.Retries)
	}
	if s.WorkerCount != 2 {
		t.Errorf("expected worker_count=2, got %d", s.WorkerCount)
	}
	if s.LatencyMinMS != 10 || s.LatencyMaxMS != 30 {
		t.Errorf("expected min=10 max=30, got min=%f max=%f", s.LatencyMinMS, s.LatencyMaxMS)
	}
	if s.LatencyAvgMS != 20 {
		t.Errorf("expected avg=20, got %f", s.LatencyAvgMS)
	}
	if len(s.FiltersApplied) != 1 || s.FiltersApplied[0] != "blur" {
		t.Errorf("expected filters_applied=[blur], got %v", s.FiltersApplied)
	}
	if s.MemoryPeakMB != 120 {
		t.Errorf("expected memory_peak_mb=120, got %f", s.MemoryPeakMB)
	}
}

func TestCollector_ConcurrentRecords(t *testing.T) {
	c := NewCollector()
	c.SetTotal(200)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.RecordFrame(base*50+i, float64(i), "w", "motion", 0, i%10 == 0)
			}
		}(g)
	}
	wg.Wait()

	s := c.Summary()
	if s.FramesProcessed != 200 {
		t.Errorf("expected 200 processed, got %d", s.FramesProcessed)
	}
	if s.FramesFailed != 20 {
		t.Errorf("expected 20 failed, got %d", s.FramesFailed)
	}
}
