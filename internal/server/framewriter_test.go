// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package server

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/frameflow-dev/frameflow/internal/video"
)

// memorySink acumula frames em ordem de escrita.
type memorySink struct {
	frames  [][]byte
	failAt  int // índice de escrita que deve falhar (-1 = nunca)
	writes  int
	closed  bool
}

func newMemorySink() *memorySink {
	return &memorySink{failAt: -1}
}

func (s *memorySink) WriteFrame(png []byte) error {
	if s.failAt >= 0 && s.writes == s.failAt {
		s.writes++
		return errors.New("sink write failed")
	}
	s.writes++
	s.frames = append(s.frames, png)
	return nil
}

func (s *memorySink) Close() error {
	s.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frameBytes(n byte) []byte {
	return []byte{n, n, n}
}

func TestFrameWriter_InOrder(t *testing.T) {
	sink := newMemorySink()
	fw := NewFrameWriter("s1", sink, 64, 48, testLogger())

	for i := 0; i < 4; i++ {
		written, failed := fw.Add(i, frameBytes(byte(i)))
		if failed {
			t.Fatalf("Add(%d): unexpected write failure", i)
		}
		if written != 1 {
			t.Errorf("Add(%d): wrote %d frames, want 1", i, written)
		}
	}

	if fw.Written() != 4 || fw.Pending() != 0 {
		t.Errorf("written=%d pending=%d", fw.Written(), fw.Pending())
	}
}

func TestFrameWriter_OutOfOrderDrains(t *testing.T) {
	sink := newMemorySink()
	fw := NewFrameWriter("s1", sink, 64, 48, testLogger())

	// 2 e 1 chegam antes de 0
	if written, _ := fw.Add(2, frameBytes(2)); written != 0 {
		t.Errorf("Add(2): wrote %d, want 0", written)
	}
	if written, _ := fw.Add(1, frameBytes(1)); written != 0 {
		t.Errorf("Add(1): wrote %d, want 0", written)
	}
	if fw.Pending() != 2 {
		t.Errorf("pending=%d, want 2", fw.Pending())
	}

	// 0 destrava a sequência inteira
	written, failed := fw.Add(0, frameBytes(0))
	if failed {
		t.Fatal("Add(0): unexpected write failure")
	}
	if written != 3 {
		t.Errorf("Add(0): wrote %d, want 3", written)
	}

	for i, frame := range sink.frames {
		if !bytes.Equal(frame, frameBytes(byte(i))) {
			t.Errorf("frame %d out of order: %v", i, frame)
		}
	}
}

func TestFrameWriter_IgnoresDuplicates(t *testing.T) {
	sink := newMemorySink()
	fw := NewFrameWriter("s1", sink, 64, 48, testLogger())

	fw.Add(0, frameBytes(0))
	written, failed := fw.Add(0, frameBytes(9))
	if failed {
		t.Fatal("duplicate reported as write failure")
	}
	if written != 0 {
		t.Errorf("duplicate wrote %d frames", written)
	}
	if len(sink.frames) != 1 || !bytes.Equal(sink.frames[0], frameBytes(0)) {
		t.Errorf("duplicate overwrote frame: %v", sink.frames)
	}
}

func TestFrameWriter_FlushRemainingFillsGaps(t *testing.T) {
	sink := newMemorySink()
	fw := NewFrameWriter("s1", sink, 64, 48, testLogger())

	fw.Add(0, frameBytes(0))
	fw.Add(2, frameBytes(2)) // 1 nunca chega

	filled, err := fw.FlushRemaining(4)
	if err != nil {
		t.Fatalf("FlushRemaining: %v", err)
	}
	// Índices 1 e 3 sintetizados; o 2 pendente é drenado de verdade
	if filled != 2 {
		t.Errorf("filled=%d, want 2", filled)
	}
	if len(sink.frames) != 4 {
		t.Fatalf("sink has %d frames, want 4", len(sink.frames))
	}

	zero, _ := video.ZeroFrame(64, 48)
	if !bytes.Equal(sink.frames[1], zero) || !bytes.Equal(sink.frames[3], zero) {
		t.Error("gap frames are not zero frames")
	}
	if !bytes.Equal(sink.frames[2], frameBytes(2)) {
		t.Error("buffered frame 2 was not drained")
	}
	if fw.Filled() != 2 || fw.Written() != 2 {
		t.Errorf("filled=%d written=%d", fw.Filled(), fw.Written())
	}
}

func TestFrameWriter_FlushRemainingIdempotent(t *testing.T) {
	sink := newMemorySink()
	fw := NewFrameWriter("s1", sink, 64, 48, testLogger())

	fw.Add(0, frameBytes(0))
	if _, err := fw.FlushRemaining(2); err != nil {
		t.Fatalf("FlushRemaining: %v", err)
	}
	filled, err := fw.FlushRemaining(2)
	if err != nil {
		t.Fatalf("FlushRemaining again: %v", err)
	}
	if filled != 0 || len(sink.frames) != 2 {
		t.Errorf("second flush filled=%d frames=%d", filled, len(sink.frames))
	}
}

func TestFrameWriter_SinkErrorAdvancesCursor(t *testing.T) {
	sink := newMemorySink()
	sink.failAt = 1
	fw := NewFrameWriter("s1", sink, 64, 48, testLogger())

	if _, failed := fw.Add(0, frameBytes(0)); failed {
		t.Fatal("Add(0): unexpected write failure")
	}

	// A falha de escrita derruba só o frame: conta como falho e avança
	written, failed := fw.Add(1, frameBytes(1))
	if !failed {
		t.Fatal("Add(1): write failure not reported")
	}
	if written != 0 {
		t.Errorf("Add(1): wrote %d frames, want 0", written)
	}

	// A sequência continua viva depois da falha
	if written, failed := fw.Add(2, frameBytes(2)); failed || written != 1 {
		t.Errorf("Add(2): written=%d failed=%v", written, failed)
	}

	if fw.Written() != 2 || fw.WriteFailures() != 1 {
		t.Errorf("written=%d failures=%d, want 2/1", fw.Written(), fw.WriteFailures())
	}
	if !bytes.Equal(sink.frames[1], frameBytes(2)) {
		t.Error("frame 2 did not reach the sink after the failure")
	}

	// Nada restou para preencher: o cursor passou pelo índice falho
	if filled, err := fw.FlushRemaining(3); err != nil || filled != 0 {
		t.Errorf("FlushRemaining: filled=%d err=%v", filled, err)
	}
}

func TestFrameWriter_SinkErrorOnDrainedPending(t *testing.T) {
	sink := newMemorySink()
	sink.failAt = 1 // a segunda escrita (o pendente drenado) falha
	fw := NewFrameWriter("s1", sink, 64, 48, testLogger())

	fw.Add(1, frameBytes(1))
	written, failed := fw.Add(0, frameBytes(0))
	if failed {
		t.Fatal("Add(0): own frame reported failed, only the drained one failed")
	}
	if written != 1 {
		t.Errorf("written=%d, want 1", written)
	}
	if fw.WriteFailures() != 1 || fw.Pending() != 0 {
		t.Errorf("failures=%d pending=%d, want 1/0", fw.WriteFailures(), fw.Pending())
	}

	// O cursor passou do pendente falho: 2 é aceito como próximo
	if written, failed := fw.Add(2, frameBytes(2)); failed || written != 1 {
		t.Errorf("Add(2): written=%d failed=%v", written, failed)
	}
}
