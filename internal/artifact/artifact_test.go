// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFramePNG_Atomic(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames", "a1b2c3d4")

	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	if err := WriteFramePNG(dir, 7, png); err != nil {
		t.Fatalf("WriteFramePNG: %v", err)
	}

	got, err := os.ReadFile(FramePNGPath(dir, 7))
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	if !bytes.Equal(got, png) {
		t.Errorf("frame content mismatch: got %v", got)
	}

	// Nenhum arquivo temporário pode sobrar no diretório
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file in artifact dir, got %d", len(entries))
	}
	if entries[0].Name() != "frame_000007.png" {
		t.Errorf("unexpected file name %q", entries[0].Name())
	}
}

func TestStats_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	in := Stats{
		FrameNumber:      42,
		ProcessingTimeMS: 12.5,
		MemoryMB:         128.0,
		FilterApplied:    "blur_box",
		WorkerID:         "worker-1:999",
		Retries:          2,
	}
	if err := WriteStats(dir, 42, in); err != nil {
		t.Fatalf("WriteStats: %v", err)
	}

	out, err := ReadStats(dir, 42)
	if err != nil {
		t.Fatalf("ReadStats: %v", err)
	}
	if out != in {
		t.Errorf("stats mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestReadStats_Missing(t *testing.T) {
	if _, err := ReadStats(t.TempDir(), 1); !os.IsNotExist(err) {
		t.Errorf("expected IsNotExist error, got %v", err)
	}
}

func TestPaths(t *testing.T) {
	if got := FramePNGPath("/d", 3); got != "/d/frame_000003.png" {
		t.Errorf("FramePNGPath: %q", got)
	}
	if got := SidecarPath("/d", 123456); got != "/d/frame_123456.json" {
		t.Errorf("SidecarPath: %q", got)
	}
	if got := InputPath("data", "ab"); got != filepath.Join("data", "input_ab.mp4") {
		t.Errorf("InputPath: %q", got)
	}
	if got := GIFPath("data", "ab"); got != filepath.Join("data", "gifs", "ab.gif") {
		t.Errorf("GIFPath: %q", got)
	}
}
