// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package video

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// fakeBinary grava um shell script executável e retorna seu path.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("writing fake binary: %v", err)
	}
	return path
}

func TestProbe(t *testing.T) {
	ffprobe := fakeBinary(t, `cat <<'EOF'
{"streams":[
  {"codec_type":"audio"},
  {"codec_type":"video","width":640,"height":480,"nb_frames":"150",
   "avg_frame_rate":"30000/1001","r_frame_rate":"30/1","duration":"5.005"}
]}
EOF`)

	engine := NewEngine("ffmpeg", ffprobe)
	meta, err := engine.Probe(context.Background(), "input.mp4")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if meta.Width != 640 || meta.Height != 480 {
		t.Errorf("resolution: got %dx%d", meta.Width, meta.Height)
	}
	if meta.Frames != 150 {
		t.Errorf("frames: got %d, want 150", meta.Frames)
	}
	if meta.FPS < 29.96 || meta.FPS > 29.98 {
		t.Errorf("fps: got %v, want ~29.97", meta.FPS)
	}
}

func TestProbe_DerivesFramesFromDuration(t *testing.T) {
	ffprobe := fakeBinary(t, `cat <<'EOF'
{"streams":[{"codec_type":"video","width":64,"height":48,
  "avg_frame_rate":"30/1","duration":"2.0"}]}
EOF`)

	engine := NewEngine("ffmpeg", ffprobe)
	meta, err := engine.Probe(context.Background(), "input.mp4")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if meta.Frames != 60 {
		t.Errorf("derived frames: got %d, want 60", meta.Frames)
	}
}

func TestProbe_NoVideoStream(t *testing.T) {
	ffprobe := fakeBinary(t, `echo '{"streams":[{"codec_type":"audio"}]}'`)

	engine := NewEngine("ffmpeg", ffprobe)
	if _, err := engine.Probe(context.Background(), "audio.mp3"); err == nil {
		t.Fatal("expected error for stream-less input")
	}
}

func TestProbe_BinaryFailure(t *testing.T) {
	ffprobe := fakeBinary(t, `echo "input.mp4: Invalid data found" >&2; exit 1`)

	engine := NewEngine("ffmpeg", ffprobe)
	_, err := engine.Probe(context.Background(), "input.mp4")
	if err == nil {
		t.Fatal("expected probe failure")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("Invalid data")) {
		t.Errorf("error should carry stderr tail: %v", err)
	}
}

func TestCodecName(t *testing.T) {
	cases := map[string]string{
		"mp4v": "mpeg4",
		"MP4V": "mpeg4",
		"":     "mpeg4",
		"avc1": "libx264",
		"h264": "libx264",
		"vp9":  "vp9",
	}
	for in, want := range cases {
		if got := CodecName(in); got != want {
			t.Errorf("CodecName(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestParseRate(t *testing.T) {
	cases := map[string]float64{
		"30/1":       30,
		"30000/1001": 29.97002997002997,
		"25":         25,
		"0/0":        0,
		"":           0,
		"abc/def":    0,
		"30/0":       0,
	}
	for in, want := range cases {
		if got := parseRate(in); got != want {
			t.Errorf("parseRate(%q): got %v, want %v", in, got, want)
		}
	}
}

func TestZeroFrame(t *testing.T) {
	data, err := ZeroFrame(64, 48)
	if err != nil {
		t.Fatalf("ZeroFrame: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding zero frame: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("size: got %dx%d", b.Dx(), b.Dy())
	}
	r, g, bl, _ := img.At(10, 10).RGBA()
	if r != 0 || g != 0 || bl != 0 {
		t.Errorf("expected black pixel, got %v %v %v", r, g, bl)
	}

	// Segunda chamada vem do cache
	again, err := ZeroFrame(64, 48)
	if err != nil {
		t.Fatalf("ZeroFrame cached: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("cached zero frame differs")
	}
}

func TestZeroFrame_InvalidSize(t *testing.T) {
	if _, err := ZeroFrame(0, 48); err == nil {
		t.Error("expected error for zero width")
	}
	if _, err := ZeroFrame(64, -1); err == nil {
		t.Error("expected error for negative height")
	}
}
