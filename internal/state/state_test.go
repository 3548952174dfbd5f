// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package state

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestPublisher(t *testing.T) (*Publisher, *Reader, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPublisher(client, logger), NewReader(client), mr
}

func TestPublisher_LifecycleFields(t *testing.T) {
	pub, reader, mr := newTestPublisher(t)
	ctx := context.Background()

	pub.PublishAccepted("a1b2c3d4", "blur", "video.mp4")
	pub.PublishVideoProps("a1b2c3d4", 150, 29.97, 640, 480)
	pub.PublishProgress("a1b2c3d4", 30, 12.5, 9.6)

	rec, err := reader.Session(ctx, "a1b2c3d4")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if !rec.Found {
		t.Fatal("expected session to be found")
	}
	if rec.TotalFrames != 150 {
		t.Errorf("total_frames: got %d, want 150", rec.TotalFrames)
	}
	if rec.Resolution != "640x480" {
		t.Errorf("resolution: got %q", rec.Resolution)
	}
	if rec.Status != StatusProcessing {
		t.Errorf("status: got %q, want %q", rec.Status, StatusProcessing)
	}
	if rec.FramesProcessed != 30 || !rec.HasProcessed {
		t.Errorf("frames_processed: got %d (has=%v)", rec.FramesProcessed, rec.HasProcessed)
	}
	if rec.CurrentFPS != 12.5 {
		t.Errorf("current_fps: got %v", rec.CurrentFPS)
	}

	pub.PublishCompleted("a1b2c3d4", 12*time.Second)
	if got, err := mr.Get(Key("a1b2c3d4", "status")); err != nil || got != StatusCompleted {
		t.Errorf("status after complete: got %q (err=%v)", got, err)
	}
	if got, err := mr.Get(Key("a1b2c3d4", "total_time_seconds")); err != nil || got != "12.0" {
		t.Errorf("total_time_seconds: got %q (err=%v)", got, err)
	}
}

func TestPublisher_RefreshesTTL(t *testing.T) {
	pub, _, mr := newTestPublisher(t)

	pub.PublishVideoProps("s1", 10, 30, 64, 48)

	ttl := mr.TTL(Key("s1", "total_frames"))
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("expected TTL in (0, 1h], got %v", ttl)
	}

	// Avança o relógio e reescreve: o TTL deve voltar à janela cheia
	mr.FastForward(30 * time.Minute)
	pub.PublishVideoProps("s1", 10, 30, 64, 48)
	ttl = mr.TTL(Key("s1", "total_frames"))
	if ttl != time.Hour {
		t.Errorf("expected refreshed TTL of 1h, got %v", ttl)
	}
}

func TestPublisher_SwallowsStorageErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	pub := NewPublisher(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mr.Close() // derruba o store antes da escrita

	// Não pode entrar em pânico nem propagar erro
	pub.PublishFailed("s1")
	pub.PublishProgress("s1", 1, 0, 0)
}

func TestReader_Sessions(t *testing.T) {
	pub, reader, _ := newTestPublisher(t)
	ctx := context.Background()

	pub.PublishVideoProps("aaaa1111", 10, 30, 64, 48)
	pub.PublishVideoProps("bbbb2222", 20, 24, 64, 48)
	// Sessão sem total_frames não aparece na enumeração
	pub.PublishFailed("cccc3333")

	ids, err := reader.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions, got %d: %v", len(ids), ids)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen["aaaa1111"] || !seen["bbbb2222"] {
		t.Errorf("unexpected session ids: %v", ids)
	}
}

func TestReader_MissingSession(t *testing.T) {
	_, reader, _ := newTestPublisher(t)

	rec, err := reader.Session(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if rec.Found {
		t.Error("expected Found=false for missing session")
	}
}
