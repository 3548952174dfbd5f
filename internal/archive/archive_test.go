// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package archive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"github.com/frameflow-dev/frameflow/internal/artifact"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedSession(t *testing.T, dataDir, sessionID string, frames int) {
	t.Helper()
	dir := artifact.SessionDir(dataDir, sessionID)
	for i := 0; i < frames; i++ {
		if err := artifact.WriteFramePNG(dir, i, []byte{0x89, 'P', 'N', 'G', byte(i)}); err != nil {
			t.Fatalf("WriteFramePNG: %v", err)
		}
		if err := artifact.WriteStats(dir, i, artifact.Stats{FrameNumber: i}); err != nil {
			t.Fatalf("WriteStats: %v", err)
		}
	}
	if err := os.WriteFile(artifact.OutputPath(dataDir, sessionID), []byte("mp4-bytes"), 0644); err != nil {
		t.Fatalf("writing output: %v", err)
	}
}

func TestBundleSession(t *testing.T) {
	dataDir := t.TempDir()
	seedSession(t, dataDir, "a1b2c3d4", 3)

	dest := filepath.Join(t.TempDir(), "bundle.tar.zst")
	result, err := BundleSession(context.Background(), dataDir, "a1b2c3d4", dest)
	if err != nil {
		t.Fatalf("BundleSession: %v", err)
	}
	if result.Size == 0 {
		t.Error("bundle size is zero")
	}
	if result.Checksum == [32]byte{} {
		t.Error("checksum not computed")
	}

	// Decomprime e confere o conteúdo do tar
	f, err := os.Open(dest)
	if err != nil {
		t.Fatalf("opening bundle: %v", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("opening zstd reader: %v", err)
	}
	defer zr.Close()

	names := map[string]bool{}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading tar: %v", err)
		}
		names[hdr.Name] = true
	}

	if !names["output_a1b2c3d4.mp4"] {
		t.Error("output video missing from bundle")
	}
	// 3 frames + 3 sidecars
	count := 0
	for name := range names {
		if filepath.Dir(name) == "frames" {
			count++
		}
	}
	if count != 6 {
		t.Errorf("frame entries: got %d, want 6", count)
	}
}

// fakePutter captura PutObject calls.
type fakePutter struct {
	keys []string
	err  error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.keys = append(f.keys, *params.Key)
	return &s3.PutObjectOutput{}, nil
}

func TestUploader_Upload(t *testing.T) {
	bundle := filepath.Join(t.TempDir(), "bundle.tar.zst")
	if err := os.WriteFile(bundle, []byte("payload"), 0644); err != nil {
		t.Fatalf("writing bundle: %v", err)
	}

	putter := &fakePutter{}
	u := NewUploaderWithClient(putter, "videos", "frameflow", testLogger())

	key, err := u.Upload(context.Background(), "a1b2c3d4", bundle)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if key != "frameflow/a1b2c3d4/bundle.tar.zst" {
		t.Errorf("key: got %q", key)
	}
	if len(putter.keys) != 1 {
		t.Errorf("PutObject calls: %d", len(putter.keys))
	}
}

func TestUploader_ArchiveSessionSwallowsFailures(t *testing.T) {
	dataDir := t.TempDir()
	seedSession(t, dataDir, "a1b2c3d4", 1)

	putter := &fakePutter{err: errors.New("bucket unreachable")}
	u := NewUploaderWithClient(putter, "videos", "frameflow", testLogger())

	// Não pode entrar em pânico nem propagar erro
	u.ArchiveSession(context.Background(), dataDir, "a1b2c3d4")

	// O bundle temporário foi limpo
	if _, err := os.Stat(filepath.Join(dataDir, "archive_a1b2c3d4.tar.zst")); !os.IsNotExist(err) {
		t.Error("temporary bundle not cleaned up")
	}
}

func TestJanitor_Sweep(t *testing.T) {
	dataDir := t.TempDir()
	seedSession(t, dataDir, "old00001", 1)
	seedSession(t, dataDir, "new00001", 1)

	if err := os.MkdirAll(filepath.Join(dataDir, "gifs"), 0755); err != nil {
		t.Fatalf("mkdir gifs: %v", err)
	}
	os.WriteFile(filepath.Join(dataDir, "gifs", "old00001.gif"), []byte("gif"), 0644)
	os.WriteFile(artifact.InputPath(dataDir, "old00001"), []byte("mp4"), 0644)

	// Envelhece os artifacts da sessão antiga
	past := time.Now().Add(-48 * time.Hour)
	for _, path := range []string{
		artifact.SessionDir(dataDir, "old00001"),
		filepath.Join(dataDir, "gifs", "old00001.gif"),
		artifact.InputPath(dataDir, "old00001"),
		artifact.OutputPath(dataDir, "old00001"),
	} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("aging %s: %v", path, err)
		}
	}

	j, err := NewJanitor("0 * * * *", dataDir, 24*time.Hour, testLogger())
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}

	removed, err := j.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 4 {
		t.Errorf("removed: got %d, want 4", removed)
	}

	if _, err := os.Stat(artifact.SessionDir(dataDir, "old00001")); !os.IsNotExist(err) {
		t.Error("expired session dir survived sweep")
	}
	if _, err := os.Stat(artifact.SessionDir(dataDir, "new00001")); err != nil {
		t.Error("fresh session dir was removed")
	}
}

func TestJanitor_RejectsBadSchedule(t *testing.T) {
	if _, err := NewJanitor("not a cron", t.TempDir(), time.Hour, testLogger()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}
