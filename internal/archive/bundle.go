// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

// Package archive empacota sessões concluídas (tar+zstd) e as envia para
// storage S3-compatível, e mantém o janitor de retenção do data dir.
package archive

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/frameflow-dev/frameflow/internal/artifact"
)

// BundleResult descreve o pacote produzido.
type BundleResult struct {
	Path     string
	Size     uint64
	Checksum [32]byte
}

// BundleSession empacota os artifacts de uma sessão concluída em um
// tar comprimido com zstd: vídeo de saída, frames processados e
// sidecars de stats. O SHA-256 é calculado inline sobre o stream
// comprimido.
func BundleSession(ctx context.Context, dataDir, sessionID, destPath string) (*BundleResult, error) {
	out, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("creating bundle file: %w", err)
	}
	defer out.Close()

	hasher := sha256.New()
	counter := &countWriter{w: io.MultiWriter(out, hasher)}

	compressor, err := zstd.NewWriter(counter, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	tw := tar.NewWriter(compressor)

	add := func(path, name string) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return addFile(tw, path, name)
	}

	// Vídeo de saída, quando existir
	outputPath := artifact.OutputPath(dataDir, sessionID)
	if _, err := os.Stat(outputPath); err == nil {
		if err := add(outputPath, filepath.Base(outputPath)); err != nil {
			tw.Close()
			compressor.Close()
			return nil, err
		}
	}

	// Frames processados e sidecars
	sessionDir := artifact.SessionDir(dataDir, sessionID)
	entries, err := filepath.Glob(filepath.Join(sessionDir, "frame_*"))
	if err != nil {
		tw.Close()
		compressor.Close()
		return nil, fmt.Errorf("listing session artifacts: %w", err)
	}
	for _, path := range entries {
		name := filepath.Join("frames", filepath.Base(path))
		if err := add(path, name); err != nil {
			tw.Close()
			compressor.Close()
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		compressor.Close()
		return nil, fmt.Errorf("closing tar writer: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return nil, fmt.Errorf("closing compressor: %w", err)
	}

	var checksum [32]byte
	copy(checksum[:], hasher.Sum(nil))

	return &BundleResult{
		Path:     destPath,
		Size:     counter.n,
		Checksum: checksum,
	}, nil
}

// addFile adiciona um arquivo regular ao tar. Stat via fd aberto e
// LimitReader garantem consistência entre o header e os bytes copiados.
func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // pula arquivos que sumiram entre o glob e o tar
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil
	}

	header, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return fmt.Errorf("creating tar header for %s: %w", path, err)
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("writing tar header for %s: %w", path, err)
	}
	if _, err := io.Copy(tw, io.LimitReader(f, fi.Size())); err != nil {
		return fmt.Errorf("writing %s to tar: %w", path, err)
	}
	return nil
}

// countWriter conta os bytes escritos no destino.
type countWriter struct {
	w io.Writer
	n uint64
}

func (cw *countWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n)
	return n, err
}
