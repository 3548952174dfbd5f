// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/renameio/v2"
	xdraw "golang.org/x/image/draw"

	"github.com/frameflow-dev/frameflow/internal/artifact"
)

// gifMaxFrames limita quantos frames entram no preview GIF.
const gifMaxFrames = 30

// gifMaxWidth limita a largura do GIF; frames maiores são reduzidos.
const gifMaxWidth = 640

// gifFrameDelay é o delay entre frames em centésimos de segundo (100ms).
const gifFrameDelay = 10

// BuildGIF monta o preview GIF animado de uma sessão a partir dos frames
// processados no disco. O resultado é cacheado; o cache só é reutilizado
// enquanto nenhum frame mais novo aparecer.
func BuildGIF(dataDir, sessionID string) ([]byte, error) {
	sessionDir := artifact.SessionDir(dataDir, sessionID)
	frames, err := listFrames(sessionDir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames available for session %s", sessionID)
	}

	gifPath := artifact.GIFPath(dataDir, sessionID)
	if cached := readFreshCache(gifPath, frames); cached != nil {
		return cached, nil
	}

	sampled := sampleEvenly(frames, gifMaxFrames)

	anim := &gif.GIF{}
	for _, path := range sampled {
		paletted, err := loadPaletted(path)
		if err != nil {
			// Frame ilegível não derruba o preview inteiro
			continue
		}
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, gifFrameDelay)
	}
	if len(anim.Image) == 0 {
		return nil, fmt.Errorf("no decodable frames for session %s", sessionID)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("encoding preview gif: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(gifPath), 0755); err == nil {
		// Cache é best-effort
		renameio.WriteFile(gifPath, buf.Bytes(), 0644)
	}
	return buf.Bytes(), nil
}

// listFrames retorna os paths dos frames processados em ordem de índice.
func listFrames(sessionDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(sessionDir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("listing frames: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// readFreshCache retorna o GIF cacheado se ele for mais novo que o frame
// mais recente; caso contrário nil.
func readFreshCache(gifPath string, frames []string) []byte {
	gifInfo, err := os.Stat(gifPath)
	if err != nil {
		return nil
	}
	newest, err := os.Stat(frames[len(frames)-1])
	if err != nil || newest.ModTime().After(gifInfo.ModTime()) {
		return nil
	}
	data, err := os.ReadFile(gifPath)
	if err != nil {
		return nil
	}
	return data
}

// sampleEvenly escolhe até max elementos distribuídos uniformemente.
func sampleEvenly(frames []string, max int) []string {
	if len(frames) <= max {
		return frames
	}
	out := make([]string, 0, max)
	step := float64(len(frames)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		out = append(out, frames[int(float64(i)*step+0.5)])
	}
	return out
}

// loadPaletted decodifica um PNG, reduz para a largura máxima e converte
// para a paleta do GIF.
func loadPaletted(path string) (*image.Paletted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > gifMaxWidth {
		h = h * gifMaxWidth / w
		w = gifMaxWidth
		scaled := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, b, xdraw.Over, nil)
		img = scaled
		b = scaled.Bounds()
	}

	paletted := image.NewPaletted(image.Rect(0, 0, w, h), palette.Plan9)
	xdraw.Draw(paletted, paletted.Bounds(), img, b.Min, xdraw.Src)
	return paletted, nil
}
