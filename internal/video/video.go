// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

// Package video embrulha os binários externos ffmpeg/ffprobe: probe de
// metadata, explosão do vídeo em frames PNG e encode de PNGs em vídeo
// via image2pipe no stdin.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Meta são as propriedades derivadas de um vídeo de entrada.
type Meta struct {
	Frames   int
	FPS      float64
	Width    int
	Height   int
	Duration float64
}

// Engine executa os binários externos configurados.
type Engine struct {
	FFmpeg  string
	FFprobe string
}

// NewEngine cria um Engine; binários vazios assumem o default no PATH.
func NewEngine(ffmpeg, ffprobe string) *Engine {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &Engine{FFmpeg: ffmpeg, FFprobe: ffprobe}
}

// probeStream é o subconjunto relevante da saída JSON do ffprobe.
type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	NBFrames     string `json:"nb_frames"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

// Probe extrai a metadata do primeiro stream de vídeo do arquivo.
// Quando nb_frames está ausente (containers que não o declaram), o total
// é derivado de duration × fps.
func (e *Engine) Probe(ctx context.Context, path string) (Meta, error) {
	var meta Meta

	cmd := exec.CommandContext(ctx, e.FFprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return meta, fmt.Errorf("probing %s: %w: %s", path, err, tail(stderr.String()))
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return meta, fmt.Errorf("decoding ffprobe output: %w", err)
	}

	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		meta.Width = s.Width
		meta.Height = s.Height
		meta.FPS = parseRate(s.AvgFrameRate)
		if meta.FPS == 0 {
			meta.FPS = parseRate(s.RFrameRate)
		}
		meta.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		meta.Frames, _ = strconv.Atoi(s.NBFrames)
		if meta.Frames == 0 && meta.Duration > 0 && meta.FPS > 0 {
			meta.Frames = int(meta.Duration*meta.FPS + 0.5)
		}
		break
	}

	if meta.Width == 0 || meta.Height == 0 {
		return meta, fmt.Errorf("no video stream found in %s", path)
	}
	return meta, nil
}

// Explode decompõe o vídeo em frames PNG numerados em dir
// (frame_000000.png em diante) e retorna quantos foram produzidos.
func (e *Engine) Explode(ctx context.Context, input, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("creating frame directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.FFmpeg,
		"-v", "error",
		"-i", input,
		"-start_number", "0",
		filepath.Join(dir, "frame_%06d.png"),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("exploding %s: %w: %s", input, err, tail(stderr.String()))
	}

	matches, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return 0, fmt.Errorf("listing exploded frames: %w", err)
	}
	return len(matches), nil
}

// CodecName traduz os nomes de codec do protocolo para encoders do ffmpeg.
func CodecName(codec string) string {
	switch strings.ToLower(codec) {
	case "mp4v", "":
		return "mpeg4"
	case "avc1", "h264":
		return "libx264"
	default:
		return codec
	}
}

// Encoder consome PNGs em ordem via stdin do ffmpeg (image2pipe) e produz
// o vídeo final no path de saída.
type Encoder struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stderr *bytes.Buffer
	frames int
}

// NewEncoder abre o processo de encode com o FPS e codec da sessão.
// WriteFrame alimenta um PNG por vez, em ordem; Close fecha o stdin e
// espera o processo terminar.
func (e *Engine) NewEncoder(ctx context.Context, out string, fps float64, codec string) (*Encoder, error) {
	if fps <= 0 {
		fps = 30
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating encoder pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.FFmpeg,
		"-v", "error",
		"-y",
		"-f", "image2pipe",
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-c:v", CodecName(codec),
		"-pix_fmt", "yuv420p",
		out,
	)
	cmd.Stdin = pr
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("starting encoder: %w", err)
	}
	// O filho herdou o read end; o pai fica só com o write end.
	pr.Close()

	return &Encoder{cmd: cmd, stdin: pw, stderr: stderr}, nil
}

// WriteFrame escreve os bytes de um PNG no pipe do encoder.
func (enc *Encoder) WriteFrame(pngBytes []byte) error {
	if _, err := enc.stdin.Write(pngBytes); err != nil {
		return fmt.Errorf("writing frame %d to encoder: %w", enc.frames, err)
	}
	enc.frames++
	return nil
}

// Frames retorna quantos frames foram alimentados até agora.
func (enc *Encoder) Frames() int {
	return enc.frames
}

// Close fecha o stdin (EOF para o ffmpeg) e espera o encode concluir.
func (enc *Encoder) Close() error {
	if err := enc.stdin.Close(); err != nil {
		enc.cmd.Wait()
		return fmt.Errorf("closing encoder pipe: %w", err)
	}
	if err := enc.cmd.Wait(); err != nil {
		return fmt.Errorf("encoder exited: %w: %s", err, tail(enc.stderr.String()))
	}
	return nil
}

// zeroFrameCache guarda frames pretos já codificados por dimensão.
var zeroFrameCache sync.Map // "WxH" → []byte

// ZeroFrame retorna um PNG preto com as dimensões pedidas, usado para
// preencher índices ausentes na finalização. Cacheado por tamanho.
func ZeroFrame(width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid zero frame size %dx%d", width, height)
	}

	key := fmt.Sprintf("%dx%d", width, height)
	if cached, ok := zeroFrameCache.Load(key); ok {
		return cached.([]byte), nil
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	black := color.RGBA{A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, black)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding zero frame: %w", err)
	}

	data := buf.Bytes()
	zeroFrameCache.Store(key, data)
	return data, nil
}

// parseRate converte a fração "num/den" do ffprobe em float.
func parseRate(rate string) float64 {
	if rate == "" || rate == "0/0" {
		return 0
	}
	parts := strings.SplitN(rate, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return num
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}

// tail corta o stderr do ffmpeg para o fim, onde fica a causa real.
func tail(s string) string {
	s = strings.TrimSpace(s)
	const max = 512
	if len(s) > max {
		return "..." + s[len(s)-max:]
	}
	return s
}
