// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package worker

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"
)

// defaultBlurKernel é o lado do kernel de box blur quando o handshake
// não traz params.
const defaultBlurKernel = 15

// faceBlockSize é o lado dos blocos analisados pelo detector de faces.
const faceBlockSize = 16

// filterBank aplica os processamentos suportados sobre frames decodificados.
// O filtro motion guarda o frame anterior por sessão; o estado vive no
// processo do worker e é descartado junto com a sessão.
type filterBank struct {
	mu        sync.Mutex
	baselines map[string]*image.Gray
}

func newFilterBank() *filterBank {
	return &filterBank{baselines: make(map[string]*image.Gray)}
}

// Apply decodifica o PNG, aplica o processamento pedido e recodifica.
// Retorna os bytes do frame processado e o nome do filtro aplicado.
func (fb *filterBank) Apply(sessionID, processing string, params map[string]any, pngBytes []byte) ([]byte, string, error) {
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, "", fmt.Errorf("decoding frame: %w", err)
	}
	src := toRGBA(img)

	var out *image.RGBA
	switch processing {
	case "blur":
		out = boxBlur(src, intParam(params, "kernel", defaultBlurKernel))
	case "edges":
		out = sobelEdges(src)
	case "motion":
		out = fb.motionDiff(sessionID, src)
	case "faces":
		out = pixelateFaces(src)
	case "custom":
		out = adjust(src,
			floatParam(params, "brightness", 0),
			floatParam(params, "contrast", 1))
	default:
		return nil, "", fmt.Errorf("unknown processing %q", processing)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, "", fmt.Errorf("encoding processed frame: %w", err)
	}
	return buf.Bytes(), processing, nil
}

// Forget descarta o estado de motion de uma sessão.
func (fb *filterBank) Forget(sessionID string) {
	fb.mu.Lock()
	delete(fb.baselines, sessionID)
	fb.mu.Unlock()
}

// toRGBA normaliza qualquer imagem decodificada para RGBA.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

// boxBlur aplica um box blur separável com kernel de lado ímpar.
func boxBlur(src *image.RGBA, kernel int) *image.RGBA {
	if kernel < 3 {
		kernel = 3
	}
	if kernel%2 == 0 {
		kernel++
	}
	radius := kernel / 2
	b := src.Bounds()

	// Passada horizontal
	tmp := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var r, g, bl, a, n int
			for dx := -radius; dx <= radius; dx++ {
				xx := x + dx
				if xx < b.Min.X || xx >= b.Max.X {
					continue
				}
				c := src.RGBAAt(xx, y)
				r += int(c.R)
				g += int(c.G)
				bl += int(c.B)
				a += int(c.A)
				n++
			}
			tmp.SetRGBA(x, y, color.RGBA{uint8(r / n), uint8(g / n), uint8(bl / n), uint8(a / n)})
		}
	}

	// Passada vertical
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var r, g, bl, a, n int
			for dy := -radius; dy <= radius; dy++ {
				yy := y + dy
				if yy < b.Min.Y || yy >= b.Max.Y {
					continue
				}
				c := tmp.RGBAAt(x, yy)
				r += int(c.R)
				g += int(c.G)
				bl += int(c.B)
				a += int(c.A)
				n++
			}
			out.SetRGBA(x, y, color.RGBA{uint8(r / n), uint8(g / n), uint8(bl / n), uint8(a / n)})
		}
	}
	return out
}

// toGray converte para grayscale por luminância.
func toGray(src *image.RGBA) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.RGBAAt(x, y)
			lum := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
			out.SetGray(x, y, color.Gray{Y: uint8(lum)})
		}
	}
	return out
}

// sobelEdges aplica o operador de Sobel sobre a luminância.
func sobelEdges(src *image.RGBA) *image.RGBA {
	gray := toGray(src)
	b := gray.Bounds()
	out := image.NewRGBA(b)

	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			p := func(dx, dy int) float64 {
				return float64(gray.GrayAt(x+dx, y+dy).Y)
			}
			gx := -p(-1, -1) - 2*p(-1, 0) - p(-1, 1) + p(1, -1) + 2*p(1, 0) + p(1, 1)
			gy := -p(-1, -1) - 2*p(0, -1) - p(1, -1) + p(-1, 1) + 2*p(0, 1) + p(1, 1)
			mag := math.Sqrt(gx*gx + gy*gy)
			if mag > 255 {
				mag = 255
			}
			v := uint8(mag)
			out.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return out
}

// motionDiff destaca a diferença absoluta contra o frame anterior da
// sessão. O primeiro frame não tem baseline e sai preto.
func (fb *filterBank) motionDiff(sessionID string, src *image.RGBA) *image.RGBA {
	gray := toGray(src)

	fb.mu.Lock()
	prev := fb.baselines[sessionID]
	fb.baselines[sessionID] = gray
	fb.mu.Unlock()

	b := gray.Bounds()
	out := image.NewRGBA(b)
	if prev == nil || !prev.Bounds().Eq(b) {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
		return out
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			d := int(gray.GrayAt(x, y).Y) - int(prev.GrayAt(x, y).Y)
			if d < 0 {
				d = -d
			}
			v := uint8(d)
			out.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return out
}

// pixelateFaces pixeliza blocos predominantemente em tons de pele.
// Heurística simples de anonimização; blocos neutros passam intactos.
func pixelateFaces(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(b)
	copy(out.Pix, src.Pix)

	for by := b.Min.Y; by < b.Max.Y; by += faceBlockSize {
		for bx := b.Min.X; bx < b.Max.X; bx += faceBlockSize {
			x1 := min(bx+faceBlockSize, b.Max.X)
			y1 := min(by+faceBlockSize, b.Max.Y)
			if blockIsSkin(src, bx, by, x1, y1) {
				fillBlockAverage(out, bx, by, x1, y1)
			}
		}
	}
	return out
}

// blockIsSkin verifica se a maioria dos pixels do bloco cai na faixa de
// tons de pele em RGB.
func blockIsSkin(src *image.RGBA, x0, y0, x1, y1 int) bool {
	total := 0
	skin := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			c := src.RGBAAt(x, y)
			total++
			if c.R > 95 && c.G > 40 && c.B > 20 &&
				c.R > c.G && c.R > c.B &&
				int(c.R)-int(c.B) > 15 {
				skin++
			}
		}
	}
	return total > 0 && skin*2 > total
}

// fillBlockAverage substitui o bloco pela sua cor média.
func fillBlockAverage(img *image.RGBA, x0, y0, x1, y1 int) {
	var r, g, b, n int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			c := img.RGBAAt(x, y)
			r += int(c.R)
			g += int(c.G)
			b += int(c.B)
			n++
		}
	}
	if n == 0 {
		return
	}
	avg := color.RGBA{uint8(r / n), uint8(g / n), uint8(b / n), 255}
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetRGBA(x, y, avg)
		}
	}
}

// adjust aplica brilho aditivo e contraste multiplicativo em torno do
// ponto médio.
func adjust(src *image.RGBA, brightness, contrast float64) *image.RGBA {
	if contrast <= 0 {
		contrast = 1
	}
	b := src.Bounds()
	out := image.NewRGBA(b)
	apply := func(v uint8) uint8 {
		f := (float64(v)-128)*contrast + 128 + brightness
		return uint8(math.Max(0, math.Min(255, f)))
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.RGBAAt(x, y)
			out.SetRGBA(x, y, color.RGBA{apply(c.R), apply(c.G), apply(c.B), c.A})
		}
	}
	return out
}

// intParam extrai um parâmetro inteiro dos filters do handshake.
// JSON decodifica números como float64.
func intParam(params map[string]any, key string, def int) int {
	if v, ok := params[key]; ok {
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return def
}

func floatParam(params map[string]any, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}
