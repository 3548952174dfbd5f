// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package client

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// barWidth é a largura da barra de progresso em caracteres.
const barWidth = 30

// ProgressBar desenha o avanço do processamento no terminal: barra,
// frames, fps do server e ETA. Atualizada a cada mensagem de progresso
// recebida (o server emite no máximo a cada 500ms).
type ProgressBar struct {
	name      string
	out       io.Writer
	total     int
	processed int
	startTime time.Time
}

// NewProgressBar cria uma barra para a sessão nomeada escrevendo em out
// (normalmente os.Stderr).
func NewProgressBar(name string, out io.Writer) *ProgressBar {
	return &ProgressBar{
		name:      name,
		out:       out,
		startTime: time.Now(),
	}
}

// Update redesenha a barra com o snapshot mais recente do server.
func (p *ProgressBar) Update(processed, total int, fps, etaSeconds float64) {
	p.processed = processed
	p.total = total
	p.render(fps, etaSeconds, false)
}

// Finish imprime a linha final e quebra a linha.
func (p *ProgressBar) Finish() {
	p.render(0, 0, true)
}

func (p *ProgressBar) render(fps, etaSeconds float64, final bool) {
	var bar string
	if p.total > 0 {
		pct := float64(p.processed) / float64(p.total)
		if pct > 1.0 {
			pct = 1.0
		}
		filled := int(pct * float64(barWidth))
		if filled > barWidth {
			filled = barWidth
		}
		bar = strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	} else {
		// Sem total conhecido — spinner simples
		pos := int(time.Since(p.startTime).Seconds()*2) % barWidth
		bar = strings.Repeat("░", pos) + "█" + strings.Repeat("░", barWidth-pos-1)
	}

	eta := "∞"
	if etaSeconds > 0 {
		eta = formatDuration(time.Duration(etaSeconds * float64(time.Second)))
	}
	if final {
		eta = "0:00"
	}

	line := fmt.Sprintf("\r[%s] %s  %d/%d frames  │  %.1f fps  │  %s  │  ETA %s",
		p.name, bar, p.processed, p.total, fps,
		formatDuration(time.Since(p.startTime)), eta,
	)

	// Pad com espaços para limpar restos de linha anterior
	if len(line) < 110 {
		line += strings.Repeat(" ", 110-len(line))
	}

	if final {
		fmt.Fprintf(p.out, "%s\n", line)
	} else {
		fmt.Fprint(p.out, line)
	}
}

// formatDuration formata duração como M:SS ou H:MM:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// formatBytes formata bytes em unidades legíveis.
func formatBytes(b int64) string {
	switch {
	case b >= 1024*1024*1024:
		return fmt.Sprintf("%.1f GB", float64(b)/(1024*1024*1024))
	case b >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(b)/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%.1f KB", float64(b)/1024)
	default:
		return fmt.Sprintf("%d B", b)
	}
}
