package protocol

import (
	"errors"
	"fmt"

	"github.com/frameflow-dev/frameflow/internal/metrics"
)

// ProtocolVersion é a versão corrente do protocolo de handshake.
const ProtocolVersion = 1

// MaxFrameSize é o tamanho máximo de um frame JSON no wire (100 MiB).
// Payloads de vídeo cru trafegam fora do framing e não sofrem esse limite.
const MaxFrameSize = 100 * 1024 * 1024

// ModeStream é o único modo de transferência suportado no handshake.
const ModeStream = "stream"

// Códigos de erro que cruzam o wire em mensagens Error.
const (
	CodeInvalidHandshake = "INVALID_HANDSHAKE"
	CodeProcessingError  = "PROCESSING_ERROR"
)

var (
	// ErrFrameTooLarge indica um frame JSON acima de MaxFrameSize.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")

	// ErrEmptyFrame indica um frame com comprimento zero no header.
	ErrEmptyFrame = errors.New("protocol: zero-length frame")
)

// Kind identifica a variante de uma mensagem do protocolo.
type Kind string

const (
	KindHandshake    Kind = "handshake"
	KindHandshakeAck Kind = "handshake_ack"
	KindProgress     Kind = "progress"
	KindResult       Kind = "result"
	KindError        Kind = "error"
	KindUnknown      Kind = "unknown"
)

// Message é a interface comum das variantes do protocolo.
// O campo "type" do JSON seleciona a variante na decodificação.
type Message interface {
	Kind() Kind
}

// VideoInfo descreve o vídeo de origem anunciado no handshake.
type VideoInfo struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
}

// Handshake é a primeira mensagem da sessão (client → server).
type Handshake struct {
	Type       string         `json:"type"`
	Version    int            `json:"version"`
	Mode       string         `json:"mode"`
	Codec      string         `json:"codec"`
	Processing string         `json:"processing"`
	Filters    map[string]any `json:"filters,omitempty"`
	VideoInfo  VideoInfo      `json:"video_info"`
}

func (m *Handshake) Kind() Kind { return KindHandshake }

// NewHandshake monta um Handshake preenchendo type e version.
func NewHandshake(codec, processing string, filters map[string]any, filename string, sizeBytes int64) *Handshake {
	return &Handshake{
		Type:       string(KindHandshake),
		Version:    ProtocolVersion,
		Mode:       ModeStream,
		Codec:      codec,
		Processing: processing,
		Filters:    filters,
		VideoInfo:  VideoInfo{Filename: filename, SizeBytes: sizeBytes},
	}
}

// HandshakeAck confirma (ou rejeita) o handshake (server → client).
type HandshakeAck struct {
	Type       string `json:"type"`
	Accepted   bool   `json:"accepted"`
	SessionID  string `json:"session_id"`
	PreviewURL string `json:"preview_url,omitempty"`
}

func (m *HandshakeAck) Kind() Kind { return KindHandshakeAck }

// NewHandshakeAck monta um HandshakeAck de aceite.
func NewHandshakeAck(sessionID, previewURL string) *HandshakeAck {
	return &HandshakeAck{
		Type:       string(KindHandshakeAck),
		Accepted:   true,
		SessionID:  sessionID,
		PreviewURL: previewURL,
	}
}

// Progress reporta o avanço do processamento (server → client).
type Progress struct {
	Type            string  `json:"type"`
	FramesProcessed int     `json:"frames_processed"`
	FramesTotal     int     `json:"frames_total"`
	FPS             float64 `json:"fps"`
	ETASeconds      float64 `json:"eta_seconds"`
}

func (m *Progress) Kind() Kind { return KindProgress }

// NewProgress monta uma mensagem Progress.
func NewProgress(processed, total int, fps, etaSeconds float64) *Progress {
	return &Progress{
		Type:            string(KindProgress),
		FramesProcessed: processed,
		FramesTotal:     total,
		FPS:             fps,
		ETASeconds:      etaSeconds,
	}
}

// Result encerra a sessão com sucesso (server → client).
// Imediatamente após esta mensagem seguem SizeBytes bytes crus do vídeo
// de saída, fora do framing JSON.
type Result struct {
	Type       string          `json:"type"`
	OK         bool            `json:"ok"`
	OutputPath string          `json:"output_path"`
	SizeBytes  int64           `json:"size_bytes"`
	Metrics    metrics.Summary `json:"metrics"`
}

func (m *Result) Kind() Kind { return KindResult }

// NewResult monta uma mensagem Result.
func NewResult(outputPath string, sizeBytes int64, summary metrics.Summary) *Result {
	return &Result{
		Type:       string(KindResult),
		OK:         true,
		OutputPath: outputPath,
		SizeBytes:  sizeBytes,
		Metrics:    summary,
	}
}

// Error encerra ou sinaliza falha na sessão (server → client).
type Error struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

func (m *Error) Kind() Kind { return KindError }

// NewError monta uma mensagem Error.
func NewError(code, message string, recoverable bool) *Error {
	return &Error{
		Type:        string(KindError),
		Code:        code,
		Message:     message,
		Recoverable: recoverable,
	}
}

// Unknown preserva mensagens com um "type" fora do vocabulário.
// A política de erro decide o destino; o payload cru fica disponível.
type Unknown struct {
	Type string
	Raw  []byte
}

func (m *Unknown) Kind() Kind { return KindUnknown }

// processingKinds é o vocabulário de processamentos aceitos no handshake.
var processingKinds = map[string]bool{
	"blur":   true,
	"faces":  true,
	"edges":  true,
	"motion": true,
	"custom": true,
}

// ValidProcessing verifica se o nome de processamento pertence ao vocabulário.
func ValidProcessing(name string) bool {
	return processingKinds[name]
}

// ProcessingKinds retorna o vocabulário aceito, para mensagens de uso.
func ProcessingKinds() []string {
	return []string{"blur", "faces", "edges", "motion", "custom"}
}

// Validate confere os campos obrigatórios de um Handshake recebido.
func (m *Handshake) Validate() error {
	if m.Mode != ModeStream {
		return fmt.Errorf("unsupported mode %q", m.Mode)
	}
	if !ValidProcessing(m.Processing) {
		return fmt.Errorf("unknown processing %q", m.Processing)
	}
	if m.VideoInfo.Filename == "" {
		return fmt.Errorf("missing video_info.filename")
	}
	if m.VideoInfo.SizeBytes < 0 {
		return fmt.Errorf("negative video_info.size_bytes")
	}
	return nil
}
