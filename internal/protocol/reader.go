package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Recv lê um frame completo do stream e decodifica a variante.
// Formato: [Length uint32 BE] [Payload JSON UTF-8].
// Fechamento limpo antes do primeiro byte retorna (nil, io.EOF);
// EOF no meio de um frame é erro (io.ErrUnexpectedEOF embrulhado).
func Recv(r io.Reader) (Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading frame payload (%d bytes): %w", length, err)
	}

	return Decode(payload)
}

// RecvBytes lê exatamente n bytes crus do stream (payloads fora do framing).
func RecvBytes(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative payload size %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("reading raw payload (%d bytes): %w", n, err)
	}
	return buf, nil
}

// Decode resolve a variante de um payload JSON pelo campo "type".
// Um "type" fora do vocabulário vira a variante Unknown, nunca erro;
// a camada de cima decide a política.
func Decode(payload []byte) (Message, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decoding message envelope: %w", err)
	}

	switch Kind(env.Type) {
	case KindHandshake:
		var m Handshake
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decoding handshake: %w", err)
		}
		return &m, nil
	case KindHandshakeAck:
		var m HandshakeAck
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decoding handshake_ack: %w", err)
		}
		return &m, nil
	case KindProgress:
		var m Progress
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decoding progress: %w", err)
		}
		return &m, nil
	case KindResult:
		var m Result
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decoding result: %w", err)
		}
		return &m, nil
	case KindError:
		var m Error
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decoding error message: %w", err)
		}
		return &m, nil
	default:
		raw := make([]byte, len(payload))
		copy(raw, payload)
		return &Unknown{Type: env.Type, Raw: raw}, nil
	}
}
