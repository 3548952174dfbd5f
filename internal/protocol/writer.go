package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Encode serializa a mensagem e prefixa o comprimento em 4 bytes BE.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", msg.Kind(), err)
	}
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)
	return frame, nil
}

// Send codifica e escreve a mensagem por inteiro no stream.
func Send(w io.Writer, msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing %s message: %w", msg.Kind(), err)
	}
	return nil
}

// SendBytes escreve bytes crus no stream, fora do framing JSON.
func SendBytes(w io.Writer, payload []byte) error {
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing raw payload (%d bytes): %w", len(payload), err)
	}
	return nil
}
